// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package integTests

import "flag"

var useLocalServer = flag.Bool("useLocalServer", false,
	"run integ test against local server, started with the devengine service")

var devEngineAddress = flag.String("devEngineAddress", "localhost:18080",
	"host:port of the dev engine")

var apiAddress = flag.String("apiAddress", "localhost:18801",
	"host:port of the api service")
