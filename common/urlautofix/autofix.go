// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package urlautofix

import (
	"os"
	"strings"
)

// EnvAutoFixLocalhost replaces localhost in the Task Source URL, for running the bridge in docker
// against an engine on the host
const EnvAutoFixLocalhost = "AUTO_FIX_LOCALHOST_TASK_SOURCE_URL"

type FixUrlFunc func(url string) string

var urlFixer FixUrlFunc = DefaultFixUrlFunc

func SetUrlFixer(fixer FixUrlFunc) {
	urlFixer = fixer
}

func FixTaskSourceUrl(url string) string {
	return strings.TrimSuffix(urlFixer(url), "/")
}

func DefaultFixUrlFunc(url string) string {
	autofixUrl := os.Getenv(EnvAutoFixLocalhost)
	if autofixUrl != "" {
		url = strings.Replace(url, "localhost", autofixUrl, 1)
		url = strings.Replace(url, "127.0.0.1", autofixUrl, 1)
	}

	return url
}
