// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package consumer

import "context"

type Service interface {
	// Start will start running on the background
	Start() error
	Stop(ctx context.Context) error
}
