// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
)

type Server interface {
	// Start will start running on the background
	Start() error
	Stop(ctx context.Context) error
}

// Service is the interface of API service, which decoupled from REST server framework like Gin
// So that users can choose to use other REST frameworks to serve requests
type Service interface {
	// StartLoan starts the loan process with the raw variables, nil is allowed
	StartLoan(ctx context.Context, variables map[string]any) (resp *StartLoanResponse, err *ErrorWithStatus)
}

type StartLoanResponse struct {
	ProcessInstanceId string
}
