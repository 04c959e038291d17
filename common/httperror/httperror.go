// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package httperror

import (
	"net/http"

	"github.com/xcherryio/creditbridge/common/log"
	"github.com/xcherryio/creditbridge/common/log/tag"
)

// CheckHttpResponseAndError returns true when the call failed, either with an error or a non-2xx status
func CheckHttpResponseAndError(err error, httpResp *http.Response, logger log.Logger) bool {
	status := 0
	if httpResp != nil {
		status = httpResp.StatusCode
	}
	logger.Debug("check http response and error", tag.Error(err), tag.StatusCode(status))

	if err != nil || (httpResp != nil && !IsSuccess(httpResp.StatusCode)) {
		return true
	}
	return false
}

func IsSuccess(status int) bool {
	return status >= 200 && status < 300
}

// IsClientError is a 4xx, the request was understood and refused
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}
