// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xcherryio/creditbridge/common/log"
	"github.com/xcherryio/creditbridge/common/log/tag"
)

const StartLoanResponseText = "credit checker started"

type ginHandler struct {
	logger log.Logger
	svc    Service
}

func newGinHandler(svc Service, logger log.Logger) *ginHandler {
	return &ginHandler{
		logger: logger,
		svc:    svc,
	}
}

// StartLoan takes an optional JSON object of process variables
func (h *ginHandler) StartLoan(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		invalidRequestSchema(c)
		return
	}
	var variables map[string]any
	if len(body) > 0 {
		if err := json.Unmarshal(body, &variables); err != nil {
			invalidRequestSchema(c)
			return
		}
	}
	h.logger.Debug("received StartLoan API request", tag.Value(string(body)))

	_, errResp := h.svc.StartLoan(c.Request.Context(), variables)
	if errResp != nil {
		c.JSON(errResp.StatusCode, errResp.Error)
		return
	}
	c.String(http.StatusOK, StartLoanResponseText)
}

func invalidRequestSchema(c *gin.Context) {
	c.JSON(http.StatusBadRequest, ApiErrorResponse{
		Detail: "invalid request schema, expecting a JSON object of variables",
	})
}
