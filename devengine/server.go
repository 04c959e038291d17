// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package devengine

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xcherryio/creditbridge/common/log"
	"github.com/xcherryio/creditbridge/common/log/tag"
	"github.com/xcherryio/creditbridge/config"
	"github.com/xcherryio/creditbridge/tasksource"
)

const (
	PathFetchAndLock       = "/external-task/fetchAndLock"
	PathExtendLock         = "/external-task/:id/extendLock"
	PathComplete           = "/external-task/:id/complete"
	PathGetTask            = "/external-task/:id"
	PathStartProcess       = "/process-definition/key/:key/start"
	PathGetProcess         = "/process-instance/:id"
	PathGetProcessVariable = "/process-instance/:id/variables"
)

const (
	errorTypeBadUserRequest = "BadUserRequestException"
	errorTypeNotFound       = "NotFoundException"
	errorTypeInvalidRequest = "InvalidRequestException"
	errorTypeEngine         = "ProcessEngineException"
)

type Server struct {
	rootCtx    context.Context
	logger     log.Logger
	httpServer *http.Server
}

func NewServer(rootCtx context.Context, cfg config.DevEngineConfig, engine *Engine, logger log.Logger) *Server {
	svrCfg := cfg.HttpServer
	return &Server{
		rootCtx: rootCtx,
		logger:  logger,
		httpServer: &http.Server{
			Addr:              svrCfg.Address,
			ReadTimeout:       svrCfg.ReadTimeout,
			WriteTimeout:      svrCfg.WriteTimeout,
			ReadHeaderTimeout: svrCfg.ReadHeaderTimeout,
			IdleTimeout:       svrCfg.IdleTimeout,
			MaxHeaderBytes:    svrCfg.MaxHeaderBytes,
			TLSConfig:         svrCfg.TLSConfig,
			Handler:           NewGinEngine(cfg.BasePath, engine, logger),
			BaseContext: func(listener net.Listener) context.Context {
				// for graceful shutdown
				return rootCtx
			},
		},
	}
}

func (s *Server) Start() error {
	go func() {
		err := s.httpServer.ListenAndServe()
		s.logger.Info("Http Server for dev engine is closed", tag.Error(err))
	}()
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// NewGinEngine serves the external task REST API under basePath
func NewGinEngine(basePath string, engine *Engine, logger log.Logger) *gin.Engine {
	router := gin.Default()
	h := &ginHandler{engine: engine, logger: logger}

	group := router.Group(basePath)
	group.POST(PathFetchAndLock, h.FetchAndLock)
	group.POST(PathExtendLock, h.ExtendLock)
	group.POST(PathComplete, h.Complete)
	group.GET(PathGetTask, h.GetTask)
	group.POST(PathStartProcess, h.StartProcess)
	group.GET(PathGetProcess, h.GetProcess)
	group.GET(PathGetProcessVariable, h.GetProcessVariables)
	return router
}

type ginHandler struct {
	engine *Engine
	logger log.Logger
}

func (h *ginHandler) FetchAndLock(c *gin.Context) {
	var req tasksource.FetchAndLockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, err)
		return
	}
	tasks, err := h.engine.FetchAndLock(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if tasks == nil {
		tasks = []tasksource.LockedTask{}
	}
	c.JSON(http.StatusOK, tasks)
}

func (h *ginHandler) ExtendLock(c *gin.Context) {
	var req tasksource.ExtendLockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, err)
		return
	}
	if err := h.engine.ExtendLock(c.Request.Context(), c.Param("id"), req); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ginHandler) Complete(c *gin.Context) {
	var req tasksource.CompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, err)
		return
	}
	if err := h.engine.Complete(c.Request.Context(), c.Param("id"), req); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ginHandler) GetTask(c *gin.Context) {
	task, err := h.engine.GetTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *ginHandler) StartProcess(c *gin.Context) {
	var req tasksource.StartProcessRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			invalidRequest(c, err)
			return
		}
	}
	instance, err := h.engine.StartProcess(c.Request.Context(), c.Param("key"), req.Variables)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, instance)
}

func (h *ginHandler) GetProcess(c *gin.Context) {
	instance, err := h.engine.GetProcess(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, instance)
}

func (h *ginHandler) GetProcessVariables(c *gin.Context) {
	vars, err := h.engine.GetProcessVariables(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, vars)
}

func (h *ginHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, tasksource.ErrorResponse{Type: errorTypeNotFound, Message: err.Error()})
	case IsLockError(err), errors.Is(err, ErrInvalidVariables):
		c.JSON(http.StatusBadRequest, tasksource.ErrorResponse{Type: errorTypeBadUserRequest, Message: err.Error()})
	case errors.Is(err, context.Canceled), IsUnavailableError(err):
		c.JSON(http.StatusServiceUnavailable, tasksource.ErrorResponse{Type: errorTypeEngine, Message: err.Error()})
	default:
		h.logger.Error("dev engine failed to serve request", tag.Error(err), tag.URL(c.Request.URL.Path))
		c.JSON(http.StatusInternalServerError, tasksource.ErrorResponse{Type: errorTypeEngine, Message: err.Error()})
	}
}

func invalidRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, tasksource.ErrorResponse{Type: errorTypeInvalidRequest, Message: err.Error()})
}
