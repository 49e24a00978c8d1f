// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package api serves the operator HTTP interface: inspecting the controller,
// injecting events and clearing the error log.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/gzip"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/pickplace-core/pkg/logger"
	"github.com/united-manufacturing-hub/pickplace-core/pkg/pickplace"
	"github.com/united-manufacturing-hub/pickplace-core/pkg/standarderrors"
)

const (
	// Prefix is the path every API route lives under
	Prefix = "/api/v1"

	shutdownTimeout = 5 * time.Second
)

// Backend is what the API drives, usually a control.EventLoop
type Backend interface {
	Submit(ctx context.Context, ev pickplace.Event) error
	ClearErrorLog(ctx context.Context) ([]pickplace.ErrorRecord, error)
	Snapshot() pickplace.Snapshot
	Running() bool
}

// Server is the operator HTTP server
type Server struct {
	backend Backend
	router  *gin.Engine
	server  *http.Server
	logger  *zap.SugaredLogger
}

// NewServer builds the router. Requests are logged to zapLogger.
func NewServer(backend Backend, addr string, zapLogger *zap.Logger) *Server {
	s := &Server{
		backend: backend,
		router:  gin.New(),
		logger:  logger.For(logger.ComponentAPI),
	}

	s.router.Use(ginzap.Ginzap(zapLogger, time.RFC3339, true))
	s.router.Use(ginzap.RecoveryWithZap(zapLogger, true))
	s.router.Use(gzip.Gzip(gzip.DefaultCompression))

	s.router.GET("/healthz", s.healthz)

	v1 := s.router.Group(Prefix)
	{
		v1.GET("/state", s.getState)
		v1.GET("/errors", s.getErrors)
		v1.DELETE("/errors", s.clearErrors)
		v1.GET("/requests/pick", s.getPickRequest)
		v1.GET("/requests/place", s.getPlaceRequest)
		v1.GET("/completion", s.getCompletion)
		v1.POST("/events", s.postEvent)
	}

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the router, mostly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts the server down
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("Operator API listening on %s", s.server.Addr)
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("operator API: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown operator API: %w", err)
	}
	s.logger.Info("Operator API stopped")
	return nil
}

func (s *Server) healthz(c *gin.Context) {
	if !s.backend.Running() {
		c.String(http.StatusServiceUnavailable, "stopped")
		return
	}
	c.String(http.StatusOK, "online")
}

func (s *Server) getState(c *gin.Context) {
	c.JSON(http.StatusOK, s.backend.Snapshot())
}

func (s *Server) getErrors(c *gin.Context) {
	c.JSON(http.StatusOK, s.backend.Snapshot().ErrorLog)
}

func (s *Server) clearErrors(c *gin.Context) {
	cleared, err := s.backend.ClearErrorLog(c.Request.Context())
	if err != nil {
		s.handleError(c, err)
		return
	}
	if cleared == nil {
		cleared = []pickplace.ErrorRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"cleared": cleared})
}

func (s *Server) getPickRequest(c *gin.Context) {
	req := s.backend.Snapshot().PickRequest
	if req == nil {
		handleNotFound(c, "pick request")
		return
	}
	c.JSON(http.StatusOK, req)
}

func (s *Server) getPlaceRequest(c *gin.Context) {
	req := s.backend.Snapshot().PlaceRequest
	if req == nil {
		handleNotFound(c, "place request")
		return
	}
	c.JSON(http.StatusOK, req)
}

func (s *Server) getCompletion(c *gin.Context) {
	completion := s.backend.Snapshot().Completion
	if completion == nil {
		handleNotFound(c, "completion")
		return
	}
	c.JSON(http.StatusOK, completion)
}

// postEvent dispatches one event and answers with the state it left behind
func (s *Server) postEvent(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		handleInvalidInput(c, err)
		return
	}

	var fields pickplace.EventFields
	if err = json.Unmarshal(body, &fields); err != nil {
		handleInvalidInput(c, err)
		return
	}
	ev, err := fields.Event()
	if err != nil {
		handleInvalidInput(c, err)
		return
	}

	s.logger.Debugf("Operator submitted %s event", ev.Kind())
	if err = s.backend.Submit(c.Request.Context(), ev); err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.backend.Snapshot())
}

func (s *Server) handleError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, standarderrors.ErrLoopStopped):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, standarderrors.ErrUnknownEventKind):
		status = http.StatusBadRequest
	}

	if status >= http.StatusInternalServerError {
		s.logger.Errorw("Operator request failed", "error", err, "route", c.FullPath())
	}
	c.JSON(status, gin.H{
		"error":  err.Error(),
		"status": status,
	})
}

func handleInvalidInput(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   err.Error(),
		"status":  http.StatusBadRequest,
		"message": "You have provided a wrong input. Please check your parameters.",
	})
}

func handleNotFound(c *gin.Context, what string) {
	c.JSON(http.StatusNotFound, gin.H{
		"error":  fmt.Sprintf("no %s available", what),
		"status": http.StatusNotFound,
	})
}
