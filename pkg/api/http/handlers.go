package http

import (
	"errors"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/aescanero/patchwork/pkg/module"
	"github.com/aescanero/patchwork/pkg/ports"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TerminateRequest represents a termination request
type TerminateRequest struct {
	ExitCode int `json:"exit_code"`
}

// TerminateResponse represents a termination response
type TerminateResponse struct {
	Status      string `json:"status"`
	ExitCode    int    `json:"exit_code"`
	RequestedAt string `json:"requested_at"`
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	WorkerID  string            `json:"worker_id"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Down      []string          `json:"down,omitempty"`
}

// WorkersResponse lists workers with a stored snapshot
type WorkersResponse struct {
	Workers []string `json:"workers"`
	Count   int      `json:"count"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// handleHealth reports 200 when every component is running, 503 otherwise
func (s *Server) handleHealth(c *gin.Context) {
	snap := s.status.Snapshot()

	resp := HealthResponse{
		Status:    "healthy",
		WorkerID:  snap.WorkerID,
		Timestamp: snap.Timestamp.Format(time.RFC3339),
		Checks:    make(map[string]string, len(snap.Components)),
	}
	for _, comp := range snap.Components {
		resp.Checks[comp.Name] = string(comp.Status)
	}

	code := http.StatusOK
	if !snap.Healthy() {
		resp.Status = "unhealthy"
		resp.Down = componentsDown(snap)
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, resp)
}

// handleStatus returns the component snapshot
func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.status.Snapshot())
}

// handleTerminate requests graceful worker termination
func (s *Server) handleTerminate(c *gin.Context) {
	var req TerminateRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		s.logger.Error("invalid request", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorDetail{
				Code:    "INVALID_REQUEST",
				Message: err.Error(),
			},
		})
		return
	}

	if req.ExitCode < 0 || req.ExitCode > 255 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorDetail{
				Code:    "INVALID_EXIT_CODE",
				Message: "exit_code must be between 0 and 255",
				Details: req.ExitCode,
			},
		})
		return
	}

	s.logger.Info("termination requested over HTTP",
		zap.Int("exit_code", req.ExitCode),
		zap.String("client_ip", c.ClientIP()))
	s.terminate(req.ExitCode)

	c.JSON(http.StatusAccepted, TerminateResponse{
		Status:      "terminating",
		ExitCode:    req.ExitCode,
		RequestedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

// handleListWorkers lists workers known to the status directory
func (s *Server) handleListWorkers(c *gin.Context) {
	ids, err := s.directory.List(c.Request.Context())
	if err != nil {
		s.logger.Error("failed to list workers", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: ErrorDetail{
				Code:    "DIRECTORY_ERROR",
				Message: "failed to list workers",
			},
		})
		return
	}

	sort.Strings(ids)
	c.JSON(http.StatusOK, WorkersResponse{
		Workers: ids,
		Count:   len(ids),
	})
}

// handleGetWorker returns the stored snapshot of a worker
func (s *Server) handleGetWorker(c *gin.Context) {
	id := c.Param("id")

	snap, err := s.directory.Load(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error: ErrorDetail{
					Code:    "WORKER_NOT_FOUND",
					Message: "no status stored for worker",
					Details: id,
				},
			})
			return
		}

		s.logger.Error("failed to load worker status", zap.String("worker_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: ErrorDetail{
				Code:    "DIRECTORY_ERROR",
				Message: "failed to load worker status",
			},
		})
		return
	}

	c.JSON(http.StatusOK, snap)
}

// componentsDown lists components that are not running
func componentsDown(snap module.Snapshot) []string {
	var down []string
	for _, comp := range snap.Components {
		if comp.Status != module.StatusRunning {
			down = append(down, comp.Name)
		}
	}
	return down
}
