// internal/api/handlers.go
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/44dummies/tradermind-server-sub000/application/services/orchestrator"
)

func (s *Server) health(c *gin.Context) {
	components := make(map[string]bool, len(s.deps.Components))
	healthy := true
	for _, comp := range s.deps.Components {
		ok := comp.HealthCheck()
		components[comp.Name()] = ok
		healthy = healthy && ok
	}

	body := gin.H{
		"status":     "ok",
		"components": components,
	}
	if s.deps.Mode != nil {
		body["broker_mode"] = s.deps.Mode()
	}
	if !healthy {
		body["status"] = "degraded"
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) status(c *gin.Context) {
	body := gin.H{}
	if s.deps.Bot != nil {
		body["bot"] = s.deps.Bot.Status()
	}
	for name, fn := range s.deps.Stats {
		body[name] = fn()
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) startBot(c *gin.Context) {
	ctx := s.deps.Context
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.deps.Bot.Start(ctx); err != nil {
		code := http.StatusInternalServerError
		switch {
		case errors.Is(err, orchestrator.ErrAlreadyRunning), errors.Is(err, orchestrator.ErrEmergencyLatch):
			code = http.StatusConflict
		case errors.Is(err, orchestrator.ErrNoActiveSession):
			code = http.StatusPreconditionFailed
		}
		c.JSON(code, errorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.deps.Bot.Status())
}

func (s *Server) stopBot(c *gin.Context) {
	if err := s.deps.Bot.Stop(bindReason(c, orchestrator.ReasonManual)); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, orchestrator.ErrNotRunning) {
			code = http.StatusConflict
		}
		c.JSON(code, errorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.deps.Bot.Status())
}

func (s *Server) emergencyStop(c *gin.Context) {
	s.deps.Bot.EmergencyStop(bindReason(c, "emergency_api"))
	c.JSON(http.StatusOK, s.deps.Bot.Status())
}

func (s *Server) resetEmergency(c *gin.Context) {
	if !s.deps.Bot.ResetEmergency() {
		c.JSON(http.StatusConflict, errorResponse{Error: "emergency stop not latched"})
		return
	}
	c.JSON(http.StatusOK, s.deps.Bot.Status())
}

func (s *Server) websocket(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "user_id is required"})
		return
	}
	if s.deps.Hub == nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "push channel disabled"})
		return
	}
	s.deps.Hub.HandleWebSocket(c.Writer, c.Request, userID)
}

// bindReason reads an optional {"reason": ...} body.
func bindReason(c *gin.Context, fallback string) string {
	var req reasonRequest
	if c.Request.ContentLength > 0 {
		_ = c.ShouldBindJSON(&req)
	}
	if req.Reason == "" {
		return fallback
	}
	return req.Reason
}
