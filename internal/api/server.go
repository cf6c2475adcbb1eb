// internal/api/server.go
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/44dummies/tradermind-server-sub000/pkg/logger"
)

// Server is the operations surface: health, status and bot control.
type Server struct {
	Router *gin.Engine

	deps Deps
	http *http.Server
}

func NewServer(deps Deps) *Server {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger())
	r.Use(RateLimitMiddleware(newIPLimiters(20, 50)))

	s := &Server{Router: r, deps: deps}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/status", s.status)
	s.Router.GET("/ws", s.websocket)

	bot := s.Router.Group("/bot")
	{
		bot.POST("/start", s.startBot)
		bot.POST("/stop", s.stopBot)
		bot.POST("/emergency-stop", s.emergencyStop)
		bot.POST("/reset", s.resetEmergency)
	}
}

// Start serves on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info("🌐 Ops API listening on %s", addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
