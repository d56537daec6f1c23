// Package server exposes the chat client and cache operations over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/pario-ai/leadchat/pkg/cache"
	"github.com/pario-ai/leadchat/pkg/client"
	"github.com/pario-ai/leadchat/pkg/logging"
	"github.com/pario-ai/leadchat/pkg/models"
)

// CacheHeader reports whether /chat was answered from cache.
const CacheHeader = "X-Leadchat-Cache"

// Chat is the subset of the chat client the server uses.
type Chat interface {
	SendMessage(ctx context.Context, messages []models.ChatMessage, sessionID, model string) (*models.ChatResponse, error)
	StreamMessage(ctx context.Context, messages []models.ChatMessage, sessionID, model string, emit func(string) error) (*models.ChatResponse, error)
	ListModels(ctx context.Context) (map[string]string, error)
	Store() *cache.Store
}

// Server is the leadchat HTTP gateway.
type Server struct {
	listen string
	chat   Chat
	engine *gin.Engine
	log    zerolog.Logger
}

// New creates a Server listening on listen.
func New(listen string, chat Chat) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		listen: listen,
		chat:   chat,
		engine: gin.New(),
		log:    logging.NewLogger("server"),
	}
	s.engine.Use(gin.Recovery(), s.requestLogger())

	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.engine.POST("/chat", s.handleChat)
	s.engine.POST("/chat/stream", s.handleChatStream)
	s.engine.GET("/models", s.handleModels)
	s.engine.GET("/cache", s.handleCacheStats)
	s.engine.DELETE("/cache", s.handleCacheClear)
	s.engine.POST("/cache/prune", s.handleCachePrune)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

// ListenAndServe starts the server with graceful shutdown support.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.listen,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("listen", s.listen).Msg("leadchat gateway listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.log.Info().Msg("shutting down")
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status_code", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	}
}

func writeJSONError(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(code, gin.H{
		"error": gin.H{
			"message": message,
			"type":    "leadchat_error",
			"code":    code,
		},
	})
}

// errorStatus maps client errors onto gateway status codes.
func errorStatus(err error) int {
	var ue *client.UpstreamError
	var ne *client.NetworkError
	switch {
	case errors.As(err, &ue):
		return http.StatusBadGateway
	case errors.As(err, &ne):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
