package server

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pario-ai/leadchat/pkg/models"
)

func bindChat(c *gin.Context) (models.ChatRequest, bool) {
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSONError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return req, false
	}
	if len(req.Messages) == 0 {
		writeJSONError(c, http.StatusBadRequest, "messages must not be empty")
		return req, false
	}
	return req, true
}

func (s *Server) handleChat(c *gin.Context) {
	req, ok := bindChat(c)
	if !ok {
		return
	}

	resp, err := s.chat.SendMessage(c.Request.Context(), req.Messages, req.SessionID, req.Model)
	if err != nil {
		writeJSONError(c, errorStatus(err), err.Error())
		return
	}

	if resp.Cached {
		c.Header(CacheHeader, "hit")
	} else {
		c.Header(CacheHeader, "miss")
	}
	c.Data(http.StatusOK, "application/json", resp.Raw)
}

// handleChatStream replays the reply as server-sent events: one "chunk"
// event per word, then "done" carrying the full payload, or "error".
func (s *Server) handleChatStream(c *gin.Context) {
	req, ok := bindChat(c)
	if !ok {
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	resp, err := s.chat.StreamMessage(c.Request.Context(), req.Messages, req.SessionID, req.Model, func(chunk string) error {
		c.SSEvent("chunk", chunk)
		c.Writer.Flush()
		return nil
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("stream failed")
		c.SSEvent("error", err.Error())
		c.Writer.Flush()
		return
	}

	c.SSEvent("done", json.RawMessage(resp.Raw))
	c.Writer.Flush()
}

func (s *Server) handleModels(c *gin.Context) {
	available, err := s.chat.ListModels(c.Request.Context())
	body := gin.H{"models": available}
	if err != nil {
		body["error"] = err.Error()
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleCacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.chat.Store().Stats(c.Request.Context()))
}

func (s *Server) handleCacheClear(c *gin.Context) {
	n, err := s.chat.Store().Clear(c.Request.Context())
	if err != nil {
		writeJSONError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": n})
}

func (s *Server) handleCachePrune(c *gin.Context) {
	n := s.chat.Store().Prune(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"removed": n})
}
