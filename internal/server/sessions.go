package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vastra-ai/vastra/pkg/session"
)

func (s *Server) handleCreateSession(c *gin.Context) {
	state, err := s.sessions.Create(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create session"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"session_id": state.ID,
		"created_at": state.CreatedAt,
	})
}

func (s *Server) handleGetSession(c *gin.Context) {
	state, err := s.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id":   state.ID,
		"created_at":   state.CreatedAt,
		"last_updated": state.LastUpdated,
		"history":      state.History,
		"shown":        state.Shown.Values(),
		"rejected":     state.Rejected.Values(),
		"constraints":  state.Constraints,
	})
}

func (s *Server) handleDeleteSession(c *gin.Context) {
	if err := s.sessions.Delete(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (s *Server) handleSessionStats(c *gin.Context) {
	stats, err := s.sessions.Stats(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load session"})
		return
	}
	c.JSON(http.StatusOK, stats)
}
