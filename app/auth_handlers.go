// Package app provides public health and authenticated account endpoints.
package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Health is a public health check endpoint.
func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Tiers lists the subscription catalog.
func (s *Server) Tiers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tiers": s.catalog.All()})
}

// Usage returns this month's metered usage for the authenticated user.
func (s *Server) Usage(c *gin.Context) {
	acct, ok := accountFrom(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}
	c.JSON(http.StatusOK, s.gate.Usage(c.Request.Context(), acct))
}
