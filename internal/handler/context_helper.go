package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/madrasa-adp/intake-api/internal/middleware"
	"github.com/madrasa-adp/intake-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

func actorFromContext(c *gin.Context) string {
	return claimsFromContext(c).Actor()
}

func idempotencyKey(c *gin.Context) string {
	return c.GetHeader("X-Idempotency-Key")
}
