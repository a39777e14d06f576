package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/hris-leave-api/internal/middleware"
	"github.com/noah-isme/hris-leave-api/internal/models"
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

func hasRole(claims *models.JWTClaims, roles ...models.UserRole) bool {
	if claims == nil {
		return false
	}
	for _, role := range roles {
		if claims.Role == role {
			return true
		}
	}
	return false
}

func callerName(claims *models.JWTClaims) string {
	if claims.FullName != "" {
		return claims.FullName
	}
	if claims.Email != "" {
		return claims.Email
	}
	return claims.UserID
}
