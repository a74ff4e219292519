package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/civicdesk/backend/internal/models"
)

const (
	AdminKeyHeader  = "X-Admin-Key"
	ActorRoleHeader = "X-Actor-Role"
	ActorRoleKey    = "actor_role"
)

func abortJSON(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

func keyMatches(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// AdminKey guards a route group. An empty required key disables the check.
func AdminKey(required string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if required == "" {
			c.Next()
			return
		}
		if !keyMatches(c.GetHeader(AdminKeyHeader), required) {
			abortJSON(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid admin key")
			return
		}
		c.Next()
	}
}

// Actor resolves the acting role from X-Actor-Role, defaulting to citizen.
// Claiming the admin role requires the admin key when one is configured.
func Actor(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := models.ActorCitizen
		if raw := strings.TrimSpace(c.GetHeader(ActorRoleHeader)); raw != "" {
			parsed, ok := models.ParseActorRole(raw)
			if !ok {
				abortJSON(c, http.StatusBadRequest, "VALIDATION_ERROR", "Unknown actor role")
				return
			}
			role = parsed
		}
		if role == models.ActorSystem {
			abortJSON(c, http.StatusForbidden, "FORBIDDEN", "System role is reserved")
			return
		}
		if role == models.ActorAdmin && adminKey != "" && !keyMatches(c.GetHeader(AdminKeyHeader), adminKey) {
			abortJSON(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid admin key")
			return
		}
		c.Set(ActorRoleKey, role)
		c.Next()
	}
}

func ActorRole(c *gin.Context) models.ActorRole {
	if v, ok := c.Get(ActorRoleKey); ok {
		if role, ok := v.(models.ActorRole); ok {
			return role
		}
	}
	return models.ActorCitizen
}
