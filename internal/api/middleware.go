package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"daily-tracker/internal/engine"
)

const (
	userIDKey  = "userID"
	sessionKey = "session"
)

// authMiddleware resolves the bearer token to a user and opens that user's session.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			fail(c, http.StatusUnauthorized, "Missing or invalid token")
			return
		}

		userID, err := s.auth.Validate(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			fail(c, http.StatusUnauthorized, "Invalid token")
			return
		}

		session, err := s.manager.Open(c.Request.Context(), userID)
		if err != nil {
			failErr(c, err)
			return
		}

		c.Set(userIDKey, userID)
		c.Set(sessionKey, session)
		c.Next()
	}
}

func sessionFrom(c *gin.Context) *engine.Session {
	return c.MustGet(sessionKey).(*engine.Session)
}
