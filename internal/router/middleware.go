package router

import (
	"net/http"
	"strings"

	"admissions-go/internal/handlers"
	"admissions-go/internal/models"
	"admissions-go/internal/repository"
	"admissions-go/internal/utils"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// bearerContextKey marks requests authenticated by token rather than cookie.
const bearerContextKey = "auth_bearer"

// UserLoaderMiddleware resolves the operator from a bearer token or the
// session and stores it in the context. A session pointing at a deleted user
// is cleared.
func UserLoaderMiddleware(users *repository.UserRepository, jwtSecret string, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearerToken(c); ok {
			userID, err := utils.ParseToken(jwtSecret, token)
			if err != nil {
				log.Debug("Rejected bearer token", zap.Error(err))
				c.Next()
				return
			}
			user, err := users.GetUserByID(c.Request.Context(), userID)
			if err == nil {
				c.Set(handlers.UserContextKey, user)
				c.Set(bearerContextKey, true)
			}
			c.Next()
			return
		}

		session := sessions.Default(c)
		userID, ok := session.Get(handlers.SessionUserKey).(uint)
		if !ok {
			c.Next()
			return
		}

		user, err := users.GetUserByID(c.Request.Context(), userID)
		if err != nil {
			session.Clear()
			session.Options(sessions.Options{Path: "/", MaxAge: -1})
			_ = session.Save()
			c.Next()
			return
		}

		c.Set(handlers.UserContextKey, user)
		c.Next()
	}
}

// AuthRequired rejects requests without a loaded user.
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get(handlers.UserContextKey); !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}
		c.Next()
	}
}

// RequirePermission rejects users whose role lacks perm. It must run after
// AuthRequired.
func RequirePermission(perm string, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, _ := c.Get(handlers.UserContextKey)
		user, ok := v.(*models.User)
		if !ok || !user.Role.Has(perm) {
			log.Warn("Permission denied",
				zap.String("permission", perm),
				zap.String("path", c.FullPath()),
			)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "permission denied"})
			return
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(header[7:])
	return token, token != ""
}
