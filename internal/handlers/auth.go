package handlers

import (
	"net/http"
	"time"

	"admissions-go/internal/config"
	"admissions-go/internal/models"
	"admissions-go/internal/repository"
	"admissions-go/internal/utils"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Context and session keys shared with the router middleware.
const (
	UserContextKey = "user"
	CSRFContextKey = "csrf_token"
	SessionUserKey = "userID"
)

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required"`
}

type AuthHandler struct {
	log   *zap.Logger
	conf  config.ServerConfig
	users *repository.UserRepository
}

func NewAuthHandler(log *zap.Logger, conf config.ServerConfig, users *repository.UserRepository) *AuthHandler {
	return &AuthHandler{log: log, conf: conf, users: users}
}

// Login checks credentials, starts a cookie session and issues a bearer
// token for API clients.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.users.GetUserByEmail(c.Request.Context(), utils.NormalizeEmail(req.Email))
	if err != nil || !user.CheckPassword(req.Password) {
		h.log.Warn("Failed login attempt", zap.String("email", req.Email), zap.String("client_ip", c.ClientIP()))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password."})
		return
	}

	session := sessions.Default(c)
	session.Set(SessionUserKey, user.ID)
	if err := session.Save(); err != nil {
		h.log.Error("Failed to save session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to login"})
		return
	}

	token, expires, err := utils.IssueToken(h.conf.JWTSecret, user.ID, h.tokenTTL())
	if err != nil {
		h.log.Error("Failed to issue token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to login"})
		return
	}

	h.log.Info("User logged in", zap.Uint("user_id", user.ID))
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"token":       token,
		"expiresAt":   expires,
		"user":        user,
		"permissions": user.Role.PermissionList(),
	})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	if err := session.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to logout"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Me returns the current operator with the CSRF token the dashboard echoes
// back on unsafe requests.
func (h *AuthHandler) Me(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":        user,
		"permissions": user.Role.PermissionList(),
		"csrfToken":   c.GetString(CSRFContextKey),
	})
}

func (h *AuthHandler) ChangePassword(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	var req changePasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	if !user.CheckPassword(req.CurrentPassword) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Incorrect current password"})
		return
	}
	if !utils.IsComplexPassword(req.NewPassword) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "invalid request",
			"fields": gin.H{"newPassword": "newPassword needs 8+ characters with upper, lower, digit and symbol"},
		})
		return
	}
	if err := h.users.UpdateUserPassword(c.Request.Context(), user.ID, req.NewPassword); err != nil {
		respondError(c, h.log, err)
		return
	}
	h.log.Info("Password changed", zap.Uint("user_id", user.ID))
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Password updated successfully"})
}

func (h *AuthHandler) tokenTTL() time.Duration {
	if h.conf.TokenTTL <= 0 {
		return 12 * time.Hour
	}
	return time.Duration(h.conf.TokenTTL) * time.Minute
}

func currentUser(c *gin.Context) *models.User {
	v, ok := c.Get(UserContextKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}

func currentUserEmail(c *gin.Context) string {
	if user := currentUser(c); user != nil {
		return user.Email
	}
	return ""
}
