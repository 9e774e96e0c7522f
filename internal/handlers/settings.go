package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"admissions-go/internal/repository"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// settingsRequest leaves absent fields untouched.
type settingsRequest struct {
	WebhookURL     *string `json:"webhookUrl"`
	FallbackNumber *string `json:"fallbackNumber"`
	EmailAlerts    *bool   `json:"emailAlerts"`
	WhatsappAlerts *bool   `json:"whatsappAlerts"`
	WebhookLogs    *bool   `json:"webhookLogs"`
}

type SettingsHandler struct {
	log  *zap.Logger
	repo *repository.SettingsRepository
}

func NewSettingsHandler(log *zap.Logger, repo *repository.SettingsRepository) *SettingsHandler {
	return &SettingsHandler{log: log, repo: repo}
}

func (h *SettingsHandler) Get(c *gin.Context) {
	s, err := h.repo.Load(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *SettingsHandler) Save(c *gin.Context) {
	var req settingsRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.WebhookURL != nil {
		trimmed := strings.TrimSpace(*req.WebhookURL)
		if trimmed != "" && !isHTTPURL(trimmed) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":  "invalid request",
				"fields": gin.H{"webhookUrl": "webhookUrl must be an http(s) URL"},
			})
			return
		}
		req.WebhookURL = &trimmed
	}

	ctx := c.Request.Context()
	s, err := h.repo.Load(ctx)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	if req.WebhookURL != nil {
		s.WebhookURL = *req.WebhookURL
	}
	if req.FallbackNumber != nil {
		s.FallbackNumber = strings.TrimSpace(*req.FallbackNumber)
	}
	if req.EmailAlerts != nil {
		s.EmailAlerts = *req.EmailAlerts
	}
	if req.WhatsappAlerts != nil {
		s.WhatsappAlerts = *req.WhatsappAlerts
	}
	if req.WebhookLogs != nil {
		s.WebhookLogs = *req.WebhookLogs
	}

	saved, err := h.repo.Save(ctx, s)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	h.log.Info("Settings updated", zap.String("by", currentUserEmail(c)))
	c.JSON(http.StatusOK, gin.H{"success": true, "settings": saved})
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
