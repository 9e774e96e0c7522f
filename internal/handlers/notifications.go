package handlers

import (
	"net/http"
	"strconv"

	"admissions-go/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	actionMarkAllRead = "markAllRead"
	actionClearRead   = "clearRead"
)

type notificationPatch struct {
	ID     uint   `json:"id"`
	Action string `json:"action"`
}

type NotificationHandler struct {
	log  *zap.Logger
	repo *repository.NotificationRepository
}

func NewNotificationHandler(log *zap.Logger, repo *repository.NotificationRepository) *NotificationHandler {
	return &NotificationHandler{log: log, repo: repo}
}

// List returns the newest notifications. ?limit= is capped by the repository.
func (h *NotificationHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	notes, err := h.repo.List(c.Request.Context(), limit)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	unread, err := h.repo.UnreadCount(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Header("X-Unread-Count", strconv.FormatInt(unread, 10))
	c.JSON(http.StatusOK, notes)
}

// Update marks one notification, or all of them, as read.
func (h *NotificationHandler) Update(c *gin.Context) {
	var req notificationPatch
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()

	switch {
	case req.Action == actionMarkAllRead:
		n, err := h.repo.MarkAllRead(ctx)
		if err != nil {
			respondError(c, h.log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "updated": n})
	case req.Action == "" && req.ID != 0:
		if err := h.repo.MarkRead(ctx, req.ID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
				return
			}
			respondError(c, h.log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected an id or action \"markAllRead\""})
	}
}

// Clear purges read notifications.
func (h *NotificationHandler) Clear(c *gin.Context) {
	var req notificationPatch
	if !bindJSON(c, &req) {
		return
	}
	if req.Action != actionClearRead {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected action \"clearRead\""})
		return
	}
	n, err := h.repo.ClearRead(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "deleted": n})
}
