package handlers

import (
	"net/http"
	"strings"

	"admissions-go/internal/models"
	"admissions-go/internal/repository"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AttendeeHandler struct {
	log  *zap.Logger
	repo *repository.AttendeeRepository
}

func NewAttendeeHandler(log *zap.Logger, repo *repository.AttendeeRepository) *AttendeeHandler {
	return &AttendeeHandler{log: log, repo: repo}
}

// List returns attendees newest first. ?testType= narrows to one test.
func (h *AttendeeHandler) List(c *gin.Context) {
	var testType models.TestType
	if raw := strings.TrimSpace(c.Query("testType")); raw != "" {
		testType = models.ParseTestType(raw)
	}
	attendees, err := h.repo.List(c.Request.Context(), testType)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, attendees)
}

// Clear truncates the attendee table.
func (h *AttendeeHandler) Clear(c *gin.Context) {
	n, err := h.repo.Clear(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	h.log.Warn("Attendee data cleared",
		zap.Int64("deleted", n),
		zap.String("by", currentUserEmail(c)),
	)
	c.JSON(http.StatusOK, gin.H{"success": true, "deleted": n})
}
