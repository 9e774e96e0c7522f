package handlers

import (
	"net/http"
	"strings"

	"admissions-go/internal/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	nurtureGenerate = "generate"
	nurtureSend     = "send"
	nurtureAutoCall = "auto_call"
)

type nurtureRequest struct {
	ID      string `json:"id" binding:"notblank"`
	Type    string `json:"type"`
	Action  string `json:"action"`
	Content string `json:"content"`
}

type NurtureHandler struct {
	log          *zap.Logger
	orchestrator *services.Orchestrator
}

func NewNurtureHandler(log *zap.Logger, orchestrator *services.Orchestrator) *NurtureHandler {
	return &NurtureHandler{log: log, orchestrator: orchestrator}
}

// Handle drives the orchestrator. A missing action means send, which drafts
// first when no content is given.
func (h *NurtureHandler) Handle(c *gin.Context) {
	var req nurtureRequest
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	action := strings.ToLower(strings.TrimSpace(req.Action))
	if action == "" {
		action = nurtureSend
	}

	if action == nurtureAutoCall {
		res, err := h.orchestrator.AutoCall(ctx, req.ID)
		if err != nil {
			respondError(c, h.log, err)
			return
		}
		c.JSON(http.StatusOK, dispatchBody(res))
		return
	}

	ch, err := services.ParseChannel(req.Type)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	switch action {
	case nurtureGenerate:
		d, err := h.orchestrator.Generate(ctx, req.ID, ch)
		if err != nil {
			respondError(c, h.log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":  true,
			"draft":    d,
			"degraded": d.Degraded,
			"message":  "Draft ready.",
		})
	case nurtureSend:
		res, err := h.orchestrator.Send(ctx, req.ID, ch, req.Content, currentUserEmail(c))
		if err != nil {
			respondError(c, h.log, err)
			return
		}
		c.JSON(http.StatusOK, dispatchBody(res))
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "action must be one of generate, send, auto_call"})
	}
}

func dispatchBody(res *services.DispatchResult) gin.H {
	body := gin.H{"success": true, "message": res.Message}
	if res.Draft != nil {
		body["draft"] = res.Draft
		body["degraded"] = res.Draft.Degraded
	}
	if res.Link != "" {
		body["link"] = res.Link
	}
	if res.AlreadyCalled {
		body["alreadyCalled"] = true
	}
	return body
}
