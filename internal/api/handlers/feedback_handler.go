package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/mockinterview/internal/services"
	"github.com/yoockh/mockinterview/internal/utils"
)

type FeedbackHandler struct {
	svc services.FeedbackService
}

func NewFeedbackHandler(svc services.FeedbackService) *FeedbackHandler {
	return &FeedbackHandler{svc: svc}
}

type StartFeedbackRequest struct {
	ConversationID string `json:"conversation_id"`
}

func (h *FeedbackHandler) Start(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req StartFeedbackRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(c, utils.E(utils.CodeInvalidArgument, "FeedbackHandler.Start", "invalid request body", err))
		return
	}

	iv, err := h.svc.Start(c.Request.Context(), userID, c.Param("id"), req.ConversationID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"interview_id":               iv.ID,
		"feedback_processing_status": iv.FeedbackProcessingStatus,
		"feedback_requested_at":      iv.FeedbackRequestedAt,
	})
}
