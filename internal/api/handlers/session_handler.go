package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/mockinterview/internal/services"
	"github.com/yoockh/mockinterview/internal/utils"
)

type SessionHandler struct {
	svc services.SessionService
}

func NewSessionHandler(svc services.SessionService) *SessionHandler {
	return &SessionHandler{svc: svc}
}

// Start accepts an empty body; every option is an override.
func (h *SessionHandler) Start(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req services.StartOptions
	if c.Request.ContentLength != 0 {
		// chunked bodies report -1 and may still be empty
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(c, utils.E(utils.CodeInvalidArgument, "SessionHandler.Start", "invalid request body", err))
			return
		}
	}

	conv, err := h.svc.Start(c.Request.Context(), userID, c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h *SessionHandler) End(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	conversationID := c.Param("conversation_id")
	if err := h.svc.End(c.Request.Context(), userID, conversationID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation_id": conversationID, "status": "ended"})
}

func (h *SessionHandler) Status(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	st, err := h.svc.Status(c.Request.Context(), userID, c.Param("conversation_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if len(st.Raw) > 0 {
		c.Data(http.StatusOK, "application/json", st.Raw)
		return
	}
	c.JSON(http.StatusOK, st)
}
