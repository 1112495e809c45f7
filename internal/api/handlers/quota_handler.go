package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/yoockh/mockinterview/internal/services"
	"github.com/yoockh/mockinterview/internal/utils"
)

type QuotaHandler struct {
	svc services.QuotaService
}

func NewQuotaHandler(svc services.QuotaService) *QuotaHandler {
	return &QuotaHandler{svc: svc}
}

func (h *QuotaHandler) Me(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	snap, err := h.svc.Get(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

type SetQuotaRequest struct {
	TotalMinutes *int `json:"total_minutes" binding:"required"`
}

// SetTotal is the admin grant; routes guard it with RequireAdmin.
func (h *QuotaHandler) SetTotal(c *gin.Context) {
	const op = "QuotaHandler.SetTotal"

	accountID := c.Param("account_id")
	if _, err := uuid.Parse(accountID); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "account_id must be a uuid", err))
		return
	}

	var req SetQuotaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "invalid request body", err))
		return
	}

	snap, err := h.svc.SetTotal(c.Request.Context(), accountID, *req.TotalMinutes)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}
