package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/mockinterview/internal/services"
)

// ReferenceHandler serves the lookup catalogs. They never fail.
type ReferenceHandler struct {
	svc services.ReferenceService
}

func NewReferenceHandler(svc services.ReferenceService) *ReferenceHandler {
	return &ReferenceHandler{svc: svc}
}

func (h *ReferenceHandler) InterviewTypes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"items": h.svc.ListInterviewTypes(c.Request.Context())})
}

func (h *ReferenceHandler) ExperienceLevels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"items": h.svc.ListExperienceLevels(c.Request.Context())})
}

func (h *ReferenceHandler) DifficultyLevels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"items": h.svc.ListDifficultyLevels(c.Request.Context())})
}
