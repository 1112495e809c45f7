package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/mockinterview/internal/utils"
)

type APIError struct {
	Code    utils.Code     `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func writeError(c *gin.Context, err error) {
	status := utils.HTTPStatus(err)
	_ = c.Error(err)

	var ae *utils.AppError
	if errors.As(err, &ae) {
		c.JSON(status, APIError{
			Code:    ae.Code,
			Message: ae.Message,
			Details: details(err),
		})
		return
	}

	c.JSON(status, APIError{
		Code:    utils.CodeInternal,
		Message: http.StatusText(status),
	})
}

// details exposes the structured part of quota and provider failures.
func details(err error) map[string]any {
	var short *utils.QuotaShortfall
	if errors.As(err, &short) {
		return map[string]any{"remaining_minutes": short.Remaining, "required_minutes": short.Required}
	}
	var re *utils.RemoteError
	if errors.As(err, &re) {
		return map[string]any{"service": re.Service, "status": re.StatusCode, "body": re.Body}
	}
	return nil
}

func requireUserID(c *gin.Context) (string, bool) {
	if v, ok := c.Get("user_id"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s, true
		}
	}

	writeError(c, utils.E(utils.CodeUnauthorized, "Auth", "unauthorized", nil))
	return "", false
}

// userName is the display name from the token, if any.
func userName(c *gin.Context) string {
	s, _ := c.Get("user_name")
	name, _ := s.(string)
	return name
}
