package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/nufaill/fluffyCare-sub004/internal/apperrors"
	"github.com/nufaill/fluffyCare-sub004/internal/logger"
)

func respondError(c *gin.Context, err error) {
	appErr := apperrors.From(err)
	if appErr.Status >= http.StatusInternalServerError {
		logger.Error("%s %s failed request_id=%s: %v", c.Request.Method, c.FullPath(), requestID(c), err)
	}
	c.JSON(appErr.Status, gin.H{"error": gin.H{"code": appErr.Code, "message": appErr.Message}})
}

// bindError turns a ShouldBind failure into a validation error with a field message.
func bindError(err error) error {
	var validationErr validator.ValidationErrors
	if !errors.As(err, &validationErr) || len(validationErr) == 0 {
		return apperrors.Validation("invalid request body")
	}
	fe := validationErr[0]
	field := lowerFirst(fe.Field())
	switch fe.Tag() {
	case "required":
		return apperrors.Validation(field + " is required")
	case "party_role":
		return apperrors.Validation(field + " must be User or Shop")
	case "message_type":
		return apperrors.Validation(field + " must be one of Text, Image, Video, Audio, File")
	case "max":
		return apperrors.Validation(field + " must be at most " + fe.Param())
	case "min":
		return apperrors.Validation(field + " must be at least " + fe.Param())
	}
	return apperrors.Validation(field + " is invalid")
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
