package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nufaill/fluffyCare-sub004/internal/apperrors"
	"github.com/nufaill/fluffyCare-sub004/internal/middleware"
	"github.com/nufaill/fluffyCare-sub004/internal/models"
)

func identityOrAbort(c *gin.Context) (models.Identity, bool) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		respondError(c, apperrors.Unauthorized("missing identity", nil))
		return models.Identity{}, false
	}
	return identity, true
}

// actsAs reports whether the caller is the given party or an admin.
func actsAs(identity models.Identity, partyID string, role models.Role) bool {
	return identity.IsAdmin() || (identity.ID == partyID && identity.Role == role)
}

func forbidden() error {
	return apperrors.Forbidden("not a participant of this chat")
}

func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.Validation(key + " must be an integer")
	}
	return val, nil
}

func pageParams(c *gin.Context) (int, int, error) {
	page, err := queryInt(c, "page", 1)
	if err != nil {
		return 0, 0, err
	}
	limit, err := queryInt(c, "limit", models.DefaultPageLimit)
	if err != nil {
		return 0, 0, err
	}
	return page, limit, nil
}

func querySince(c *gin.Context) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query("since"))
	if raw == "" {
		return nil, nil
	}
	since, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, apperrors.Validation("since must be an RFC 3339 timestamp")
	}
	return &since, nil
}

// roleParam reads the role from the JSON body, falling back to the query string.
func roleParam(c *gin.Context) (models.Role, error) {
	var body struct {
		Role models.Role `json:"role"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			return "", apperrors.Validation("invalid request body")
		}
	}
	role := body.Role
	if role == "" {
		role = models.Role(c.Query("role"))
	}
	if !role.Valid() {
		return "", apperrors.Validation("role must be User or Shop")
	}
	return role, nil
}
