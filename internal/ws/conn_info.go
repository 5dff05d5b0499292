package ws

import (
	"time"

	"github.com/nufaill/fluffyCare-sub004/internal/models"
)

type ConnInfo struct {
	ConnID      string
	PartyID     string
	Role        models.Role
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}
