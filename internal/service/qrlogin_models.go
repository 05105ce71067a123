package service

import (
	"time"

	"github.com/google/uuid"
)

type CreateResult struct {
	Token     string
	ExpiresAt time.Time
}

type PollStatus string

const (
	PollStatusPending   PollStatus = "pending"
	PollStatusConfirmed PollStatus = "confirmed"
	PollStatusExpired   PollStatus = "expired"
)

// PollResult is the status snapshot returned to the secondary device. UserID
// and the access token are set only once the session is confirmed.
type PollResult struct {
	Status      PollStatus
	UserID      *uuid.UUID
	AccessToken string
	ExpiresIn   int64
}
