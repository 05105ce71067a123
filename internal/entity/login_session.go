package entity

import (
	"time"

	"github.com/google/uuid"
)

type LoginStatus string

const (
	LoginStatusPending   LoginStatus = "pending"
	LoginStatusConfirmed LoginStatus = "confirmed"
)

// LoginSession is one QR handshake attempt. The raw token never touches the
// database; only its hash is stored. Expiry is derived from ExpiresAt at read
// time and never written back as a status.
type LoginSession struct {
	ID uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`

	TokenHash string      `gorm:"type:text;not null;uniqueIndex"`
	Status    LoginStatus `gorm:"type:login_status;default:'pending';not null"`

	UserID *uuid.UUID `gorm:"type:uuid;index"`
	User   *User      `gorm:"constraint:OnDelete:CASCADE"`

	ExpiresAt   time.Time
	ConfirmedAt *time.Time

	CreatedAt time.Time
}

// IsExpired reports whether the session deadline has passed at the given time.
func (s *LoginSession) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
