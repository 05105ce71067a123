package repository

import (
	"context"
	"errors"
	"time"

	"qrlink/internal/entity"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LoginSessionRepository is the store contract the handshake core depends on.
// ConfirmIfPending must be atomic with respect to concurrent confirmations of
// the same token: of two simultaneous calls exactly one may report the row as
// won.
type LoginSessionRepository interface {
	Create(ctx context.Context, session *entity.LoginSession) error
	FindByTokenHash(ctx context.Context, hash string) (*entity.LoginSession, error)
	ConfirmIfPending(ctx context.Context, hash string, userID uuid.UUID, confirmedAt time.Time) (bool, error)
	CleanupExpired(ctx context.Context) error
}

type loginSessionRepository struct {
	db *gorm.DB
}

func NewLoginSessionRepository(db *gorm.DB) LoginSessionRepository {
	return &loginSessionRepository{db: db}
}

func (r *loginSessionRepository) Create(ctx context.Context, s *entity.LoginSession) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *loginSessionRepository) FindByTokenHash(ctx context.Context, hash string) (*entity.LoginSession, error) {
	var session entity.LoginSession
	err := r.db.WithContext(ctx).
		Where("token_hash = ?", hash).
		First(&session).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &session, err
}

// ConfirmIfPending performs the pending -> confirmed transition as a single
// conditional UPDATE. The status filter closes the read-then-write race: the
// losing writer matches zero rows.
func (r *loginSessionRepository) ConfirmIfPending(
	ctx context.Context,
	hash string,
	userID uuid.UUID,
	confirmedAt time.Time,
) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&entity.LoginSession{}).
		Where("token_hash = ? AND status = ?", hash, entity.LoginStatusPending).
		Updates(map[string]any{
			"status":       entity.LoginStatusConfirmed,
			"user_id":      userID,
			"confirmed_at": &confirmedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *loginSessionRepository) CleanupExpired(ctx context.Context) error {
	return r.db.WithContext(ctx).
		Where("expires_at < NOW()").
		Delete(&entity.LoginSession{}).
		Error
}
