package service

import (
	"context"
	"encoding/json"
	"time"

	"qrlink/internal/entity"
	"qrlink/internal/repository"
	"qrlink/internal/utils"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const loginTokenBytes = 32

// QRLoginService drives the cross-device handshake: the secondary device
// creates a pending session and polls it; the primary device, already
// authenticated, confirms it. The store is the single source of truth; no
// session state is cached across calls.
type QRLoginService struct {
	sessions     repository.LoginSessionRepository
	users        repository.UserRepository
	securityLogs repository.SecurityLogRepository

	codec        *EnvelopeCodec
	accessTokens AccessTokenIssuer
	clock        Clock
	config       QRLoginConfig
}

func NewQRLoginService(
	sessions repository.LoginSessionRepository,
	users repository.UserRepository,
	securityLogs repository.SecurityLogRepository,
	codec *EnvelopeCodec,
	accessTokens AccessTokenIssuer,
	clock Clock,
	config QRLoginConfig,
) *QRLoginService {
	return &QRLoginService{
		sessions:     sessions,
		users:        users,
		securityLogs: securityLogs,
		codec:        codec,
		accessTokens: accessTokens,
		clock:        clock,
		config:       config,
	}
}

// Create issues a fresh pending session. The raw token goes back to the
// caller; only its hash is stored.
func (s *QRLoginService) Create(ctx context.Context, ipAddress *string) (*CreateResult, error) {
	rawToken, err := utils.GenerateRandomToken(loginTokenBytes)
	if err != nil {
		return nil, err
	}

	expiresAt := s.now().Add(s.sessionTTL())
	session := &entity.LoginSession{
		TokenHash: utils.HashToken(rawToken),
		Status:    entity.LoginStatusPending,
		ExpiresAt: expiresAt,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	_ = s.logSecurity(ctx, nil, ipAddress, entity.QRSessionCreated, nil)
	return &CreateResult{Token: rawToken, ExpiresAt: expiresAt}, nil
}

// Confirm binds an authenticated identity to a pending session. Checks run in
// order existence, already-used, expired so the caller gets the most specific
// diagnosis; the transition itself is a store-level compare-and-set, so of
// two concurrent confirms exactly one wins.
func (s *QRLoginService) Confirm(ctx context.Context, token string, userID uuid.UUID, ipAddress *string) error {
	if token == "" {
		return ErrInvalidInput
	}

	hash := utils.HashToken(token)
	session, err := s.sessions.FindByTokenHash(ctx, hash)
	if err != nil {
		return err
	}
	if session == nil {
		_ = s.logSecurity(ctx, &userID, ipAddress, entity.QRConfirmFailed, map[string]any{"reason": "unknown_token"})
		return ErrInvalidToken
	}
	if session.Status != entity.LoginStatusPending {
		_ = s.logSecurity(ctx, &userID, ipAddress, entity.QRConfirmFailed, map[string]any{"reason": "already_used"})
		return ErrAlreadyUsed
	}
	if session.IsExpired(s.now()) {
		_ = s.logSecurity(ctx, &userID, ipAddress, entity.QRConfirmFailed, map[string]any{"reason": "expired"})
		return ErrSessionExpired
	}

	won, err := s.sessions.ConfirmIfPending(ctx, hash, userID, s.now())
	if err != nil {
		return err
	}
	if !won {
		// Lost the race to a concurrent confirm.
		_ = s.logSecurity(ctx, &userID, ipAddress, entity.QRConfirmFailed, map[string]any{"reason": "already_used"})
		return ErrAlreadyUsed
	}

	_ = s.logSecurity(ctx, &userID, ipAddress, entity.QRConfirmed, nil)
	return nil
}

// Poll returns the current status snapshot. It never blocks waiting for a
// confirmation and reveals no identity for non-confirmed sessions. On a
// confirmed session it also signs the access token the secondary device uses
// to complete its own sign-in; issuance is stateless, so the call stays one
// store read.
func (s *QRLoginService) Poll(ctx context.Context, token string) (*PollResult, error) {
	if token == "" {
		return nil, ErrInvalidInput
	}

	session, err := s.sessions.FindByTokenHash(ctx, utils.HashToken(token))
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrInvalidToken
	}

	if session.Status == entity.LoginStatusConfirmed && session.UserID != nil {
		user, err := s.users.FindByID(ctx, *session.UserID)
		if err != nil {
			return nil, err
		}
		if user == nil {
			return nil, ErrUserNotFound
		}
		accessToken, ttl, err := s.accessTokens.IssueAccessToken(user.ID.String(), string(user.Role))
		if err != nil {
			return nil, err
		}
		return &PollResult{
			Status:      PollStatusConfirmed,
			UserID:      session.UserID,
			AccessToken: accessToken,
			ExpiresIn:   int64(ttl.Seconds()),
		}, nil
	}

	if session.IsExpired(s.now()) {
		return &PollResult{Status: PollStatusExpired}, nil
	}
	return &PollResult{Status: PollStatusPending}, nil
}

// Encode wraps a bare token for QR display.
func (s *QRLoginService) Encode(token string) (string, error) {
	if token == "" {
		return "", ErrInvalidInput
	}
	return s.codec.Encode(token)
}

// Decode unwraps a scanned envelope back to the bare token.
func (s *QRLoginService) Decode(envelope string) (string, error) {
	if envelope == "" {
		return "", ErrInvalidInput
	}
	return s.codec.Decode(envelope)
}

// CleanupExpired reclaims rows whose deadline has passed. Correctness never
// depends on it running; expiry is computed at read time.
func (s *QRLoginService) CleanupExpired(ctx context.Context) error {
	return s.sessions.CleanupExpired(ctx)
}

func (s *QRLoginService) logSecurity(
	ctx context.Context,
	userID *uuid.UUID,
	ipAddress *string,
	action entity.SecurityAction,
	metadata map[string]any,
) error {
	if s.securityLogs == nil {
		return nil
	}
	var payload datatypes.JSON
	if metadata != nil {
		bytes, err := json.Marshal(metadata)
		if err != nil {
			return err
		}
		payload = datatypes.JSON(bytes)
	}

	log := &entity.SecurityLog{
		UserID:    userID,
		IPAddress: ipAddress,
		Action:    action,
		Metadata:  payload,
	}
	return s.securityLogs.Log(ctx, log)
}

func (s *QRLoginService) now() time.Time {
	if s.clock == nil {
		return time.Now()
	}
	return s.clock.Now()
}

func (s *QRLoginService) sessionTTL() time.Duration {
	if s.config.SessionTTL > 0 {
		return s.config.SessionTTL
	}
	return 60 * time.Second
}
