package service

import (
	"context"
	"encoding/json"
	"strings"

	"qrlink/internal/entity"
	"qrlink/internal/repository"
	"qrlink/internal/utils"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const dummyPasswordHash = "$2a$10$CwTycUXWue0Thq9StjUM0uJ8yQbWc1x9uxw2sQ2sXUNx5x9xJ9F2S"

type LoginResult struct {
	AccessToken string
	ExpiresIn   int64
}

// IdentityService is the identity-provider surface carried by this service:
// one password login issuing the token the primary device presents when
// confirming a handshake.
type IdentityService struct {
	users        repository.UserRepository
	securityLogs repository.SecurityLogRepository

	passwordHash PasswordHasher
	accessTokens AccessTokenIssuer
}

func NewIdentityService(
	users repository.UserRepository,
	securityLogs repository.SecurityLogRepository,
	passwordHash PasswordHasher,
	accessTokens AccessTokenIssuer,
) *IdentityService {
	return &IdentityService{
		users:        users,
		securityLogs: securityLogs,
		passwordHash: passwordHash,
		accessTokens: accessTokens,
	}
}

func (s *IdentityService) Login(ctx context.Context, email string, password string, ipAddress *string) (*LoginResult, error) {
	if strings.TrimSpace(email) == "" || strings.TrimSpace(password) == "" {
		return nil, ErrInvalidInput
	}

	normalized := utils.NormalizeEmail(email)
	user, err := s.users.FindByEmail(ctx, normalized)
	if err != nil {
		return nil, err
	}
	if user == nil || user.PasswordHash == nil {
		// Burn a verify so unknown and known users take the same time.
		_ = s.passwordHash.Verify(dummyPasswordHash, password)
		_ = s.logSecurity(ctx, nil, ipAddress, entity.LoginFailed, map[string]any{"email": normalized})
		return nil, ErrInvalidCredentials
	}

	if !s.passwordHash.Verify(*user.PasswordHash, password) {
		_ = s.logSecurity(ctx, &user.ID, ipAddress, entity.LoginFailed, map[string]any{"email": normalized})
		return nil, ErrInvalidCredentials
	}

	accessToken, ttl, err := s.accessTokens.IssueAccessToken(user.ID.String(), string(user.Role))
	if err != nil {
		return nil, err
	}

	_ = s.logSecurity(ctx, &user.ID, ipAddress, entity.LoginSuccess, nil)
	return &LoginResult{
		AccessToken: accessToken,
		ExpiresIn:   int64(ttl.Seconds()),
	}, nil
}

func (s *IdentityService) logSecurity(
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
