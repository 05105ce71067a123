package service

import "errors"

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("unknown login token")
	ErrAlreadyUsed        = errors.New("login session already used")
	ErrSessionExpired     = errors.New("login session expired")
	ErrMalformedEnvelope  = errors.New("malformed envelope")
	ErrEnvelopeExpired    = errors.New("envelope expired")
	ErrUserNotFound       = errors.New("user not found")
)
