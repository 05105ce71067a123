package dto

import "time"

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

type CreateSessionResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type EncodeRequest struct {
	Token string `json:"token" validate:"required"`
}

type EncodeResponse struct {
	Encoded string `json:"encoded"`
}

type DecodeRequest struct {
	Encoded string `json:"encoded" validate:"required"`
}

type DecodeResponse struct {
	Token string `json:"token"`
}

type ConfirmRequest struct {
	Token string `json:"token" validate:"required"`
}

type ConfirmResponse struct {
	Success bool `json:"success"`
}

type PollRequest struct {
	Token string `json:"token" validate:"required"`
}

type PollResponse struct {
	Status      string `json:"status"`
	UserID      string `json:"user_id,omitempty"`
	AccessToken string `json:"access_token,omitempty"`
	ExpiresIn   int64  `json:"expires_in,omitempty"`
}
