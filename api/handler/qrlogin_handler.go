package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"qrlink/api/middleware"
	"qrlink/internal/dto"
	"qrlink/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type QRLoginHandler struct {
	QRLogin  *service.QRLoginService
	Identity *service.IdentityService
	Validate *validator.Validate
}

func NewQRLoginHandler(qrLogin *service.QRLoginService, identity *service.IdentityService, validate *validator.Validate) *QRLoginHandler {
	return &QRLoginHandler{
		QRLogin:  qrLogin,
		Identity: identity,
		Validate: validate,
	}
}

// Login authenticates the primary device and hands it the bearer token it
// later presents to Confirm.
func (h *QRLoginHandler) Login(c echo.Context) error {
	var req dto.LoginRequest
	if err := decodeJSON(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, err)
	}
	if err := h.validate(req); err != nil {
		return writeError(c, http.StatusBadRequest, err)
	}
	result, err := h.Identity.Login(c.Request().Context(), req.Email, req.Password, stringPtr(c.RealIP()))
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, dto.LoginResponse{
		AccessToken: result.AccessToken,
		ExpiresIn:   result.ExpiresIn,
	})
}

// CreateSession starts a handshake for an unauthenticated secondary device.
func (h *QRLoginHandler) CreateSession(c echo.Context) error {
	result, err := h.QRLogin.Create(c.Request().Context(), stringPtr(c.RealIP()))
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, dto.CreateSessionResponse{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
	})
}

func (h *QRLoginHandler) Encode(c echo.Context) error {
	var req dto.EncodeRequest
	if err := decodeJSON(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, err)
	}
	if err := h.validate(req); err != nil {
		return writeError(c, http.StatusBadRequest, err)
	}
	encoded, err := h.QRLogin.Encode(req.Token)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, dto.EncodeResponse{Encoded: encoded})
}

func (h *QRLoginHandler) Decode(c echo.Context) error {
	var req dto.DecodeRequest
	if err := decodeJSON(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, err)
	}
	if err := h.validate(req); err != nil {
		return writeError(c, http.StatusBadRequest, err)
	}
	token, err := h.QRLogin.Decode(req.Encoded)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, dto.DecodeResponse{Token: token})
}

// Confirm binds the caller's identity to a pending session. RequireAuth runs
// before this handler; an unauthenticated caller never reaches the service.
func (h *QRLoginHandler) Confirm(c echo.Context) error {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		return writeError(c, http.StatusUnauthorized, errors.New("unauthorized"))
	}
	var req dto.ConfirmRequest
	if err := decodeJSON(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, err)
	}
	if err := h.validate(req); err != nil {
		return writeError(c, http.StatusBadRequest, err)
	}
	if err := h.QRLogin.Confirm(c.Request().Context(), req.Token, userID, stringPtr(c.RealIP())); err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, dto.ConfirmResponse{Success: true})
}

// Poll reports the session status to the secondary device. Identity is only
// present once the session is confirmed.
func (h *QRLoginHandler) Poll(c echo.Context) error {
	var req dto.PollRequest
	if err := decodeJSON(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, err)
	}
	if err := h.validate(req); err != nil {
		return writeError(c, http.StatusBadRequest, err)
	}
	result, err := h.QRLogin.Poll(c.Request().Context(), req.Token)
	if err != nil {
		return writeServiceError(c, err)
	}
	response := dto.PollResponse{Status: string(result.Status)}
	if result.Status == service.PollStatusConfirmed && result.UserID != nil {
		response.UserID = result.UserID.String()
		response.AccessToken = result.AccessToken
		response.ExpiresIn = result.ExpiresIn
	}
	return c.JSON(http.StatusOK, response)
}

func (h *QRLoginHandler) AdminCleanup(c echo.Context) error {
	if err := h.QRLogin.CleanupExpired(c.Request().Context()); err != nil {
		return writeServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *QRLoginHandler) validate(payload any) error {
	if h.Validate == nil {
		return nil
	}
	return h.Validate.Struct(payload)
}

func decodeJSON(c echo.Context, target any) error {
	decoder := json.NewDecoder(c.Request().Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeError(c echo.Context, status int, err error) error {
	return c.JSON(status, map[string]string{"message": err.Error()})
}

func writeServiceError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, service.ErrMalformedEnvelope):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, service.ErrInvalidToken):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrAlreadyUsed):
		status = http.StatusConflict
	case errors.Is(err, service.ErrSessionExpired), errors.Is(err, service.ErrEnvelopeExpired):
		status = http.StatusGone
	case errors.Is(err, service.ErrUserNotFound):
		status = http.StatusNotFound
	}
	return writeError(c, status, err)
}

func stringPtr(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}
