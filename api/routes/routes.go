package routes

import (
	"time"

	"qrlink/api/handler"
	"qrlink/api/middleware"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

type Router struct {
	Echo           *echo.Echo
	QRLogin        *handler.QRLoginHandler
	AuthMiddleware middleware.AuthMiddleware
	PublicRate     *middleware.RateLimiter
	LoginRate      *middleware.RateLimiter
	PollRate       *middleware.RateLimiter
}

func NewRouter(e *echo.Echo, qrHandler *handler.QRLoginHandler, authMiddleware middleware.AuthMiddleware) *Router {
	return &Router{
		Echo:           e,
		QRLogin:        qrHandler,
		AuthMiddleware: authMiddleware,
		PublicRate:     middleware.NewRateLimiter(rate.Limit(5), 10, 5*time.Minute),
		LoginRate:      middleware.NewRateLimiter(rate.Limit(2), 4, 10*time.Minute),
		// Polling clients re-request on a short interval, so this class is looser.
		PollRate: middleware.NewRateLimiter(rate.Limit(10), 20, 5*time.Minute),
	}
}

func (r *Router) RegisterRoutes() {
	e := r.Echo

	e.POST("/auth/login", r.QRLogin.Login, r.LoginRate.Middleware())

	e.POST("/auth/qr/create", r.QRLogin.CreateSession, r.PublicRate.Middleware())
	e.POST("/auth/qr/encode", r.QRLogin.Encode, r.PublicRate.Middleware())
	e.POST("/auth/qr/decode", r.QRLogin.Decode, r.PublicRate.Middleware())
	e.POST("/auth/qr/confirm", r.QRLogin.Confirm, r.AuthMiddleware.RequireAuth)
	e.POST("/auth/qr/poll", r.QRLogin.Poll, r.PollRate.Middleware())

	e.POST("/admin/qr/cleanup", r.QRLogin.AdminCleanup, r.AuthMiddleware.RequireAuth, middleware.RequireRole("admin"))
}
