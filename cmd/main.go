package main

import (
	"net/http"
	"os"
	"time"

	"qrlink/api/handler"
	apiMiddleware "qrlink/api/middleware"
	"qrlink/api/routes"
	"qrlink/config"
	"qrlink/internal/repository"
	"qrlink/internal/service"
	"qrlink/internal/utils"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
)

func main() {
	db := config.ConnectionDb()
	validate := validator.New()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	accessSecret := []byte(os.Getenv("JWT_SECRET"))
	issuer := os.Getenv("JWT_ISSUER")
	if len(accessSecret) == 0 {
		logger.Fatal("JWT_SECRET is required")
	}

	envelopeSecret := []byte(os.Getenv("QR_ENVELOPE_SECRET"))
	if len(envelopeSecret) == 0 {
		logger.Fatal("QR_ENVELOPE_SECRET is required")
	}

	accessManager := utils.JWTManager{
		Secret:         accessSecret,
		Issuer:         issuer,
		AccessTokenTTL: 15 * time.Minute,
	}
	accessIssuer := service.JWTAccessIssuer{Manager: &accessManager}

	qrConfig := service.QRLoginConfig{
		SessionTTL:  60 * time.Second,
		EnvelopeTTL: 120 * time.Second,
	}
	codec, err := service.NewEnvelopeCodec(envelopeSecret, qrConfig.EnvelopeTTL.Milliseconds(), service.RealClock{})
	if err != nil {
		logger.WithError(err).Fatal("envelope codec init failed")
	}

	userRepo := repository.NewUserRepository(db)
	securityRepo := repository.NewSecurityLogRepository(db)

	var sessionRepo repository.LoginSessionRepository
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		client, err := config.ConnectRedis(addr, os.Getenv("REDIS_PASSWORD"))
		if err != nil {
			logger.WithError(err).Fatal("redis connect failed")
		}
		sessionRepo = repository.NewRedisLoginSessionStore(client)
		logger.WithField("addr", addr).Info("using redis login session store")
	} else {
		sessionRepo = repository.NewLoginSessionRepository(db)
	}

	qrService := service.NewQRLoginService(
		sessionRepo,
		userRepo,
		securityRepo,
		codec,
		accessIssuer,
		service.RealClock{},
		qrConfig,
	)
	identityService := service.NewIdentityService(
		userRepo,
		securityRepo,
		service.BcryptPasswordHasher{},
		accessIssuer,
	)

	qrHandler := handler.NewQRLoginHandler(qrService, identityService, validate)

	app := echo.New()
	app.HideBanner = true
	app.HidePort = true
	app.Use(echoMiddleware.Recover())
	app.Use(echoMiddleware.RequestLoggerWithConfig(echoMiddleware.RequestLoggerConfig{
		LogStatus:   true,
		LogMethod:   true,
		LogURI:      true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v echoMiddleware.RequestLoggerValues) error {
			entry := logger.WithFields(logrus.Fields{
				"status": v.Status,
				"method": v.Method,
				"uri":    v.URI,
				"ip":     v.RemoteIP,
			})
			if v.Error != nil {
				entry.WithError(v.Error).Error("request")
				return nil
			}
			entry.Info("request")
			return nil
		},
	}))

	authMiddleware := apiMiddleware.AuthMiddleware{JWT: &accessManager}
	router := routes.NewRouter(app, qrHandler, authMiddleware)
	router.RegisterRoutes()

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	server := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.WithField("addr", addr).Info("server started")
	if err := app.StartServer(server); err != nil {
		logger.WithError(err).Fatal("server stopped")
	}
}
