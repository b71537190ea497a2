package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/rideya/rideya-backend/internal/config"
	"github.com/rideya/rideya-backend/internal/db"
	"github.com/rideya/rideya-backend/internal/goroutine"
	httpHandlers "github.com/rideya/rideya-backend/internal/http/handlers"
	httpRouter "github.com/rideya/rideya-backend/internal/http/router"
	"github.com/rideya/rideya-backend/internal/infrastructure/mail"
	"github.com/rideya/rideya-backend/internal/infrastructure/payments"
	"github.com/rideya/rideya-backend/internal/infrastructure/sms"
	"github.com/rideya/rideya-backend/internal/logger"
	"github.com/rideya/rideya-backend/internal/repository"
	"github.com/rideya/rideya-backend/internal/service"
	"github.com/rideya/rideya-backend/internal/ws"
)

const notificationWorkers = 4

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	logLevel := "info"
	if cfg.Env == "development" {
		logLevel = "debug"
	}
	logger.Init(logLevel, cfg.Env)
	entry := logger.Service("server")

	// Подключение к базе и миграции.
	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		entry.Fatalf("main: ошибка подключения к базе: %v", err)
	}
	defer safeClose(dbConn)

	if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
		entry.Fatalf("main: ошибка миграций: %v", err)
	}

	// Внешние провайдеры подключаются только при наличии учётных данных.
	var smsSender service.SMSSender
	if cfg.Twilio.Enabled() {
		smsSender = sms.NewTwilioSender(cfg.Twilio)
	} else {
		entry.Warn("main: Twilio не настроен, SMS работают в режиме разработки")
	}

	var (
		mailer        service.Mailer
		welcomeMailer service.WelcomeMailer
	)
	if cfg.SMTP.Enabled() {
		smtp := mail.NewSMTPMailer(cfg.SMTP)
		mailer, welcomeMailer = smtp, smtp
	} else {
		entry.Warn("main: SMTP не настроен, письма не отправляются")
	}

	if cfg.Stripe.SecretKey == "" {
		entry.Warn("main: STRIPE_SECRET_KEY не задан, платежи будут отклоняться")
	}

	tokenManager := service.NewTokenManager(cfg.JWTSecret, cfg.RefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	cache := service.NewCacheService()
	defer cache.Close()

	// Репозитории.
	userRepo := repository.NewUserRepository(dbConn)
	otpRepo := repository.NewOTPRepository(dbConn)
	bookingRepo := repository.NewBookingRepository(dbConn)
	vehicleRepo := repository.NewVehicleRepository(dbConn)
	paymentRepo := repository.NewPaymentRepository(dbConn)
	notificationRepo := repository.NewNotificationRepository(dbConn)

	// Вебсокеты.
	hub := ws.NewHub(ctx)
	goroutine.SafeGo("ws-hub", hub.Run)

	// Сервисы.
	otpService := service.NewOTPService(otpRepo, smsSender, cfg.OTP.TTL, cfg.OTP.MaxAttempts, cfg.Env == "development")
	goroutine.SafeGoWithContext(ctx, "otp-cleanup", func(ctx context.Context) {
		otpService.RunCleanup(ctx, cfg.OTP.CleanupEvery)
	})

	authService := service.NewAuthService(userRepo, tokenManager, otpService, welcomeMailer)

	var googleOAuth *service.GoogleOAuth
	if cfg.Google.Enabled() {
		googleOAuth = service.NewGoogleOAuth(cfg.Google, cache)
	}

	bookingService := service.NewBookingService(bookingRepo, vehicleRepo, service.NewFareCalculator(cfg.Fare), hub)
	hub.SetRideHandler(bookingService)

	paymentService := service.NewPaymentService(payments.NewStripeGateway(cfg.Stripe), paymentRepo, bookingRepo)

	notificationService := service.NewNotificationService(notificationRepo, mailer, smsSender, hub, notificationWorkers)
	notificationService.Start(ctx)
	defer notificationService.Close()

	// Роутер.
	engine := httpRouter.SetupRouter(cfg, httpRouter.Deps{
		Auth:         httpHandlers.NewAuthHandler(authService, googleOAuth, cfg.FrontendURL),
		Booking:      httpHandlers.NewBookingHandler(bookingService),
		Payment:      httpHandlers.NewPaymentHandler(paymentService),
		Notification: httpHandlers.NewNotificationHandler(notificationService),
		Health:       httpHandlers.NewHealthHandler(dbConn, cfg.Services),
		WS:           httpHandlers.NewWSHandler(hub, tokenManager, cfg.AllowedOrigins),
		Tokens:       tokenManager,
		Users:        authService,
		Cache:        cache,
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Завершаем сервер при получении сигнала.
	goroutine.SafeGo("http-shutdown", func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			entry.WithError(err).Error("main: ошибка остановки http сервера")
		}
	})

	entry.WithField("services", cfg.Services).Infof("main: HTTP сервер запущен на порту %s", cfg.HTTPPort)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		entry.Fatalf("main: сервер завершился с ошибкой: %v", err)
	}
}

// safeClose закрывает соединение с базой.
func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		logger.Log.WithError(err).Error("main: ошибка закрытия базы")
	}
}
