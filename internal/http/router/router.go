package router

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rideya/rideya-backend/internal/config"
	"github.com/rideya/rideya-backend/internal/http/handlers"
	"github.com/rideya/rideya-backend/internal/http/middleware"
	"github.com/rideya/rideya-backend/internal/http/response"
	"github.com/rideya/rideya-backend/internal/models"
	"github.com/rideya/rideya-backend/internal/pkg/apperror"
	"github.com/rideya/rideya-backend/internal/service"
)

// Deps собирает хэндлеры и зависимости middleware. Хэндлеры отключённых сервисов могут быть nil.
type Deps struct {
	Auth         *handlers.AuthHandler
	Booking      *handlers.BookingHandler
	Payment      *handlers.PaymentHandler
	Notification *handlers.NotificationHandler
	Health       *handlers.HealthHandler
	WS           *handlers.WSHandler
	Tokens       *service.TokenManager
	Users        middleware.UserLookup
	Cache        *service.CacheService
}

func SetupRouter(cfg *config.Config, d Deps) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.NoRoute(func(c *gin.Context) {
		response.Error(c, apperror.ErrRouteNotFound)
	})

	if d.Health != nil {
		r.GET("/health", d.Health.Health)
	}

	api := r.Group("/api")
	api.Use(middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod))

	authRequired := middleware.AuthMiddleware(d.Tokens, d.Users, d.Cache)
	admins := middleware.Authorize(models.RoleSuperAdmin, models.RoleClientAdmin)

	if cfg.ServiceEnabled("auth") && d.Auth != nil {
		authGroup := api.Group("/auth")
		authGroup.Use(middleware.RateLimitMiddleware(cfg.AuthRateLimit, time.Minute))
		{
			authGroup.POST("/register/email", d.Auth.RegisterEmail)
			authGroup.POST("/login/email", d.Auth.LoginEmail)
			authGroup.POST("/register/phone/send-otp", d.Auth.SendOTP)
			authGroup.POST("/register/phone/verify-otp", d.Auth.VerifyOTP)
			authGroup.GET("/google", d.Auth.GoogleLogin)
			authGroup.GET("/google/callback", d.Auth.GoogleCallback)
			authGroup.POST("/refresh", d.Auth.Refresh)
			authGroup.POST("/logout", authRequired, d.Auth.Logout)
			authGroup.GET("/me", authRequired, d.Auth.Me)
		}
	}

	if cfg.ServiceEnabled("booking") && d.Booking != nil {
		if d.WS != nil {
			api.GET("/bookings/ws", d.WS.Handle)
		}

		bookings := api.Group("/bookings")
		bookings.Use(authRequired)
		{
			bookings.POST("", middleware.Authorize(models.RolePassenger, models.RoleTourist), d.Booking.CreateBooking)
			bookings.GET("", d.Booking.ListBookings)
			bookings.GET("/:id", middleware.UUIDValidator("id"), d.Booking.GetBooking)
			bookings.POST("/:id/accept", middleware.UUIDValidator("id"), middleware.Authorize(models.RoleDriver), d.Booking.AcceptBooking)
			bookings.POST("/:id/status", middleware.UUIDValidator("id"), d.Booking.UpdateStatus)
		}

		drivers := api.Group("/drivers")
		drivers.Use(authRequired, middleware.Authorize(models.RoleDriver))
		{
			drivers.POST("/location", d.Booking.DriverLocation)
			drivers.POST("/vehicles", d.Booking.RegisterVehicle)
			drivers.GET("/vehicles", d.Booking.ListVehicles)
		}
	}

	if cfg.ServiceEnabled("payment") && d.Payment != nil {
		api.POST("/webhooks/stripe", d.Payment.StripeWebhook)

		payments := api.Group("/payments")
		payments.Use(authRequired)
		{
			payments.POST("/create-intent", d.Payment.CreateIntent)
			payments.POST("/confirm", d.Payment.Confirm)
			payments.POST("/refund", admins, d.Payment.Refund)
		}
	}

	if cfg.ServiceEnabled("notification") && d.Notification != nil {
		notifications := api.Group("/notifications")
		notifications.Use(authRequired)
		{
			notifications.GET("", d.Notification.ListNotifications)
			notifications.PUT("/:id/read", middleware.UUIDValidator("id"), d.Notification.MarkAsRead)
			notifications.POST("/email", admins, d.Notification.SendEmail)
			notifications.POST("/sms", admins, d.Notification.SendSMS)
			notifications.POST("/push", admins, d.Notification.SendPush)
			notifications.POST("/bulk", admins, d.Notification.SendBulk)
		}
	}

	return r
}
