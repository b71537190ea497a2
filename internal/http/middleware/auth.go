package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rideya/rideya-backend/internal/http/response"
	"github.com/rideya/rideya-backend/internal/models"
	"github.com/rideya/rideya-backend/internal/pkg/apperror"
	"github.com/rideya/rideya-backend/internal/service"
)

// Context ключи для gin.Context.
const (
	ContextUserIDKey = "userID"
	ContextRoleKey   = "role"
	ContextEmailKey  = "email"
)

const activeUserTTL = 30 * time.Second

// UserLookup загружает пользователя для проверки активности. Реализуется AuthService.
type UserLookup interface {
	CurrentUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// AuthMiddleware проверяет Bearer access токен и то, что пользователь существует и активен.
// Флаг активности кэшируется ненадолго, чтобы не ходить в БД на каждый запрос.
func AuthMiddleware(tokens *service.TokenManager, users UserLookup, cache *service.CacheService) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			response.Abort(c, apperror.New(apperror.ErrCodeUnauthorized, "требуется авторизация"))
			return
		}

		claims, err := tokens.ParseAccess(strings.TrimPrefix(auth, "Bearer "))
		if err != nil {
			response.Abort(c, apperror.New(apperror.ErrCodeUnauthorized, "токен невалиден или истёк"))
			return
		}

		userID, err := uuid.Parse(claims.UserID)
		if err != nil {
			response.Abort(c, apperror.New(apperror.ErrCodeUnauthorized, "токен невалиден или истёк"))
			return
		}

		if !isActiveUser(c.Request.Context(), userID, users, cache) {
			response.Abort(c, apperror.New(apperror.ErrCodeUnauthorized, "пользователь не найден или заблокирован"))
			return
		}

		c.Set(ContextUserIDKey, userID)
		c.Set(ContextRoleKey, claims.Role)
		c.Set(ContextEmailKey, claims.Email)
		c.Next()
	}
}

// Authorize пропускает только пользователей с одной из указанных ролей.
func Authorize(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(c *gin.Context) {
		role := c.GetString(ContextRoleKey)
		if _, ok := allowed[role]; !ok {
			response.Abort(c, apperror.ErrForbidden)
			return
		}
		c.Next()
	}
}

func isActiveUser(ctx context.Context, userID uuid.UUID, users UserLookup, cache *service.CacheService) bool {
	if users == nil {
		return true
	}
	key := service.ActiveUserCacheKey(userID)
	if cache != nil {
		if v, ok := cache.Get(key); ok {
			return v.(bool)
		}
	}

	user, err := users.CurrentUser(ctx, userID)
	active := err == nil && user.IsActive
	if cache != nil && (err == nil || apperror.IsNotFound(err)) {
		cache.Set(key, active, activeUserTTL)
	}
	return active
}
