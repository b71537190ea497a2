package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rideya/rideya-backend/internal/goroutine"
)

const cacheCleanupInterval = time.Minute

// CacheService хранит значения в памяти с TTL.
type CacheService struct {
	mu    sync.RWMutex
	cache map[string]*cacheEntry
	now   func() time.Time
	stop  chan struct{}
	once  sync.Once
}

type cacheEntry struct {
	data      interface{}
	expiresAt time.Time
}

// NewCacheService создаёт кэш и запускает фоновую очистку. Остановить её можно через Close.
func NewCacheService() *CacheService {
	cs := &CacheService{
		cache: make(map[string]*cacheEntry),
		now:   time.Now,
		stop:  make(chan struct{}),
	}

	goroutine.SafeGo("cache-cleanup", cs.cleanup)

	return cs
}

// Get возвращает значение, если оно есть и не истекло.
func (cs *CacheService) Get(key string) (interface{}, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	entry, exists := cs.cache[key]
	if !exists || !cs.now().Before(entry.expiresAt) {
		return nil, false
	}

	return entry.data, true
}

// Set сохраняет значение на ttl.
func (cs *CacheService) Set(key string, value interface{}, ttl time.Duration) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.cache[key] = &cacheEntry{
		data:      value,
		expiresAt: cs.now().Add(ttl),
	}
}

// Delete удаляет ключ.
func (cs *CacheService) Delete(key string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	delete(cs.cache, key)
}

// Take атомарно извлекает значение и удаляет его. Повторный вызов вернёт false.
func (cs *CacheService) Take(key string) (interface{}, bool) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	entry, exists := cs.cache[key]
	if !exists {
		return nil, false
	}
	delete(cs.cache, key)
	if !cs.now().Before(entry.expiresAt) {
		return nil, false
	}
	return entry.data, true
}

// InvalidateByPrefix удаляет все ключи с заданным префиксом.
func (cs *CacheService) InvalidateByPrefix(prefix string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	for key := range cs.cache {
		if strings.HasPrefix(key, prefix) {
			delete(cs.cache, key)
		}
	}
}

// InvalidateUserCache сбрасывает все записи пользователя.
func (cs *CacheService) InvalidateUserCache(userID uuid.UUID) {
	cs.Delete(ActiveUserCacheKey(userID))
	cs.InvalidateByPrefix("bookings:" + userID.String() + ":")
}

// Close останавливает фоновую очистку.
func (cs *CacheService) Close() {
	cs.once.Do(func() { close(cs.stop) })
}

func (cs *CacheService) cleanup() {
	ticker := time.NewTicker(cacheCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-cs.stop:
			return
		case <-ticker.C:
			cs.purgeExpired()
		}
	}
}

func (cs *CacheService) purgeExpired() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	now := cs.now()
	for key, entry := range cs.cache {
		if !now.Before(entry.expiresAt) {
			delete(cs.cache, key)
		}
	}
}

// ActiveUserCacheKey ключ флага активности пользователя для auth middleware.
func ActiveUserCacheKey(userID uuid.UUID) string {
	return "active_user:" + userID.String()
}

// OAuthStateCacheKey ключ одноразового state для входа через Google.
func OAuthStateCacheKey(state string) string {
	return "oauth_state:" + state
}

// GetOrSet возвращает значение из кэша или вычисляет и сохраняет его.
func (cs *CacheService) GetOrSet(
	ctx context.Context,
	key string,
	ttl time.Duration,
	fn func(ctx context.Context) (interface{}, error),
) (interface{}, error) {
	if value, found := cs.Get(key); found {
		return value, nil
	}

	value, err := fn(ctx)
	if err != nil {
		return nil, err
	}

	cs.Set(key, value, ttl)

	return value, nil
}
