// Package gateway проксирует публичные маршруты /api/* во внутренние сервисы.
package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/rideya/rideya-backend/internal/config"
	"github.com/rideya/rideya-backend/internal/http/middleware"
	"github.com/rideya/rideya-backend/internal/http/response"
	"github.com/rideya/rideya-backend/internal/logger"
	"github.com/rideya/rideya-backend/internal/pkg/apperror"
)

// Upstream связывает префикс пути с адресом сервиса.
type Upstream struct {
	Name   string
	Prefix string
	Target *url.URL
}

// Upstreams строит таблицу маршрутизации из конфигурации.
func Upstreams(cfg config.GatewayConfig) ([]Upstream, error) {
	routes := []struct {
		name, prefix, raw string
	}{
		{"auth", "/api/auth", cfg.AuthServiceURL},
		{"booking", "/api/bookings", cfg.BookingServiceURL},
		{"booking", "/api/drivers", cfg.BookingServiceURL},
		{"payment", "/api/payments", cfg.PaymentServiceURL},
		{"payment", "/api/webhooks", cfg.PaymentServiceURL},
		{"notification", "/api/notifications", cfg.NotificationServiceURL},
	}

	out := make([]Upstream, 0, len(routes))
	for _, r := range routes {
		target, err := url.Parse(r.raw)
		if err != nil || target.Scheme == "" || target.Host == "" {
			return nil, fmt.Errorf("gateway: некорректный адрес сервиса %s: %q", r.name, r.raw)
		}
		out = append(out, Upstream{Name: r.name, Prefix: r.prefix, Target: target})
	}
	return out, nil
}

// NewProxy создаёт обратный прокси к сервису. Ошибка сервиса превращается в 503 с конвертом ошибки.
func NewProxy(up Upstream) *httputil.ReverseProxy {
	proxy := httputil.NewSingleHostReverseProxy(up.Target)

	director := proxy.Director
	proxy.Director = func(req *http.Request) {
		director(req)
		req.Header.Set("X-Forwarded-Host", req.Host)
		req.Host = up.Target.Host
	}

	// CORS выставляет шлюз, заголовки сервиса отбрасываются, чтобы не дублироваться.
	proxy.ModifyResponse = func(resp *http.Response) error {
		for key := range resp.Header {
			if strings.HasPrefix(key, "Access-Control-") {
				resp.Header.Del(key)
			}
		}
		return nil
	}

	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Log.WithFields(logrus.Fields{
			"upstream": up.Name,
			"path":     r.URL.Path,
			"error":    err.Error(),
		}).Error("gateway: сервис недоступен")

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(response.Response{
			Success: false,
			Error: &response.ErrorInfo{
				Code:    string(apperror.ErrCodeServiceUnavailable),
				Message: fmt.Sprintf("сервис %s временно недоступен", up.Name),
			},
		})
	}

	return proxy
}

// NewRouter собирает gin-движок шлюза.
func NewRouter(cfg *config.Config, upstreams []Upstream) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.NoRoute(func(c *gin.Context) {
		response.Error(c, apperror.ErrRouteNotFound)
	})

	r.GET("/health", func(c *gin.Context) {
		services := make(map[string]string, len(upstreams))
		for _, up := range upstreams {
			services[up.Name] = up.Target.String()
		}
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"services":  services,
		})
	})

	api := r.Group("/")
	api.Use(middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod))
	for _, up := range upstreams {
		handler := proxyHandler(NewProxy(up))
		api.Any(up.Prefix, handler)
		api.Any(up.Prefix+"/*path", handler)
	}

	return r
}

func proxyHandler(proxy *httputil.ReverseProxy) gin.HandlerFunc {
	return func(c *gin.Context) {
		proxy.ServeHTTP(c.Writer, c.Request)
	}
}
