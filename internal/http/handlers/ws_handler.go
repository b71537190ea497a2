package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rideya/rideya-backend/internal/http/handlers/common"
	"github.com/rideya/rideya-backend/internal/logger"
	"github.com/rideya/rideya-backend/internal/pkg/apperror"
	"github.com/rideya/rideya-backend/internal/service"
	"github.com/rideya/rideya-backend/internal/ws"
)

// WSHandler отвечает за установку WebSocket соединений.
type WSHandler struct {
	hub          *ws.Hub
	tokenManager *service.TokenManager
	upgrader     websocket.Upgrader
}

// NewWSHandler создаёт хэндлер. Пустой allowedOrigins разрешает любые источники.
func NewWSHandler(hub *ws.Hub, tokens *service.TokenManager, allowedOrigins []string) *WSHandler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}

	return &WSHandler{
		hub:          hub,
		tokenManager: tokens,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || len(allowed) == 0 {
					return true
				}
				_, ok := allowed[origin]
				return ok
			},
		},
	}
}

// Handle обслуживает GET /api/bookings/ws?token=...
// Браузер не умеет передавать заголовок Authorization при апгрейде, поэтому токен идёт в query.
func (h *WSHandler) Handle(c *gin.Context) {
	rawToken := c.Query("token")
	if rawToken == "" {
		common.Fail(c, apperror.ErrUnauthorized)
		return
	}

	claims, err := h.tokenManager.ParseAccess(rawToken)
	if err != nil {
		common.Fail(c, apperror.ErrUnauthorized)
		return
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		common.Fail(c, apperror.ErrUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade уже записал ответ клиенту.
		logger.Log.WithError(err).Warn("ws handler: апгрейд соединения не удался")
		return
	}

	client := ws.NewClient(conn, h.hub, userID)
	client.Run(c.Request.Context())
}
