package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rideya/rideya-backend/internal/logger"
)

// События WebSocket API.
const (
	EventJoinRide             = "join:ride"
	EventLeaveRide            = "leave:ride"
	EventRideJoined           = "ride:joined"
	EventDriverLocation       = "driver:location"
	EventDriverLocationUpdate = "driver:location:update"
	EventRideStatus           = "ride:status"
	EventNotification         = "notification"
	EventError                = "error"
)

// Envelope формат сообщения в обе стороны: "type" содержит имя события, "data" полезную нагрузку.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// DriverLocation полезная нагрузка события driver:location.
type DriverLocation struct {
	RideID  uuid.UUID `json:"rideId"`
	Lng     float64   `json:"lng"`
	Lat     float64   `json:"lat"`
	Heading *float64  `json:"heading,omitempty"`
}

// RideHandler проверяет доступ к комнатам поездок и обрабатывает координаты водителя.
type RideHandler interface {
	JoinRide(ctx context.Context, userID, rideID uuid.UUID) error
	DriverLocation(ctx context.Context, driverID uuid.UUID, loc DriverLocation) error
}

// Hub управляет подключениями: по пользователю и по комнатам поездок.
type Hub struct {
	mu          sync.RWMutex
	clients     map[uuid.UUID]map[*Client]struct{}
	rooms       map[uuid.UUID]map[*Client]struct{}
	unregister  chan *Client
	broadcast   chan message
	rideHandler RideHandler
	ctx         context.Context
}

type message struct {
	userID  uuid.UUID
	rideID  uuid.UUID
	payload []byte
}

// NewHub создаёт новый хаб.
func NewHub(ctx context.Context) *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]map[*Client]struct{}),
		rooms:      make(map[uuid.UUID]map[*Client]struct{}),
		unregister: make(chan *Client),
		broadcast:  make(chan message, 64),
		ctx:        ctx,
	}
}

// SetRideHandler устанавливает обработчик событий поездок.
func (h *Hub) SetRideHandler(handler RideHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rideHandler = handler
}

// Run запускает главный цикл хаба до отмены контекста.
func (h *Hub) Run() {
	for {
		select {
		case <-h.ctx.Done():
			return
		case client := <-h.unregister:
			h.removeClient(client)
		case msg := <-h.broadcast:
			if msg.rideID != uuid.Nil {
				h.sendToRoom(msg.rideID, msg.payload)
			} else {
				h.sendToUser(msg.userID, msg.payload)
			}
		}
	}
}

// Register добавляет клиента. После возврата клиент уже может входить в комнаты.
func (h *Hub) Register(client *Client) {
	if h.ctx.Err() != nil {
		return
	}
	h.addClient(client)
}

// Unregister удаляет клиента из всех комнат.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// BroadcastToUser отправляет событие всем подключениям пользователя.
func (h *Hub) BroadcastToUser(userID uuid.UUID, event string, data any) error {
	raw, err := encode(event, data)
	if err != nil {
		return err
	}
	return h.enqueue(message{userID: userID, payload: raw})
}

// BroadcastToRide отправляет событие всем участникам комнаты поездки.
func (h *Hub) BroadcastToRide(rideID uuid.UUID, event string, data any) error {
	raw, err := encode(event, data)
	if err != nil {
		return err
	}
	return h.enqueue(message{rideID: rideID, payload: raw})
}

func (h *Hub) enqueue(msg message) error {
	select {
	case h.broadcast <- msg:
		return nil
	case <-h.ctx.Done():
		return h.ctx.Err()
	}
}

// Join добавляет клиента в комнату поездки. Отключённый клиент игнорируется.
func (h *Hub) Join(client *Client, rideID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.userID][client]; !ok {
		return
	}
	if _, ok := h.rooms[rideID]; !ok {
		h.rooms[rideID] = make(map[*Client]struct{})
	}
	h.rooms[rideID][client] = struct{}{}
	client.rides[rideID] = struct{}{}
}

// Leave убирает клиента из комнаты поездки.
func (h *Hub) Leave(client *Client, rideID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(client, rideID)
}

func (h *Hub) leaveLocked(client *Client, rideID uuid.UUID) {
	if members, ok := h.rooms[rideID]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, rideID)
		}
	}
	delete(client.rides, rideID)
}

// handleInbound разбирает входящее событие клиента.
func (h *Hub) handleInbound(client *Client, env Envelope) {
	h.mu.RLock()
	handler := h.rideHandler
	h.mu.RUnlock()

	log := logger.Log.WithFields(logrus.Fields{
		"user_id": client.userID.String(),
		"event":   env.Type,
	})

	switch env.Type {
	case EventJoinRide:
		var req struct {
			RideID uuid.UUID `json:"rideId"`
		}
		if err := json.Unmarshal(env.Data, &req); err != nil || req.RideID == uuid.Nil {
			client.reply(EventError, map[string]string{"message": "rideId обязателен"})
			return
		}
		if handler == nil {
			client.reply(EventError, map[string]string{"message": "события поездок недоступны"})
			return
		}
		if err := handler.JoinRide(h.ctx, client.userID, req.RideID); err != nil {
			log.WithError(err).Debug("ws: отказ во входе в комнату поездки")
			client.reply(EventError, map[string]string{"message": "нет доступа к поездке"})
			return
		}
		h.Join(client, req.RideID)
		client.reply(EventRideJoined, map[string]string{"rideId": req.RideID.String()})

	case EventLeaveRide:
		var req struct {
			RideID uuid.UUID `json:"rideId"`
		}
		if err := json.Unmarshal(env.Data, &req); err == nil {
			h.Leave(client, req.RideID)
		}

	case EventDriverLocation:
		var loc DriverLocation
		if err := json.Unmarshal(env.Data, &loc); err != nil || loc.RideID == uuid.Nil {
			client.reply(EventError, map[string]string{"message": "некорректные координаты"})
			return
		}
		if handler == nil {
			return
		}
		if err := handler.DriverLocation(h.ctx, client.userID, loc); err != nil {
			log.WithError(err).Debug("ws: координаты водителя отклонены")
			client.reply(EventError, map[string]string{"message": err.Error()})
		}

	default:
		client.reply(EventError, map[string]string{"message": fmt.Sprintf("неизвестное событие %q", env.Type)})
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.userID]; !ok {
		h.clients[client.userID] = make(map[*Client]struct{})
	}
	h.clients[client.userID][client] = struct{}{}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[client.userID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.clients, client.userID)
	}
	for rideID := range client.rides {
		h.leaveLocked(client, rideID)
	}
	close(client.send)
}

func (h *Hub) sendToUser(userID uuid.UUID, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.deliver(h.clients[userID], payload)
}

func (h *Hub) sendToRoom(rideID uuid.UUID, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.deliver(h.rooms[rideID], payload)
}

// deliver вызывается под RLock. Медленный клиент отключается.
func (h *Hub) deliver(clients map[*Client]struct{}, payload []byte) {
	for client := range clients {
		select {
		case client.send <- payload:
		default:
			logger.Log.WithField("user_id", client.userID.String()).Warn("ws: буфер клиента переполнен, отключаем")
			go client.Close()
		}
	}
}

func encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(map[string]any{
		"type": event,
		"data": data,
	})
	if err != nil {
		return nil, fmt.Errorf("ws: не удалось сериализовать сообщение: %w", err)
	}
	return raw, nil
}
