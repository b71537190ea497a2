package ws

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRideHandler struct {
	mu        sync.Mutex
	allowed   map[uuid.UUID]bool
	locations []DriverLocation
}

func (f *fakeRideHandler) JoinRide(ctx context.Context, userID, rideID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.allowed[rideID] {
		return errors.New("forbidden")
	}
	return nil
}

func (f *fakeRideHandler) DriverLocation(ctx context.Context, driverID uuid.UUID, loc DriverLocation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locations = append(f.locations, loc)
	return nil
}

func newTestHub(t *testing.T, handler RideHandler) (*Hub, *httptest.Server) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub(ctx)
	hub.SetRideHandler(handler)
	go hub.Run()

	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(r.URL.Query().Get("user"))
		require.NoError(t, err)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		NewClient(conn, hub, userID).Run(ctx)
	}))
	t.Cleanup(srv.Close)
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, userID uuid.UUID) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?user=" + userID.String()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg map[string]interface{}
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func waitRegistered(t *testing.T, hub *Hub, userID uuid.UUID) {
	assert.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return len(hub.clients[userID]) > 0
	}, time.Second, 5*time.Millisecond)
}

func TestHub_JoinRideAndBroadcast(t *testing.T) {
	rideID := uuid.New()
	handler := &fakeRideHandler{allowed: map[uuid.UUID]bool{rideID: true}}
	hub, srv := newTestHub(t, handler)

	userID := uuid.New()
	conn := dial(t, srv, userID)
	waitRegistered(t, hub, userID)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type": EventJoinRide,
		"data": map[string]string{"rideId": rideID.String()},
	}))
	joined := readEvent(t, conn)
	assert.Equal(t, EventRideJoined, joined["type"])

	require.NoError(t, hub.BroadcastToRide(rideID, EventRideStatus, map[string]string{"status": "ACCEPTED"}))
	msg := readEvent(t, conn)
	assert.Equal(t, EventRideStatus, msg["type"])
	assert.Equal(t, "ACCEPTED", msg["data"].(map[string]interface{})["status"])
}

func TestHub_JoinRideRightAfterConnect(t *testing.T) {
	rideID := uuid.New()
	hub, srv := newTestHub(t, &fakeRideHandler{allowed: map[uuid.UUID]bool{rideID: true}})

	userID := uuid.New()
	conn := dial(t, srv, userID)

	// Без ожидания регистрации: первое сообщение не должно теряться.
	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type": EventJoinRide,
		"data": map[string]string{"rideId": rideID.String()},
	}))
	joined := readEvent(t, conn)
	assert.Equal(t, EventRideJoined, joined["type"])

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	assert.Len(t, hub.rooms[rideID], 1)
}

func TestHub_RegisterIsSynchronous(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub(ctx)

	client := &Client{hub: hub, userID: uuid.New(), send: make(chan []byte, 1), rides: make(map[uuid.UUID]struct{})}
	hub.Register(client)

	rideID := uuid.New()
	hub.Join(client, rideID)
	hub.mu.RLock()
	_, joined := hub.rooms[rideID][client]
	hub.mu.RUnlock()
	assert.True(t, joined)
}

func TestHub_JoinRideForbidden(t *testing.T) {
	hub, srv := newTestHub(t, &fakeRideHandler{allowed: map[uuid.UUID]bool{}})

	userID := uuid.New()
	conn := dial(t, srv, userID)
	waitRegistered(t, hub, userID)

	rideID := uuid.New()
	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type": EventJoinRide,
		"data": map[string]string{"rideId": rideID.String()},
	}))
	msg := readEvent(t, conn)
	assert.Equal(t, EventError, msg["type"])

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	assert.Empty(t, hub.rooms[rideID])
}

func TestHub_DriverLocationDelegatesToHandler(t *testing.T) {
	handler := &fakeRideHandler{allowed: map[uuid.UUID]bool{}}
	hub, srv := newTestHub(t, handler)

	driverID := uuid.New()
	conn := dial(t, srv, driverID)
	waitRegistered(t, hub, driverID)

	rideID := uuid.New()
	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type": EventDriverLocation,
		"data": map[string]interface{}{"rideId": rideID.String(), "lng": 37.61, "lat": 55.75},
	}))

	assert.Eventually(t, func() bool {
		handler.mu.Lock()
		defer handler.mu.Unlock()
		return len(handler.locations) == 1 && handler.locations[0].RideID == rideID
	}, time.Second, 5*time.Millisecond)
}

func TestHub_BroadcastToUser(t *testing.T) {
	hub, srv := newTestHub(t, nil)

	userID := uuid.New()
	conn := dial(t, srv, userID)
	waitRegistered(t, hub, userID)

	require.NoError(t, hub.BroadcastToUser(userID, EventNotification, map[string]string{"title": "Hi"}))
	msg := readEvent(t, conn)
	assert.Equal(t, EventNotification, msg["type"])
}

func TestHub_UnknownEvent(t *testing.T) {
	hub, srv := newTestHub(t, nil)

	userID := uuid.New()
	conn := dial(t, srv, userID)
	waitRegistered(t, hub, userID)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "dance"}))
	msg := readEvent(t, conn)
	assert.Equal(t, EventError, msg["type"])
}
