package handlers

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rideya/rideya-backend/internal/models"
	"github.com/rideya/rideya-backend/internal/repository"
	"github.com/rideya/rideya-backend/internal/service"
)

type memoryNotifications struct {
	mu    sync.Mutex
	items []models.Notification
}

func (m *memoryNotifications) Create(ctx context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n.ID = uuid.New()
	m.items = append(m.items, *n)
	return nil
}

func (m *memoryNotifications) CreateBatch(ctx context.Context, items []models.Notification) error {
	for i := range items {
		if err := m.Create(ctx, &items[i]); err != nil {
			return err
		}
	}
	return nil
}

func (m *memoryNotifications) List(ctx context.Context, userID uuid.UUID, limit, offset int, unreadOnly bool) ([]models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Notification{}
	for _, n := range m.items {
		if n.UserID == userID && (!unreadOnly || !n.IsRead) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *memoryNotifications) Count(ctx context.Context, userID uuid.UUID, unreadOnly bool) (int, error) {
	items, _ := m.List(ctx, userID, 0, 0, unreadOnly)
	return len(items), nil
}

func (m *memoryNotifications) MarkAsRead(ctx context.Context, id, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		if m.items[i].ID == id && m.items[i].UserID == userID {
			m.items[i].IsRead = true
			return nil
		}
	}
	return repository.ErrNotificationNotFound
}

func newNotificationHandler(t *testing.T) (*NotificationHandler, *memoryNotifications) {
	t.Helper()
	repo := &memoryNotifications{}
	svc := service.NewNotificationService(repo, nil, nil, nil, 1)
	t.Cleanup(svc.Close)
	return NewNotificationHandler(svc), repo
}

func TestNotificationHandler_SendEmail_DevFallback(t *testing.T) {
	handler, _ := newNotificationHandler(t)
	r := newTestEngine()
	r.POST("/notifications/email", handler.SendEmail)

	w, resp := performJSON(t, r, http.MethodPost, "/notifications/email", map[string]string{
		"to":      "rider@example.com",
		"subject": "Поездка",
		"text":    "Водитель в пути",
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, resp.Success)
	assert.Contains(t, w.Body.String(), `"dev":true`)
}

func TestNotificationHandler_SendSMS_InvalidPhone(t *testing.T) {
	handler, _ := newNotificationHandler(t)
	r := newTestEngine()
	r.POST("/notifications/sms", handler.SendSMS)

	w, resp := performJSON(t, r, http.MethodPost, "/notifications/sms", map[string]string{
		"to":      "12345",
		"message": "hi",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", code(resp))
}

func TestNotificationHandler_PushListAndRead(t *testing.T) {
	handler, repo := newNotificationHandler(t)
	userID := uuid.New()

	r := newTestEngine()
	r.POST("/notifications/push", handler.SendPush)
	r.GET("/notifications", asUser(userID, models.RolePassenger), handler.ListNotifications)
	r.PUT("/notifications/:id/read", asUser(userID, models.RolePassenger), handler.MarkAsRead)

	w, _ := performJSON(t, r, http.MethodPost, "/notifications/push", map[string]interface{}{
		"userId": userID,
		"title":  "Водитель прибыл",
		"body":   "Серый седан у подъезда",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.Len(t, repo.items, 1)

	w, _ = performJSON(t, r, http.MethodGet, "/notifications?unread=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":1`)

	w, _ = performJSON(t, r, http.MethodPut, "/notifications/"+repo.items[0].ID.String()+"/read", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, resp := performJSON(t, r, http.MethodPut, "/notifications/"+uuid.NewString()+"/read", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", code(resp))
}

func TestNotificationHandler_Bulk_RejectsUnknownType(t *testing.T) {
	handler, _ := newNotificationHandler(t)
	r := newTestEngine()
	r.POST("/notifications/bulk", handler.SendBulk)

	w, resp := performJSON(t, r, http.MethodPost, "/notifications/bulk", map[string]interface{}{
		"type":       "FAX",
		"recipients": []string{"a@example.com"},
		"message":    "hello",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", code(resp))
}
