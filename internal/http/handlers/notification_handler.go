package handlers

import (
	"encoding/json"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rideya/rideya-backend/internal/http/handlers/common"
	"github.com/rideya/rideya-backend/internal/http/response"
	"github.com/rideya/rideya-backend/internal/service"
)

// NotificationHandler обслуживает отправку и чтение уведомлений.
type NotificationHandler struct {
	notifications *service.NotificationService
}

// NewNotificationHandler создаёт хэндлер уведомлений.
func NewNotificationHandler(notifications *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

func deliveryResponse(c *gin.Context, result *service.DeliveryResult, message string) {
	data := gin.H{"messageId": result.ID}
	if result.Dev {
		message += " (development: провайдер не настроен)"
		data["dev"] = true
	}
	response.SuccessMessage(c, message, data)
}

// SendEmail обрабатывает POST /api/notifications/email.
func (h *NotificationHandler) SendEmail(c *gin.Context) {
	var req struct {
		To      string `json:"to" binding:"required"`
		Subject string `json:"subject" binding:"required"`
		Text    string `json:"text"`
		HTML    string `json:"html"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, err)
		return
	}

	result, err := h.notifications.SendEmail(c.Request.Context(), service.EmailInput{
		To:      req.To,
		Subject: req.Subject,
		Text:    req.Text,
		HTML:    req.HTML,
	})
	if err != nil {
		common.Fail(c, err)
		return
	}

	deliveryResponse(c, result, "письмо отправлено")
}

// SendSMS обрабатывает POST /api/notifications/sms.
func (h *NotificationHandler) SendSMS(c *gin.Context) {
	var req struct {
		To      string `json:"to" binding:"required"`
		Message string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, err)
		return
	}

	result, err := h.notifications.SendSMS(c.Request.Context(), req.To, req.Message)
	if err != nil {
		common.Fail(c, err)
		return
	}

	deliveryResponse(c, result, "SMS отправлено")
}

// SendPush обрабатывает POST /api/notifications/push.
func (h *NotificationHandler) SendPush(c *gin.Context) {
	var req struct {
		UserID uuid.UUID       `json:"userId" binding:"required"`
		Title  string          `json:"title" binding:"required"`
		Body   string          `json:"body"`
		Data   json.RawMessage `json:"data"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, err)
		return
	}

	n, err := h.notifications.SendPush(c.Request.Context(), service.PushInput{
		UserID: req.UserID,
		Title:  req.Title,
		Body:   req.Body,
		Data:   req.Data,
	})
	if err != nil {
		common.Fail(c, err)
		return
	}

	response.Created(c, n)
}

// SendBulk обрабатывает POST /api/notifications/bulk.
func (h *NotificationHandler) SendBulk(c *gin.Context) {
	var req struct {
		Type       string   `json:"type" binding:"required"`
		Recipients []string `json:"recipients" binding:"required"`
		Subject    string   `json:"subject"`
		Message    string   `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, err)
		return
	}

	count, err := h.notifications.QueueBulk(c.Request.Context(), service.BulkInput{
		Type:       req.Type,
		Recipients: req.Recipients,
		Subject:    req.Subject,
		Message:    req.Message,
	})
	if err != nil {
		common.Fail(c, err)
		return
	}

	response.SuccessMessage(c, "рассылка поставлена в очередь", gin.H{"count": count})
}

// ListNotifications обрабатывает GET /api/notifications?unread=true.
func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	limit, offset := common.Pagination(c)
	items, total, err := h.notifications.ListNotifications(c.Request.Context(), userID, limit, offset, c.Query("unread") == "true")
	if err != nil {
		common.Fail(c, err)
		return
	}

	response.Paginated(c, items, total, limit, offset)
}

// MarkAsRead обрабатывает PUT /api/notifications/:id/read.
func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Fail(c, err)
		return
	}
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.Fail(c, err)
		return
	}

	if err := h.notifications.MarkAsRead(c.Request.Context(), id, userID); err != nil {
		common.Fail(c, err)
		return
	}

	response.SuccessMessage(c, "уведомление прочитано", nil)
}
