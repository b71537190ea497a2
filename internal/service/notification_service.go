package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rideya/rideya-backend/internal/goroutine"
	"github.com/rideya/rideya-backend/internal/infrastructure/mail"
	"github.com/rideya/rideya-backend/internal/logger"
	"github.com/rideya/rideya-backend/internal/models"
	"github.com/rideya/rideya-backend/internal/pkg/apperror"
	"github.com/rideya/rideya-backend/internal/repository"
	"github.com/rideya/rideya-backend/internal/validation"
	"github.com/rideya/rideya-backend/internal/ws"
)

const (
	maxBulkRecipients = 1000
	bulkQueueSize     = 64
)

// NotificationRepository описывает взаимодействие сервиса с хранилищем уведомлений.
type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	CreateBatch(ctx context.Context, items []models.Notification) error
	List(ctx context.Context, userID uuid.UUID, limit, offset int, unreadOnly bool) ([]models.Notification, error)
	Count(ctx context.Context, userID uuid.UUID, unreadOnly bool) (int, error)
	MarkAsRead(ctx context.Context, id, userID uuid.UUID) error
}

// Mailer отправляет письма и возвращает Message-ID.
type Mailer interface {
	Send(ctx context.Context, msg mail.Message) (string, error)
}

// UserNotifier доставляет событие подключённому пользователю.
type UserNotifier interface {
	BroadcastToUser(userID uuid.UUID, event string, data any) error
}

// NotificationService отправляет email, SMS и in-app уведомления.
// Если провайдер не настроен, отправка не выполняется и результат помечается как Dev.
type NotificationService struct {
	repo    NotificationRepository
	mailer  Mailer
	sms     SMSSender
	push    UserNotifier
	workers int

	mu     sync.Mutex
	jobs   chan bulkJob
	closed bool
	wg     sync.WaitGroup
}

// DeliveryResult итог отправки через внешний провайдер.
type DeliveryResult struct {
	ID  string `json:"id,omitempty"`
	Dev bool   `json:"-"`
}

// EmailInput письмо для отправки.
type EmailInput struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// PushInput in-app уведомление пользователю.
type PushInput struct {
	UserID uuid.UUID
	Title  string
	Body   string
	Data   json.RawMessage
}

// BulkInput массовая рассылка. Для PUSH получатели это идентификаторы пользователей.
type BulkInput struct {
	Type       string
	Recipients []string
	Subject    string
	Message    string
}

type bulkJob struct {
	input   BulkInput
	userIDs []uuid.UUID
}

// NewNotificationService создаёт сервис. mailer, sms и push могут быть nil.
func NewNotificationService(repo NotificationRepository, mailer Mailer, sms SMSSender, push UserNotifier, workers int) *NotificationService {
	if workers <= 0 {
		workers = 2
	}
	return &NotificationService{
		repo:    repo,
		mailer:  mailer,
		sms:     sms,
		push:    push,
		workers: workers,
		jobs:    make(chan bulkJob, bulkQueueSize),
	}
}

// Start запускает воркеры массовой рассылки.
func (s *NotificationService) Start(ctx context.Context) {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		goroutine.SafeGoWithContext(ctx, fmt.Sprintf("notification-worker-%d", i), func(ctx context.Context) {
			defer s.wg.Done()
			s.worker(ctx)
		})
	}
}

// Close перестаёт принимать задачи и ждёт, пока воркеры обработают очередь.
func (s *NotificationService) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.jobs)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// SendEmail отправляет письмо.
func (s *NotificationService) SendEmail(ctx context.Context, in EmailInput) (*DeliveryResult, error) {
	if err := firstError(
		validation.ValidateEmail(in.To),
		validation.ValidateLength("тема", in.Subject, 1, validation.MaxSubjectLength),
	); err != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, err.Error())
	}
	if strings.TrimSpace(in.Text) == "" && strings.TrimSpace(in.HTML) == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "письмо не может быть пустым")
	}

	if s.mailer == nil {
		logger.Log.WithFields(logrus.Fields{
			"to":      in.To,
			"subject": in.Subject,
		}).Info("notification service: SMTP не настроен, письмо не отправлено")
		return &DeliveryResult{Dev: true}, nil
	}

	id, err := s.mailer.Send(ctx, mail.Message{To: in.To, Subject: in.Subject, Text: in.Text, HTML: in.HTML})
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeEmailSendFailed, "не удалось отправить письмо")
	}
	return &DeliveryResult{ID: id}, nil
}

// SendSMS отправляет SMS.
func (s *NotificationService) SendSMS(ctx context.Context, to, message string) (*DeliveryResult, error) {
	to = strings.TrimSpace(to)
	if err := firstError(
		validation.ValidatePhone(to),
		validation.ValidateLength("сообщение", message, 1, validation.MaxMessageLength),
	); err != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, err.Error())
	}

	if s.sms == nil {
		logger.Log.WithField("to", to).Info("notification service: SMS не настроены, сообщение не отправлено")
		return &DeliveryResult{Dev: true}, nil
	}

	sid, err := s.sms.Send(ctx, to, message)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeSMSSendFailed, "не удалось отправить SMS")
	}
	return &DeliveryResult{ID: sid}, nil
}

// SendPush сохраняет in-app уведомление и доставляет его по WebSocket, если пользователь онлайн.
func (s *NotificationService) SendPush(ctx context.Context, in PushInput) (*models.Notification, error) {
	if in.UserID == uuid.Nil {
		return nil, apperror.New(apperror.ErrCodeValidation, "userId обязателен")
	}
	if err := firstError(
		validation.ValidateLength("заголовок", in.Title, 1, validation.MaxSubjectLength),
		validation.ValidateLength("текст", in.Body, 0, validation.MaxMessageLength),
	); err != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, err.Error())
	}
	if len(in.Data) > 0 && !json.Valid(in.Data) {
		return nil, apperror.New(apperror.ErrCodeValidation, "data должен быть корректным JSON")
	}

	n := &models.Notification{
		UserID: in.UserID,
		Type:   models.NotificationTypePush,
		Title:  in.Title,
		Body:   in.Body,
		Data:   in.Data,
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodePushSendFailed, "не удалось сохранить уведомление")
	}

	s.deliver(n)
	return n, nil
}

// QueueBulk ставит массовую рассылку в очередь и возвращает число получателей.
func (s *NotificationService) QueueBulk(ctx context.Context, in BulkInput) (int, error) {
	in.Type = strings.ToUpper(in.Type)
	switch in.Type {
	case models.NotificationTypeEmail, models.NotificationTypeSMS, models.NotificationTypePush:
	default:
		return 0, apperror.New(apperror.ErrCodeValidation, "тип рассылки должен быть EMAIL, SMS или PUSH")
	}
	if len(in.Recipients) == 0 || len(in.Recipients) > maxBulkRecipients {
		return 0, apperror.New(apperror.ErrCodeValidation, fmt.Sprintf("число получателей должно быть от 1 до %d", maxBulkRecipients))
	}
	if err := validation.ValidateLength("сообщение", in.Message, 1, validation.MaxMessageLength); err != nil {
		return 0, apperror.New(apperror.ErrCodeValidation, err.Error())
	}

	job := bulkJob{input: in}
	if in.Type == models.NotificationTypePush {
		job.userIDs = make([]uuid.UUID, 0, len(in.Recipients))
		for _, r := range in.Recipients {
			id, err := uuid.Parse(r)
			if err != nil {
				return 0, apperror.New(apperror.ErrCodeValidation, fmt.Sprintf("некорректный идентификатор пользователя %q", r))
			}
			job.userIDs = append(job.userIDs, id)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, apperror.New(apperror.ErrCodeBulkFailed, "сервис уведомлений остановлен")
	}
	select {
	case s.jobs <- job:
	default:
		return 0, apperror.New(apperror.ErrCodeBulkFailed, "очередь рассылок переполнена")
	}

	logger.Log.WithFields(logrus.Fields{
		"type":       in.Type,
		"recipients": len(in.Recipients),
	}).Info("notification service: рассылка поставлена в очередь")

	return len(in.Recipients), nil
}

// ListNotifications возвращает уведомления пользователя и их общее число.
func (s *NotificationService) ListNotifications(ctx context.Context, userID uuid.UUID, limit, offset int, unreadOnly bool) ([]models.Notification, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	items, err := s.repo.List(ctx, userID, limit, offset, unreadOnly)
	if err != nil {
		return nil, 0, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось получить уведомления")
	}
	total, err := s.repo.Count(ctx, userID, unreadOnly)
	if err != nil {
		return nil, 0, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось получить уведомления")
	}
	return items, total, nil
}

// MarkAsRead отмечает уведомление прочитанным. Чужое уведомление выглядит как отсутствующее.
func (s *NotificationService) MarkAsRead(ctx context.Context, id, userID uuid.UUID) error {
	if err := s.repo.MarkAsRead(ctx, id, userID); err != nil {
		if errors.Is(err, repository.ErrNotificationNotFound) {
			return apperror.New(apperror.ErrCodeNotFound, "уведомление не найдено")
		}
		return apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось обновить уведомление")
	}
	return nil
}

func (s *NotificationService) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-s.jobs:
			if !ok {
				return
			}
			s.processBulk(ctx, job)
		}
	}
}

func (s *NotificationService) processBulk(ctx context.Context, job bulkJob) {
	in := job.input
	log := logger.Log.WithField("type", in.Type)
	failed := 0

	switch in.Type {
	case models.NotificationTypeEmail:
		subject := in.Subject
		if subject == "" {
			subject = "Rideya"
		}
		for _, to := range in.Recipients {
			if _, err := s.SendEmail(ctx, EmailInput{To: to, Subject: subject, Text: in.Message}); err != nil {
				failed++
				log.WithError(err).WithField("to", to).Warn("notification service: письмо рассылки не отправлено")
			}
		}

	case models.NotificationTypeSMS:
		for _, to := range in.Recipients {
			if _, err := s.SendSMS(ctx, to, in.Message); err != nil {
				failed++
				log.WithError(err).WithField("to", to).Warn("notification service: SMS рассылки не отправлено")
			}
		}

	case models.NotificationTypePush:
		title := in.Subject
		if title == "" {
			title = "Rideya"
		}
		items := make([]models.Notification, 0, len(job.userIDs))
		for _, id := range job.userIDs {
			items = append(items, models.Notification{
				UserID: id,
				Type:   models.NotificationTypePush,
				Title:  title,
				Body:   in.Message,
			})
		}
		if err := s.repo.CreateBatch(ctx, items); err != nil {
			log.WithError(err).Error("notification service: не удалось сохранить рассылку")
			return
		}
		for i := range items {
			s.deliver(&items[i])
		}
	}

	log.WithFields(logrus.Fields{
		"recipients": len(in.Recipients),
		"failed":     failed,
	}).Info("notification service: рассылка завершена")
}

func (s *NotificationService) deliver(n *models.Notification) {
	if s.push == nil {
		return
	}
	if err := s.push.BroadcastToUser(n.UserID, ws.EventNotification, n); err != nil {
		logger.Log.WithError(err).WithField("user_id", n.UserID.String()).Warn("notification service: не удалось доставить уведомление")
	}
}
