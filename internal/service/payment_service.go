package service

import (
	"context"
	"errors"
	"math"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rideya/rideya-backend/internal/infrastructure/payments"
	"github.com/rideya/rideya-backend/internal/logger"
	"github.com/rideya/rideya-backend/internal/models"
	"github.com/rideya/rideya-backend/internal/pkg/apperror"
	"github.com/rideya/rideya-backend/internal/repository"
)

const (
	platformFeeRate      = 0.20
	clientCommissionRate = 0.05
	defaultCurrency      = "usd"
)

var currencyRegex = regexp.MustCompile(`^[a-z]{3}$`)

// PaymentGateway платёжный провайдер.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*payments.Intent, error)
	GetIntent(ctx context.Context, id string) (*payments.Intent, error)
	Refund(ctx context.Context, intentID string, amount *int64) (*payments.Refund, error)
	ParseWebhook(payload []byte, signature string) (*payments.WebhookEvent, error)
}

type PaymentRepository interface {
	Create(ctx context.Context, p *models.PaymentTransaction) error
	GetByIntentID(ctx context.Context, intentID string) (*models.PaymentTransaction, error)
	UpdateStatusByIntentID(ctx context.Context, intentID, status string) error
}

// BookingReader нужен платежам, чтобы связать оплату с поездкой.
type BookingReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.RideBooking, error)
}

type PaymentService struct {
	gateway  PaymentGateway
	repo     PaymentRepository
	bookings BookingReader
}

// CreateIntentInput запрос на создание платежа. Amount в основных единицах валюты.
type CreateIntentInput struct {
	Amount    float64
	Currency  string
	BookingID *uuid.UUID
}

// IntentResult данные для подтверждения оплаты на клиенте.
type IntentResult struct {
	ClientSecret    string    `json:"clientSecret"`
	PaymentIntentID string    `json:"paymentIntentId"`
	TransactionID   uuid.UUID `json:"transactionId"`
}

// ConfirmResult состояние платежа после подтверждения.
type ConfirmResult struct {
	Status         string                 `json:"status"`
	Amount         float64                `json:"amount"`
	Currency       string                 `json:"currency"`
	RevenueSharing *models.RevenueSharing `json:"revenueSharing,omitempty"`
}

// RefundResult итог возврата.
type RefundResult struct {
	RefundID string  `json:"refundId"`
	Status   string  `json:"status"`
	Amount   float64 `json:"amount"`
}

// NewPaymentService создаёт сервис платежей. bookings может быть nil.
func NewPaymentService(gateway PaymentGateway, repo PaymentRepository, bookings BookingReader) *PaymentService {
	return &PaymentService{gateway: gateway, repo: repo, bookings: bookings}
}

// CreateIntent создаёт PaymentIntent и сохраняет транзакцию в статусе PENDING.
func (s *PaymentService) CreateIntent(ctx context.Context, passengerID uuid.UUID, in CreateIntentInput) (*IntentResult, error) {
	if in.Amount <= 0 || math.IsInf(in.Amount, 0) || math.IsNaN(in.Amount) {
		return nil, apperror.New(apperror.ErrCodeValidation, "сумма должна быть положительной")
	}
	currency := strings.ToLower(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = defaultCurrency
	}
	if !currencyRegex.MatchString(currency) {
		return nil, apperror.New(apperror.ErrCodeValidation, "некорректный код валюты")
	}

	tx := &models.PaymentTransaction{
		BookingID:   in.BookingID,
		PassengerID: passengerID,
		Amount:      roundMoney(in.Amount),
		Currency:    strings.ToUpper(currency),
		Method:      models.PaymentMethodCard,
		Status:      models.PaymentStatusPending,
	}

	metadata := map[string]string{"passengerId": passengerID.String()}
	if in.BookingID != nil {
		metadata["bookingId"] = in.BookingID.String()
		if s.bookings != nil {
			booking, err := s.bookings.GetByID(ctx, *in.BookingID)
			if err != nil {
				if errors.Is(err, repository.ErrBookingNotFound) {
					return nil, apperror.ErrBookingNotFound
				}
				return nil, apperror.Wrap(err, apperror.ErrCodePaymentFailed, "не удалось создать платёж")
			}
			if booking.PassengerID != passengerID {
				return nil, apperror.ErrForbidden
			}
			tx.DriverID = booking.DriverID
		}
	}

	intent, err := s.gateway.CreateIntent(ctx, toMinorUnits(in.Amount), currency, metadata)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodePaymentFailed, "не удалось создать платёж")
	}
	tx.StripePaymentIntentID = &intent.ID

	if err := s.repo.Create(ctx, tx); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodePaymentFailed, "не удалось сохранить платёж")
	}

	return &IntentResult{
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ID,
		TransactionID:   tx.ID,
	}, nil
}

// Confirm запрашивает актуальное состояние PaymentIntent и синхронизирует транзакцию.
// Подтвердить платёж может его пассажир или администратор.
func (s *PaymentService) Confirm(ctx context.Context, userID uuid.UUID, role, intentID string) (*ConfirmResult, error) {
	if strings.TrimSpace(intentID) == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "paymentIntentId обязателен")
	}

	admin := models.IsAdminRole(role)
	tx, err := s.repo.GetByIntentID(ctx, intentID)
	switch {
	case err == nil:
		if tx.PassengerID != userID && !admin {
			return nil, apperror.ErrForbidden
		}
	case errors.Is(err, repository.ErrPaymentNotFound):
		// Платёж, созданный вне сервиса, виден только администратору.
		if !admin {
			return nil, apperror.ErrPaymentNotFound
		}
	default:
		return nil, apperror.Wrap(err, apperror.ErrCodeConfirmationFailed, "не удалось подтвердить платёж")
	}

	intent, err := s.gateway.GetIntent(ctx, intentID)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeConfirmationFailed, "не удалось подтвердить платёж")
	}

	s.syncStatus(ctx, intent.ID, intentStatus(intent.Status))

	result := &ConfirmResult{
		Status:   intent.Status,
		Amount:   fromMinorUnits(intent.Amount),
		Currency: intent.Currency,
	}
	if intentStatus(intent.Status) == models.PaymentStatusCompleted {
		sharing := CalculateRevenueSharing(result.Amount)
		result.RevenueSharing = &sharing
	}
	return result, nil
}

// Refund возвращает средства. amount == nil означает полный возврат.
func (s *PaymentService) Refund(ctx context.Context, intentID string, amount *float64) (*RefundResult, error) {
	if strings.TrimSpace(intentID) == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "paymentIntentId обязателен")
	}

	var minor *int64
	if amount != nil {
		if *amount <= 0 {
			return nil, apperror.New(apperror.ErrCodeValidation, "сумма возврата должна быть положительной")
		}
		v := toMinorUnits(*amount)
		minor = &v
	}

	refund, err := s.gateway.Refund(ctx, intentID, minor)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeRefundFailed, "не удалось выполнить возврат")
	}

	if amount == nil {
		s.syncStatus(ctx, intentID, models.PaymentStatusRefunded)
	}

	return &RefundResult{
		RefundID: refund.ID,
		Status:   refund.Status,
		Amount:   fromMinorUnits(refund.Amount),
	}, nil
}

// HandleWebhook проверяет подпись события Stripe и обновляет статус транзакции.
func (s *PaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		return apperror.Wrap(err, apperror.ErrCodeWebhookInvalid, "подпись вебхука недействительна")
	}

	log := logger.Log.WithFields(logrus.Fields{
		"event_id":   event.ID,
		"event_type": event.Type,
	})

	if (event.Type == payments.EventIntentSucceeded || event.Type == payments.EventIntentFailed) && event.Intent == nil {
		return apperror.New(apperror.ErrCodeWebhookInvalid, "событие не содержит PaymentIntent")
	}

	switch event.Type {
	case payments.EventIntentSucceeded:
		s.syncStatus(ctx, event.Intent.ID, models.PaymentStatusCompleted)
	case payments.EventIntentFailed:
		s.syncStatus(ctx, event.Intent.ID, models.PaymentStatusFailed)
	default:
		log.Debug("payment service: событие вебхука пропущено")
		return nil
	}

	log.Info("payment service: вебхук обработан")
	return nil
}

// syncStatus обновляет статус транзакции. Отсутствие транзакции не ошибка: платёж мог быть создан вне сервиса.
func (s *PaymentService) syncStatus(ctx context.Context, intentID, status string) {
	if status == "" {
		return
	}
	if err := s.repo.UpdateStatusByIntentID(ctx, intentID, status); err != nil {
		entry := logger.Log.WithFields(logrus.Fields{
			"payment_intent_id": intentID,
			"status":            status,
		})
		if errors.Is(err, repository.ErrPaymentNotFound) {
			entry.Warn("payment service: транзакция для PaymentIntent не найдена")
			return
		}
		entry.WithError(err).Error("payment service: не удалось обновить статус транзакции")
	}
}

// CalculateRevenueSharing делит сумму поездки между платформой, партнёром и водителем.
func CalculateRevenueSharing(total float64) models.RevenueSharing {
	platformFee := roundMoney(total * platformFeeRate)
	clientCommission := roundMoney(total * clientCommissionRate)
	return models.RevenueSharing{
		TotalAmount:      roundMoney(total),
		PlatformFee:      platformFee,
		ClientCommission: clientCommission,
		DriverEarnings:   roundMoney(total - platformFee - clientCommission),
	}
}

// intentStatus переводит статус Stripe в статус транзакции.
func intentStatus(status string) string {
	switch status {
	case "succeeded":
		return models.PaymentStatusCompleted
	case "processing", "requires_capture":
		return models.PaymentStatusProcessing
	case "canceled":
		return models.PaymentStatusFailed
	case "requires_payment_method", "requires_confirmation", "requires_action":
		return models.PaymentStatusPending
	default:
		return ""
	}
}

func toMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func fromMinorUnits(amount int64) float64 {
	return float64(amount) / 100
}
