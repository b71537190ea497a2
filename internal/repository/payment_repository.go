package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/rideya/rideya-backend/internal/models"
	"github.com/rideya/rideya-backend/internal/repository/common"
)

// ErrPaymentNotFound возвращается, когда транзакция не найдена.
var ErrPaymentNotFound = errors.New("payment not found")

const paymentColumns = `id, booking_id, passenger_id, driver_id, amount, currency, method, status,
	stripe_payment_intent_id, created_at, updated_at`

// PaymentRepository отвечает за таблицу payment_transactions.
type PaymentRepository struct {
	db *sqlx.DB
}

func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create сохраняет транзакцию.
func (r *PaymentRepository) Create(ctx context.Context, p *models.PaymentTransaction) error {
	query := `
		INSERT INTO payment_transactions (booking_id, passenger_id, driver_id, amount, currency, method, status, stripe_payment_intent_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`
	if err := r.db.QueryRowxContext(ctx, query,
		p.BookingID, p.PassengerID, p.DriverID, p.Amount, p.Currency, p.Method, p.Status, p.StripePaymentIntentID,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return fmt.Errorf("payment repository: create %w", err)
	}
	return nil
}

// GetByIntentID возвращает транзакцию по идентификатору PaymentIntent.
func (r *PaymentRepository) GetByIntentID(ctx context.Context, intentID string) (*models.PaymentTransaction, error) {
	p, err := common.GetByField[models.PaymentTransaction](ctx, r.db, "payment_transactions", paymentColumns, "stripe_payment_intent_id", intentID, ErrPaymentNotFound)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("payment repository: get by intent %w", err)
	}
	return p, nil
}

// UpdateStatusByIntentID меняет статус транзакции по PaymentIntent.
func (r *PaymentRepository) UpdateStatusByIntentID(ctx context.Context, intentID, status string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE payment_transactions SET status = $2, updated_at = NOW()
		WHERE stripe_payment_intent_id = $1
	`, intentID, status)
	if err != nil {
		return fmt.Errorf("payment repository: update status %w", err)
	}
	return requireAffected(res, ErrPaymentNotFound)
}
