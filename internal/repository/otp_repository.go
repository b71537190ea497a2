package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rideya/rideya-backend/internal/models"
	"github.com/rideya/rideya-backend/internal/repository/common"
)

// ErrOTPNotFound возвращается, когда для телефона нет активного кода.
var ErrOTPNotFound = errors.New("otp not found")

// ErrOTPNotActive возвращается, когда код уже использован, истёк или исчерпал попытки.
var ErrOTPNotActive = errors.New("otp is not active")

// OTPRepository хранит одноразовые коды подтверждения телефона.
type OTPRepository struct {
	db *sqlx.DB
}

func NewOTPRepository(db *sqlx.DB) *OTPRepository {
	return &OTPRepository{db: db}
}

// Replace удаляет неподтверждённые коды телефона и сохраняет новый в одной транзакции,
// поэтому у номера всегда не больше одного активного кода.
func (r *OTPRepository) Replace(ctx context.Context, phone, codeHash string, expiresAt time.Time) (*models.OTP, error) {
	var otp models.OTP
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM otps WHERE phone = $1 AND verified = FALSE`, phone); err != nil {
			return fmt.Errorf("delete previous: %w", err)
		}
		return tx.GetContext(ctx, &otp, `
			INSERT INTO otps (phone, code_hash, expires_at)
			VALUES ($1, $2, $3)
			RETURNING id, phone, code_hash, expires_at, attempts, verified, created_at
		`, phone, codeHash, expiresAt)
	})
	if err != nil {
		return nil, fmt.Errorf("otp repository: replace %w", err)
	}
	return &otp, nil
}

// GetActive возвращает последний неподтверждённый код телефона, включая истёкший.
func (r *OTPRepository) GetActive(ctx context.Context, phone string) (*models.OTP, error) {
	var otp models.OTP
	err := r.db.GetContext(ctx, &otp, `
		SELECT id, phone, code_hash, expires_at, attempts, verified, created_at
		FROM otps
		WHERE phone = $1 AND verified = FALSE
		ORDER BY created_at DESC
		LIMIT 1
	`, phone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOTPNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("otp repository: get active %w", err)
	}
	return &otp, nil
}

// IncrementAttempts атомарно увеличивает счётчик неудачных попыток и возвращает новое значение.
func (r *OTPRepository) IncrementAttempts(ctx context.Context, id uuid.UUID) (int, error) {
	var attempts int
	err := r.db.GetContext(ctx, &attempts, `
		UPDATE otps SET attempts = attempts + 1
		WHERE id = $1
		RETURNING attempts
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrOTPNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("otp repository: increment attempts %w", err)
	}
	return attempts, nil
}

// Consume помечает код использованным, только если он ещё активен.
// Из двух параллельных проверок одного кода успешной будет ровно одна.
func (r *OTPRepository) Consume(ctx context.Context, id uuid.UUID, maxAttempts int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE otps SET verified = TRUE
		WHERE id = $1 AND verified = FALSE AND attempts < $2 AND expires_at > NOW()
	`, id, maxAttempts)
	if err != nil {
		return fmt.Errorf("otp repository: consume %w", err)
	}
	return requireAffected(res, ErrOTPNotActive)
}

// DeleteExpired удаляет истёкшие коды и возвращает их количество.
func (r *OTPRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM otps WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("otp repository: delete expired %w", err)
	}
	return res.RowsAffected()
}
