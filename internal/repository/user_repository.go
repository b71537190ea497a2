package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rideya/rideya-backend/internal/models"
	"github.com/rideya/rideya-backend/internal/repository/common"
)

// ErrUserNotFound возвращается, когда запись пользователя не найдена.
var ErrUserNotFound = errors.New("user not found")

// ErrUserExists возвращается при нарушении уникальности email, телефона или google_id.
var ErrUserExists = errors.New("user already exists")

// ErrRefreshTokenNotFound возвращается, когда refresh токена нет среди действующих.
var ErrRefreshTokenNotFound = errors.New("refresh token not found")

const userColumns = `id, email, phone, google_id, password_hash, first_name, last_name, role,
	is_verified, email_verified, phone_verified, is_active, refresh_tokens,
	last_login_at, created_at, updated_at`

// UserRepository отвечает за таблицу users и список refresh токенов пользователя.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository создаёт экземпляр репозитория.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create создаёт нового пользователя.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (email, phone, google_id, password_hash, first_name, last_name, role,
			is_verified, email_verified, phone_verified, is_active, refresh_tokens)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, TRUE, $11)
		RETURNING id, is_active, created_at, updated_at
	`

	if user.RefreshTokens == nil {
		user.RefreshTokens = []string{}
	}

	if err := r.db.QueryRowxContext(
		ctx, query,
		normalizeEmail(user.Email), user.Phone, user.GoogleID, user.PasswordHash,
		user.FirstName, user.LastName, user.Role,
		user.IsVerified, user.EmailVerified, user.PhoneVerified, user.RefreshTokens,
	).Scan(&user.ID, &user.IsActive, &user.CreatedAt, &user.UpdatedAt); err != nil {
		if common.IsUniqueViolation(err) {
			return ErrUserExists
		}
		return fmt.Errorf("user repository: create %w", err)
	}

	return nil
}

// GetByID возвращает пользователя по идентификатору.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := common.GetByField[models.User](ctx, r.db, "users", userColumns, "id", id, ErrUserNotFound)
	if err != nil {
		return nil, wrapUserErr("get by id", err)
	}
	return user, nil
}

// GetByEmail возвращает пользователя по email без учёта регистра.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := common.GetByField[models.User](ctx, r.db, "users", userColumns, "LOWER(email)", strings.ToLower(strings.TrimSpace(email)), ErrUserNotFound)
	if err != nil {
		return nil, wrapUserErr("get by email", err)
	}
	return user, nil
}

// GetByPhone возвращает пользователя по номеру телефона.
func (r *UserRepository) GetByPhone(ctx context.Context, phone string) (*models.User, error) {
	user, err := common.GetByField[models.User](ctx, r.db, "users", userColumns, "phone", phone, ErrUserNotFound)
	if err != nil {
		return nil, wrapUserErr("get by phone", err)
	}
	return user, nil
}

// GetByGoogleID возвращает пользователя, привязанного к аккаунту Google.
func (r *UserRepository) GetByGoogleID(ctx context.Context, googleID string) (*models.User, error) {
	user, err := common.GetByField[models.User](ctx, r.db, "users", userColumns, "google_id", googleID, ErrUserNotFound)
	if err != nil {
		return nil, wrapUserErr("get by google id", err)
	}
	return user, nil
}

// AppendRefreshToken добавляет выданный refresh токен к списку действующих.
func (r *UserRepository) AppendRefreshToken(ctx context.Context, userID uuid.UUID, token string) error {
	query := `
		UPDATE users
		SET refresh_tokens = array_append(refresh_tokens, $2),
			last_login_at = NOW(),
			updated_at = NOW()
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, userID, token)
	if err != nil {
		return fmt.Errorf("user repository: append refresh token %w", err)
	}
	return requireAffected(res, ErrUserNotFound)
}

// RotateRefreshToken заменяет oldToken на newToken одним условным UPDATE.
// Если oldToken уже отсутствует (отозван или использован параллельным запросом),
// возвращается ErrRefreshTokenNotFound и список не меняется.
func (r *UserRepository) RotateRefreshToken(ctx context.Context, userID uuid.UUID, oldToken, newToken string) error {
	query := `
		UPDATE users
		SET refresh_tokens = array_append(array_remove(refresh_tokens, $2), $3),
			updated_at = NOW()
		WHERE id = $1 AND $2 = ANY(refresh_tokens)
	`
	res, err := r.db.ExecContext(ctx, query, userID, oldToken, newToken)
	if err != nil {
		return fmt.Errorf("user repository: rotate refresh token %w", err)
	}
	return requireAffected(res, ErrRefreshTokenNotFound)
}

// RemoveRefreshToken удаляет токен из списка. Отсутствующий токен не считается ошибкой.
func (r *UserRepository) RemoveRefreshToken(ctx context.Context, userID uuid.UUID, token string) error {
	query := `
		UPDATE users
		SET refresh_tokens = array_remove(refresh_tokens, $2),
			updated_at = NOW()
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, userID, token); err != nil {
		return fmt.Errorf("user repository: remove refresh token %w", err)
	}
	return nil
}

// LinkGoogleID привязывает аккаунт Google к существующему пользователю.
func (r *UserRepository) LinkGoogleID(ctx context.Context, userID uuid.UUID, googleID string) error {
	query := `
		UPDATE users
		SET google_id = $2, email_verified = TRUE, is_verified = TRUE, updated_at = NOW()
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, userID, googleID)
	if err != nil {
		if common.IsUniqueViolation(err) {
			return ErrUserExists
		}
		return fmt.Errorf("user repository: link google id %w", err)
	}
	return requireAffected(res, ErrUserNotFound)
}

// MarkPhoneVerified отмечает телефон пользователя подтверждённым.
func (r *UserRepository) MarkPhoneVerified(ctx context.Context, userID uuid.UUID) error {
	query := `
		UPDATE users
		SET phone_verified = TRUE, is_verified = TRUE, updated_at = NOW()
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("user repository: mark phone verified %w", err)
	}
	return requireAffected(res, ErrUserNotFound)
}

func wrapUserErr(op string, err error) error {
	if errors.Is(err, ErrUserNotFound) {
		return err
	}
	return fmt.Errorf("user repository: %s %w", op, err)
}

func normalizeEmail(email *string) *string {
	if email == nil {
		return nil
	}
	v := strings.ToLower(strings.TrimSpace(*email))
	return &v
}
