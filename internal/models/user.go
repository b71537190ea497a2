package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// User описывает пассажира, водителя или администратора платформы.
type User struct {
	ID            uuid.UUID      `db:"id" json:"id"`
	Email         *string        `db:"email" json:"email,omitempty"`
	Phone         *string        `db:"phone" json:"phone,omitempty"`
	GoogleID      *string        `db:"google_id" json:"-"`
	PasswordHash  *string        `db:"password_hash" json:"-"`
	FirstName     string         `db:"first_name" json:"firstName"`
	LastName      string         `db:"last_name" json:"lastName"`
	Role          string         `db:"role" json:"role"`
	IsVerified    bool           `db:"is_verified" json:"isVerified"`
	EmailVerified bool           `db:"email_verified" json:"emailVerified"`
	PhoneVerified bool           `db:"phone_verified" json:"phoneVerified"`
	IsActive      bool           `db:"is_active" json:"isActive"`
	RefreshTokens pq.StringArray `db:"refresh_tokens" json:"-"`
	LastLoginAt   *time.Time     `db:"last_login_at" json:"lastLoginAt,omitempty"`
	CreatedAt     time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updatedAt"`
}

// HasRefreshToken сообщает, числится ли токен среди действующих сессий пользователя.
func (u *User) HasRefreshToken(token string) bool {
	for _, t := range u.RefreshTokens {
		if t == token {
			return true
		}
	}
	return false
}

// EmailValue возвращает email или пустую строку.
func (u *User) EmailValue() string {
	if u.Email == nil {
		return ""
	}
	return *u.Email
}

// PhoneValue возвращает телефон или пустую строку.
func (u *User) PhoneValue() string {
	if u.Phone == nil {
		return ""
	}
	return *u.Phone
}
