package models

import (
	"time"

	"github.com/google/uuid"
)

// OTP хранит одноразовый код подтверждения телефона. Сам код лежит в виде bcrypt-хеша.
type OTP struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Phone     string    `db:"phone" json:"phone"`
	CodeHash  string    `db:"code_hash" json:"-"`
	ExpiresAt time.Time `db:"expires_at" json:"expiresAt"`
	Attempts  int       `db:"attempts" json:"attempts"`
	Verified  bool      `db:"verified" json:"verified"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Expired сообщает, истёк ли срок действия кода на момент now.
func (o *OTP) Expired(now time.Time) bool {
	return !now.Before(o.ExpiresAt)
}
