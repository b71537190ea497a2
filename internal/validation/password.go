package validation

import "fmt"

const (
	MinPasswordLength = 8
	// MaxPasswordLength ограничение bcrypt: байты сверх 72 не участвуют в хеше.
	MaxPasswordLength = 72
)

// ValidatePassword проверяет длину пароля.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("пароль должен быть не менее %d символов", MinPasswordLength)
	}
	if len(password) > MaxPasswordLength {
		return fmt.Errorf("пароль должен быть не более %d байт", MaxPasswordLength)
	}
	return nil
}
