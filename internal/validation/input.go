package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/rideya/rideya-backend/internal/models"
)

// Константы валидации
const (
	MinNameLength    = 1
	MaxNameLength    = 50
	OTPLength        = 6
	MaxAddressLength = 300
	MaxSubjectLength = 200
	MaxMessageLength = 1600
)

var (
	emailLocalRegex  = regexp.MustCompile(`^[a-z0-9._+-]+$`)
	emailDomainRegex = regexp.MustCompile(`^[a-z0-9.-]+\.[a-z]{2,}$`)
	phoneRegex       = regexp.MustCompile(`^\+[1-9]\d{7,14}$`)
	otpRegex         = regexp.MustCompile(`^\d{6}$`)
)

// ValidateLength проверяет длину строки.
func ValidateLength(fieldName, value string, min, max int) error {
	length := utf8.RuneCountInString(value)
	if min > 0 && length < min {
		return fmt.Errorf("%s должен быть не менее %d символов", fieldName, min)
	}
	if max > 0 && length > max {
		return fmt.Errorf("%s должен быть не более %d символов", fieldName, max)
	}
	return nil
}

// ValidateEmail проверяет формат email.
func ValidateEmail(email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return fmt.Errorf("email обязателен")
	}

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return fmt.Errorf("некорректный формат email")
	}

	localPart, domainPart := parts[0], parts[1]
	if len(localPart) == 0 || len(localPart) > 64 {
		return fmt.Errorf("локальная часть email должна быть от 1 до 64 символов")
	}
	if len(domainPart) == 0 || len(domainPart) > 255 {
		return fmt.Errorf("доменная часть email должна быть от 1 до 255 символов")
	}
	if !emailLocalRegex.MatchString(localPart) {
		return fmt.Errorf("локальная часть email содержит недопустимые символы")
	}
	if !emailDomainRegex.MatchString(domainPart) {
		return fmt.Errorf("доменная часть email имеет некорректный формат")
	}

	return nil
}

// ValidatePhone проверяет номер телефона в формате E.164.
func ValidatePhone(phone string) error {
	if !phoneRegex.MatchString(strings.TrimSpace(phone)) {
		return fmt.Errorf("некорректный номер телефона")
	}
	return nil
}

// ValidateOTPCode проверяет, что код состоит ровно из шести цифр.
func ValidateOTPCode(code string) error {
	if !otpRegex.MatchString(code) {
		return fmt.Errorf("код должен состоять из %d цифр", OTPLength)
	}
	return nil
}

// ValidateName проверяет имя или фамилию.
func ValidateName(fieldName, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("%s обязательно", fieldName)
	}
	return ValidateLength(fieldName, value, MinNameLength, MaxNameLength)
}

// ValidateRegistrationRole проверяет роль, указанную при регистрации. Пустая роль допустима.
func ValidateRegistrationRole(role string) error {
	if role == "" {
		return nil
	}
	if _, ok := models.ValidRoles[role]; !ok {
		return fmt.Errorf("неизвестная роль %q", role)
	}
	if _, ok := models.SelfAssignableRoles[role]; !ok {
		return fmt.Errorf("роль %q нельзя выбрать при регистрации", role)
	}
	return nil
}

// ValidateCoordinates проверяет долготу и широту.
func ValidateCoordinates(lng, lat float64) error {
	if lng < -180 || lng > 180 {
		return fmt.Errorf("долгота должна быть в диапазоне [-180, 180]")
	}
	if lat < -90 || lat > 90 {
		return fmt.Errorf("широта должна быть в диапазоне [-90, 90]")
	}
	return nil
}
