package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden          ErrorCode = "FORBIDDEN"
	ErrCodeBadRequest         ErrorCode = "BAD_REQUEST"
	ErrCodeConflict           ErrorCode = "CONFLICT"
	ErrCodeInternal           ErrorCode = "INTERNAL_SERVER_ERROR"
	ErrCodeValidation         ErrorCode = "VALIDATION_ERROR"
	ErrCodeDuplicate          ErrorCode = "DUPLICATE_ERROR"
	ErrCodeRateLimited        ErrorCode = "RATE_LIMITED"
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"

	// Аутентификация.
	ErrCodeUserExists         ErrorCode = "USER_EXISTS"
	ErrCodeUserNotFound       ErrorCode = "USER_NOT_FOUND"
	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeAccountDisabled    ErrorCode = "ACCOUNT_DISABLED"
	ErrCodeMissingToken       ErrorCode = "MISSING_TOKEN"
	ErrCodeInvalidToken       ErrorCode = "INVALID_TOKEN"
	ErrCodeTokenRefreshFailed ErrorCode = "TOKEN_REFRESH_FAILED"
	ErrCodeMissingFields      ErrorCode = "MISSING_FIELDS"
	ErrCodeRegistrationFailed ErrorCode = "REGISTRATION_FAILED"
	ErrCodeLoginFailed        ErrorCode = "LOGIN_FAILED"

	// OTP.
	ErrCodeInvalidOTP       ErrorCode = "INVALID_OTP"
	ErrCodeTooManyAttempts  ErrorCode = "TOO_MANY_ATTEMPTS"
	ErrCodeOTPSendFailed    ErrorCode = "OTP_SEND_FAILED"
	ErrCodeVerificationFail ErrorCode = "VERIFICATION_FAILED"

	// Поездки и платежи.
	ErrCodeInvalidTransition  ErrorCode = "INVALID_TRANSITION"
	ErrCodePaymentFailed      ErrorCode = "PAYMENT_FAILED"
	ErrCodeConfirmationFailed ErrorCode = "PAYMENT_CONFIRMATION_FAILED"
	ErrCodeRefundFailed       ErrorCode = "REFUND_FAILED"
	ErrCodeWebhookInvalid     ErrorCode = "WEBHOOK_SIGNATURE_INVALID"

	// Уведомления.
	ErrCodeEmailSendFailed ErrorCode = "EMAIL_SEND_FAILED"
	ErrCodeSMSSendFailed   ErrorCode = "SMS_SEND_FAILED"
	ErrCodePushSendFailed  ErrorCode = "PUSH_SEND_FAILED"
	ErrCodeBulkFailed      ErrorCode = "BULK_NOTIFICATION_FAILED"
)

type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Details    interface{}
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is сравнивает ошибки по коду, чтобы errors.Is работал с обёрнутыми копиями.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Cause:      err,
	}
}

// WithDetails возвращает копию ошибки с дополнительными деталями для клиента.
func (e *AppError) WithDetails(details interface{}) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound, ErrCodeUserNotFound:
		return http.StatusNotFound
	case ErrCodeUnauthorized, ErrCodeInvalidCredentials, ErrCodeInvalidToken, ErrCodeTokenRefreshFailed:
		return http.StatusUnauthorized
	case ErrCodeForbidden, ErrCodeAccountDisabled:
		return http.StatusForbidden
	case ErrCodeBadRequest, ErrCodeValidation, ErrCodeMissingToken, ErrCodeMissingFields,
		ErrCodeInvalidOTP, ErrCodeWebhookInvalid:
		return http.StatusBadRequest
	case ErrCodeConflict, ErrCodeDuplicate, ErrCodeUserExists, ErrCodeInvalidTransition:
		return http.StatusConflict
	case ErrCodeTooManyAttempts, ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func IsNotFound(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && (appErr.Code == ErrCodeNotFound || appErr.Code == ErrCodeUserNotFound)
}

func IsForbidden(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeForbidden
}

func IsValidation(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeValidation
}

// CodeOf возвращает код ошибки или пустую строку, если это не AppError.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

var (
	ErrUnauthorized       = New(ErrCodeUnauthorized, "требуется авторизация")
	ErrForbidden          = New(ErrCodeForbidden, "недостаточно прав")
	ErrNotFound           = New(ErrCodeNotFound, "ресурс не найден")
	ErrRouteNotFound      = New(ErrCodeNotFound, "маршрут не найден")
	ErrUserNotFound       = New(ErrCodeUserNotFound, "пользователь не найден")
	ErrUserExists         = New(ErrCodeUserExists, "пользователь с таким email уже существует")
	ErrInvalidCredentials = New(ErrCodeInvalidCredentials, "неверный email или пароль")
	ErrAccountDisabled    = New(ErrCodeAccountDisabled, "аккаунт заблокирован")
	ErrMissingToken       = New(ErrCodeMissingToken, "refresh токен обязателен")
	ErrInvalidToken       = New(ErrCodeInvalidToken, "недействительный refresh токен")
	ErrTokenRefreshFailed = New(ErrCodeTokenRefreshFailed, "refresh токен невалиден или истёк")
	ErrInvalidOTP         = New(ErrCodeInvalidOTP, "неверный или просроченный код")
	ErrTooManyAttempts    = New(ErrCodeTooManyAttempts, "слишком много неудачных попыток, запросите новый код")
	ErrOTPSendFailed      = New(ErrCodeOTPSendFailed, "не удалось отправить код")
	ErrMissingFields      = New(ErrCodeMissingFields, "для регистрации требуются имя и фамилия")
	ErrDuplicate          = New(ErrCodeDuplicate, "пользователь уже существует")
	ErrInvalidTransition  = New(ErrCodeInvalidTransition, "недопустимый переход статуса поездки")
	ErrBookingNotFound    = New(ErrCodeNotFound, "поездка не найдена")
	ErrPaymentNotFound    = New(ErrCodeNotFound, "платёж не найден")
	ErrInternal           = New(ErrCodeInternal, "внутренняя ошибка сервера")
)
