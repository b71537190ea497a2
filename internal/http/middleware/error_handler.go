package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/rideya/rideya-backend/internal/http/response"
	"github.com/rideya/rideya-backend/internal/logger"
	"github.com/rideya/rideya-backend/internal/pkg/apperror"
	"github.com/rideya/rideya-backend/internal/repository/common"
)

// FieldError описывает ошибку валидации одного поля.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ErrorHandler превращает ошибки из c.Errors в единый конверт ответа.
// Внутренние ошибки маскируются, клиент видит только код и сообщение.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() || len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		appErr := classify(err)

		entry := logger.Log.WithFields(logrus.Fields{
			"error":  err.Error(),
			"code":   appErr.Code,
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		})
		if appErr.HTTPStatus >= 500 {
			entry.Error("request error")
		} else {
			entry.Debug("request rejected")
		}

		response.Error(c, appErr)
	}
}

// classify сводит произвольную ошибку к AppError.
func classify(err error) *apperror.AppError {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		details := make([]FieldError, 0, len(validationErrs))
		for _, fe := range validationErrs {
			details = append(details, FieldError{Field: jsonFieldName(fe), Message: fieldMessage(fe)})
		}
		return apperror.New(apperror.ErrCodeValidation, "ошибка валидации запроса").WithDetails(details)
	}

	if errors.Is(err, io.EOF) {
		return apperror.New(apperror.ErrCodeValidation, "тело запроса пустое")
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return apperror.New(apperror.ErrCodeValidation, "некорректный JSON в теле запроса")
	}

	if common.IsUniqueViolation(err) {
		var pqErr *pq.Error
		message := "запись уже существует"
		if errors.As(err, &pqErr) && pqErr.Constraint != "" {
			message = fmt.Sprintf("запись уже существует (%s)", pqErr.Constraint)
		}
		return apperror.Wrap(err, apperror.ErrCodeDuplicate, message)
	}

	return apperror.Wrap(err, apperror.ErrCodeInternal, apperror.ErrInternal.Message)
}

func jsonFieldName(fe validator.FieldError) string {
	field := fe.Field()
	if field == "" {
		return fe.Namespace()
	}
	return strings.ToLower(field[:1]) + field[1:]
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "поле обязательно"
	case "email":
		return "некорректный email"
	case "min":
		return fmt.Sprintf("минимальное значение или длина %s", fe.Param())
	case "max":
		return fmt.Sprintf("максимальное значение или длина %s", fe.Param())
	case "len":
		return fmt.Sprintf("длина должна быть %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("допустимые значения: %s", fe.Param())
	case "uuid":
		return "должен быть UUID"
	case "gt":
		return fmt.Sprintf("должно быть больше %s", fe.Param())
	default:
		return fmt.Sprintf("не прошло проверку %s", fe.Tag())
	}
}
