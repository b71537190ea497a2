package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rideya/rideya-backend/internal/http/response"
	"github.com/rideya/rideya-backend/internal/pkg/apperror"
)

// UUIDValidator проверяет, что параметр с указанным именем является валидным UUID.
// Использование: group.GET("/:id", UUIDValidator("id"), handler.GetBooking)
func UUIDValidator(paramName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := uuid.Parse(c.Param(paramName)); err != nil {
			response.Abort(c, apperror.New(apperror.ErrCodeValidation, "параметр "+paramName+" должен быть валидным UUID"))
			return
		}
		c.Next()
	}
}
