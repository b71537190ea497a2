package common

import (
	"errors"

	"github.com/lib/pq"
)

// IsUniqueViolation сообщает, что запрос нарушил уникальный индекс (SQLSTATE 23505).
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
