package repository

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrDuplicate is returned when an event id was already appended
	ErrDuplicate = errors.New("event already appended")
	// ErrInvalidInput wraps events rejected before they reach the database
	ErrInvalidInput = errors.New("invalid event")
)

// uniqueViolation is the Postgres SQLSTATE for a unique constraint failure
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
