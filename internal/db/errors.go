package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/surrealdb/surrealdb.go"
)

// Sentinel errors for store operations. Check with errors.Is.
var (
	// ErrAlreadyExists is returned when creating a video whose id is taken.
	ErrAlreadyExists = errors.New("video already exists")

	// ErrTransactionConflict is returned when concurrent writes collide on one record.
	// The write can be retried.
	ErrTransactionConflict = errors.New("transaction conflict")

	// ErrNotFound is returned when updating a video that does not exist.
	ErrNotFound = errors.New("video not found")
)

// wrapQueryError maps SurrealDB query errors onto the sentinels above.
func wrapQueryError(err error) error {
	if err == nil {
		return nil
	}

	var queryErr *surrealdb.QueryError
	if errors.As(err, &queryErr) {
		msg := queryErr.Message
		switch {
		case strings.Contains(msg, "already exists"):
			return fmt.Errorf("%w: %s", ErrAlreadyExists, msg)
		case strings.Contains(msg, "Transaction conflict"):
			return fmt.Errorf("%w: %s", ErrTransactionConflict, msg)
		}
	}

	return err
}

// Retryable reports whether a failed write may succeed when repeated.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAlreadyExists) || errors.Is(err, ErrNotFound) {
		return false
	}
	return true
}
