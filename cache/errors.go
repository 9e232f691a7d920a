package cache

import (
	"errors"
	"strings"

	"github.com/Keksclan/goRawrStash/store"
)

var (
	// ErrWrongType is returned when an operation targets a key holding a
	// different kind of value. Both backends report it.
	ErrWrongType = store.ErrWrongType

	// ErrNotInteger is returned by Incr when the value is not an integer.
	ErrNotInteger = store.ErrNotInteger

	// ErrClosed is returned by every method once the façade is closed.
	ErrClosed = errors.New("cache: closed")
)

// OpError records a failed façade operation.
type OpError struct {
	Op      string
	Key     string
	Backend string
	Err     error
}

func (e *OpError) Error() string {
	var b strings.Builder
	b.WriteString("cache: ")
	b.WriteString(e.Op)
	if e.Key != "" {
		b.WriteString(" ")
		b.WriteString(e.Key)
	}
	if e.Backend != "" {
		b.WriteString(" (")
		b.WriteString(e.Backend)
		b.WriteString(")")
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e *OpError) Unwrap() error { return e.Err }

// logical reports whether err describes the data rather than the backend.
// Such errors are returned to the caller and never trigger a fallback.
func logical(err error) bool {
	return errors.Is(err, ErrWrongType) || errors.Is(err, ErrNotInteger)
}

// mapRedisError translates Redis reply errors into the shared sentinels.
func mapRedisError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.HasPrefix(msg, "WRONGTYPE"):
		return ErrWrongType
	case strings.HasPrefix(msg, "ERR value is not an integer"):
		return ErrNotInteger
	}
	return err
}
