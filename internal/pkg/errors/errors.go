package errors

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalid       = errors.New("invalid")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrUnavailable   = errors.New("index unavailable")
	ErrSchemaVersion = errors.New("embedding schema version mismatch")
	ErrTooMany       = errors.New("too many requests")
	ErrInternal      = errors.New("internal")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
