package errcode

const (
	ErrUnknown = 10000000 + iota
	ErrUnauthorized
	ErrNotFound
	ErrInvalid
	ErrTooMany
	ErrInternal
	ErrIndexUnavailable
	ErrSchemaVersion
	ErrIngestFailed
	ErrAIUnavailable
)
