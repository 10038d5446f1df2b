package bridge

import (
	"errors"
)

var (
	ErrUnauthorized   = errors.New("Unauthorized")
	ErrInvalidPayload = errors.New("Invalid payload")
	ErrUnknownEntity  = errors.New("unknown entity")
	ErrNotFound       = errors.New("document not found")
)
