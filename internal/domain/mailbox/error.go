package mailbox

import (
	"errors"
)

var (
	ErrNotFound          = errors.New("command not found")
	ErrInvalidCommand    = errors.New("invalid command")
	ErrInvalidStatus     = errors.New("ack status must be done or failed")
	ErrInvalidTransition = errors.New("command is not awaiting acknowledgement")
)
