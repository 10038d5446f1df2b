//go:build !windows

package snapshot

import (
	"errors"
	"syscall"
)

func isLockError(err error) bool {
	return errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EBUSY) || errors.Is(err, syscall.ETXTBSY)
}
