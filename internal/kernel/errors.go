package kernel

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

var (
	ErrAlreadyExists    = errors.New("already exists")
	ErrNotFound         = errors.New("not found")
	ErrPermissionDenied = errors.New("permission denied")
	// ErrTransient is a temporary failure worth retrying.
	ErrTransient = errors.New("transient kernel error")
	// ErrBusy means the object is still in use. Retryable.
	ErrBusy        = errors.New("busy")
	ErrUnsupported = errors.New("unsupported")
)

var sentinels = []error{
	ErrAlreadyExists, ErrNotFound, ErrPermissionDenied, ErrTransient, ErrBusy, ErrUnsupported,
}

// Classify maps a raw kernel error onto the sentinel errors above. The
// returned error wraps both the sentinel and the original error. Errors that
// are already classified, or not recognised, are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return err
		}
	}

	var errno unix.Errno
	if !errors.As(err, &errno) {
		return err
	}
	var sentinel error
	switch errno {
	case unix.EEXIST:
		sentinel = ErrAlreadyExists
	case unix.ENOENT, unix.ENODEV, unix.ESRCH:
		sentinel = ErrNotFound
	case unix.EPERM, unix.EACCES:
		sentinel = ErrPermissionDenied
	case unix.EAGAIN, unix.EINTR, unix.ENOBUFS:
		sentinel = ErrTransient
	case unix.EBUSY:
		sentinel = ErrBusy
	case unix.EOPNOTSUPP, unix.EAFNOSUPPORT, unix.EPROTONOSUPPORT:
		sentinel = ErrUnsupported
	default:
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrBusy)
}
