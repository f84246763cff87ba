package topology

import (
	"errors"
	"fmt"
)

// ErrConfig matches every *ConfigError with errors.Is.
var ErrConfig = errors.New("invalid topology")

// Reason classifies a ConfigError.
type Reason string

const (
	DuplicateObject   Reason = "DuplicateObject"
	DanglingReference Reason = "DanglingReference"
	MalformedPair     Reason = "MalformedPair"
	InvalidAttachment Reason = "InvalidAttachment"
	InvalidAttributes Reason = "InvalidAttributes"
)

// ConfigError is a structural problem in the declarations. It is always
// reported before anything touches the kernel.
type ConfigError struct {
	Reason Reason
	// Object names the offending declaration or relation.
	Object string
	Detail string
}

func (e *ConfigError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", e.Reason, e.Object)
	}
	return fmt.Sprintf("%s: %s: %s", e.Reason, e.Object, e.Detail)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}

func configErr(reason Reason, object fmt.Stringer, format string, args ...any) *ConfigError {
	return &ConfigError{Reason: reason, Object: object.String(), Detail: fmt.Sprintf(format, args...)}
}
