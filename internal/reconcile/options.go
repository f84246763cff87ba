package reconcile

import (
	"fmt"

	"grimm.is/topoctl/internal/clock"
	"grimm.is/topoctl/internal/logging"
	"grimm.is/topoctl/internal/metrics"
)

// Policy decides what happens to an owned object whose structural
// attributes differ from its declaration.
type Policy string

const (
	// PolicyReject leaves the object alone and fails it.
	PolicyReject Policy = "reject"
	// PolicyRecreate deletes the object and creates it again.
	PolicyRecreate Policy = "recreate"
)

// ParsePolicy parses a policy name. The empty string selects PolicyReject.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyReject:
		return PolicyReject, nil
	case PolicyRecreate:
		return PolicyRecreate, nil
	}
	return "", fmt.Errorf("unknown diverged policy %q (want %q or %q)", s, PolicyReject, PolicyRecreate)
}

// Options configure an Engine. The zero value is usable.
type Options struct {
	Policy Policy
	// Retry applies to each object's check, diff and mutate unit. A zero
	// MaxAttempts selects DefaultRetryConfig.
	Retry   RetryConfig
	Logger  *logging.Logger
	Metrics *metrics.Registry
	Clock   clock.Clock
}

func (o Options) withDefaults() Options {
	if o.Policy == "" {
		o.Policy = PolicyReject
	}
	if o.Retry.MaxAttempts == 0 {
		o.Retry = DefaultRetryConfig()
	}
	if o.Logger == nil {
		o.Logger = logging.Default()
	}
	if o.Clock == nil {
		o.Clock = clock.Real{}
	}
	return o
}
