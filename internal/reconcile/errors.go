package reconcile

import (
	"errors"
	"fmt"
)

var (
	// ErrInterrupted is returned when the context is cancelled between
	// objects. The returned error also wraps the context's error.
	ErrInterrupted = errors.New("reconciliation interrupted")

	// ErrStructuralDrift marks an object whose structural attributes differ
	// under the reject policy.
	ErrStructuralDrift = errors.New("structural attributes differ")

	// ErrNotOwned marks an object topoctl did not create and will not
	// recreate or remove.
	ErrNotOwned = errors.New("object not owned by topoctl")
)

// ReconciliationError is returned when any object ended Failed or Skipped.
// It carries the full report.
type ReconciliationError struct {
	Report *Report
}

func (e *ReconciliationError) Error() string {
	counts := e.Report.Counts()
	return fmt.Sprintf("%s: %d failed, %d skipped", e.Report.Action, counts[Failed], counts[Skipped])
}

// AsReconciliationError extracts a *ReconciliationError from err.
func AsReconciliationError(err error) (*ReconciliationError, bool) {
	var re *ReconciliationError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
