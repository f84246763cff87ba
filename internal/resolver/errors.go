package resolver

import (
	"errors"
	"fmt"
	"strings"

	"grimm.is/topoctl/internal/catalog"
)

// CycleError reports objects that can never be ordered because they depend
// on each other.
type CycleError struct {
	// Participants are the objects lying on a cycle, sorted.
	Participants []catalog.Key
}

func (e *CycleError) Error() string {
	names := make([]string, len(e.Participants))
	for i, k := range e.Participants {
		names[i] = k.String()
	}
	return fmt.Sprintf("dependency cycle between %s", strings.Join(names, ", "))
}

// AsCycleError returns the *CycleError in err's chain, or nil.
func AsCycleError(err error) *CycleError {
	var cerr *CycleError
	if errors.As(err, &cerr) {
		return cerr
	}
	return nil
}
