package testutil

import (
	"os"
	"testing"

	"grimm.is/topoctl/internal/brand"
)

// VMEnv is the environment variable that enables privileged tests.
var VMEnv = brand.ConfigEnvPrefix + "_VM_TEST"

// RequireVM skips the test unless TOPOCTL_VM_TEST is set. Tests that create
// real namespaces and links need root in a disposable machine.
func RequireVM(t *testing.T) {
	t.Helper()
	if os.Getenv(VMEnv) == "" {
		t.Skipf("Skipping test: requires %s environment", VMEnv)
	}
	if os.Geteuid() != 0 {
		t.Skip("Skipping test: requires root")
	}
}
