package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/topoctl/internal/catalog"
	"grimm.is/topoctl/internal/kernel"
	"grimm.is/topoctl/internal/logging"
	"grimm.is/topoctl/internal/reconcile"
	"grimm.is/topoctl/internal/resolver"
	"grimm.is/topoctl/internal/topology"
)

const labHCL = `
namespace "ns1" {}

bridge "br0" {
  mtu = 1500
}

veth "veth0" {
  master         = "br0"
  peer           = "veth1"
  peer_namespace = "ns1"
}

veth "veth1" {
  namespace = "ns1"
  addresses = ["10.0.0.2/24"]
}
`

func writeTopology(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func testOptions(t *testing.T, k kernel.Kernel) (Options, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	return Options{
		Source: writeTopology(t, "lab.hcl", labHCL),
		Logger: logging.Discard(),
		Out:    &out,
		Kernel: k,
	}, &out
}

func TestRunApply_Example(t *testing.T) {
	mem := kernel.NewMemory()
	opts, out := testOptions(t, mem)

	report, err := RunApply(context.Background(), opts)
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.Equal(t, 5, report.Counts()[reconcile.Created])
	assert.True(t, report.Success())
	assert.Contains(t, out.String(), "OUTCOME")
	assert.Contains(t, out.String(), "namespace:/ns1")
	assert.Contains(t, out.String(), "apply: 5 created")
	assert.Len(t, mem.Mutations(), 5)
}

func TestRunApply_Idempotent(t *testing.T) {
	mem := kernel.NewMemory()
	opts, out := testOptions(t, mem)

	_, err := RunApply(context.Background(), opts)
	require.NoError(t, err)
	mem.ResetMutations()
	out.Reset()

	report, err := RunApply(context.Background(), opts)
	require.NoError(t, err)
	assert.False(t, report.Changed())
	assert.Empty(t, mem.Mutations())
	assert.Contains(t, out.String(), "apply: 5 unchanged")
}

func TestRunApply_Simulate(t *testing.T) {
	opts, _ := testOptions(t, nil)
	opts.Simulate = true

	report, err := RunApply(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 5, report.Counts()[reconcile.Created])
}

func TestRunTeardown(t *testing.T) {
	mem := kernel.NewMemory()
	opts, out := testOptions(t, mem)

	_, err := RunApply(context.Background(), opts)
	require.NoError(t, err)
	out.Reset()

	report, err := RunTeardown(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, reconcile.ActionTeardown, report.Action)
	assert.Zero(t, report.Counts()[reconcile.Failed])
	assert.Equal(t, 5, report.Counts()[reconcile.Removed]+report.Counts()[reconcile.Unchanged])
	assert.Contains(t, out.String(), "teardown:")

	obs, err := mem.Exists(context.Background(), catalog.NewKey(catalog.KindNamespace, "", "ns1"))
	require.NoError(t, err)
	assert.Nil(t, obs)
}

func TestRunApply_Formats(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		opts, out := testOptions(t, kernel.NewMemory())
		opts.Format = FormatJSON

		_, err := RunApply(context.Background(), opts)
		require.NoError(t, err)

		var doc map[string]any
		require.NoError(t, json.Unmarshal(out.Bytes(), &doc))
		assert.Equal(t, "apply", doc["action"])
		assert.Len(t, doc["results"], 5)
	})

	t.Run("yaml", func(t *testing.T) {
		opts, out := testOptions(t, kernel.NewMemory())
		opts.Format = FormatYAML

		_, err := RunApply(context.Background(), opts)
		require.NoError(t, err)
		assert.Contains(t, out.String(), "action: apply")
		assert.Contains(t, out.String(), "outcome: Created")
	})

	t.Run("unknown", func(t *testing.T) {
		mem := kernel.NewMemory()
		opts, _ := testOptions(t, mem)
		opts.Format = "xml"

		report, err := RunApply(context.Background(), opts)
		require.Error(t, err)
		assert.Nil(t, report)
		assert.Empty(t, mem.Mutations())
	})
}

func TestRunApply_InvalidTopologyTouchesNothing(t *testing.T) {
	tests := []struct {
		name    string
		content string
		check   func(t *testing.T, err error)
	}{
		{
			name:    "syntax",
			content: "namespace \"ns1\" {\n",
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "failed to load topology")
			},
		},
		{
			name: "dangling master",
			content: `veth "veth0" {
  master = "br9"
  peer   = "veth1"
}
veth "veth1" {}
`,
			check: func(t *testing.T, err error) {
				var cerr *topology.ConfigError
				assert.True(t, errors.As(err, &cerr))
			},
		},
		{
			name: "cycle",
			content: `namespace "a" {
  namespace = "b"
}
namespace "b" {
  namespace = "a"
}
`,
			check: func(t *testing.T, err error) {
				assert.NotNil(t, resolver.AsCycleError(err))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := kernel.NewMemory()
			opts, _ := testOptions(t, mem)
			opts.Source = writeTopology(t, "bad.hcl", tt.content)

			report, err := RunApply(context.Background(), opts)
			require.Error(t, err)
			assert.Nil(t, report)
			tt.check(t, err)
			assert.Empty(t, mem.Mutations())
		})
	}
}

func TestRunApply_PolicyOverride(t *testing.T) {
	opts, _ := testOptions(t, kernel.NewMemory())
	opts.Policy = "sideways"

	_, err := RunApply(context.Background(), opts)
	require.Error(t, err)

	opts.Policy = "recreate"
	_, err = RunApply(context.Background(), opts)
	assert.NoError(t, err)
}

func TestRunApply_PartialFailure(t *testing.T) {
	mem := kernel.NewMemory()
	veth0 := catalog.NewKey(catalog.KindVeth, "", "veth0")
	mem.FailOn("create", veth0, errors.New("operation not supported"), 0)

	opts, out := testOptions(t, mem)
	report, err := RunApply(context.Background(), opts)
	require.Error(t, err)
	require.NotNil(t, report)

	rerr, ok := reconcile.AsReconciliationError(err)
	require.True(t, ok)
	assert.Same(t, report, rerr.Report)

	res, ok := report.Result(veth0)
	require.True(t, ok)
	assert.Equal(t, reconcile.Failed, res.Outcome)
	assert.Contains(t, out.String(), "operation not supported")
	assert.Contains(t, out.String(), "1 failed")
}

func TestRunApply_MetricsTextfile(t *testing.T) {
	opts, _ := testOptions(t, kernel.NewMemory())
	opts.MetricsDir = t.TempDir()

	_, err := RunApply(context.Background(), opts)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(opts.MetricsDir, "topoctl.prom"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `topoctl_objects_total{action="apply",kind="bridge",outcome="Created"} 1`)
	assert.Contains(t, string(data), "topoctl_declared_objects 5")
}

func TestRunApply_Variables(t *testing.T) {
	mem := kernel.NewMemory()
	opts, _ := testOptions(t, mem)
	opts.Source = writeTopology(t, "vars.hcl", `
variable "bridge" {}

bridge "lab" {
  ifname = var.bridge
}
`)
	opts.Load.Variables = map[string]string{"bridge": "br7"}

	report, err := RunApply(context.Background(), opts)
	require.NoError(t, err)
	_, ok := report.Result(catalog.NewKey(catalog.KindBridge, "", "br7"))
	assert.True(t, ok)
}
