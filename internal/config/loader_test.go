package config

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/topoctl/internal/catalog"
	"grimm.is/topoctl/internal/reconcile"
	"grimm.is/topoctl/internal/topology"
)

const exampleHCL = `
schema_version = "1.0"

variable "prefix" {
  default = "veth"
}

settings {
  diverged_policy = "recreate"

  retry {
    attempts      = 6
    initial_delay = "50ms"
    max_delay     = "1s"
  }
}

namespace "ns1" {}

bridge "br0" {
  mtu       = 1500
  addresses = ["10.0.0.1/24"]
}

veth "a" {
  ifname         = "${var.prefix}0"
  master         = "br0"
  peer           = "${var.prefix}1"
  peer_namespace = "ns1"
}

veth "b" {
  ifname    = "${var.prefix}1"
  namespace = "ns1"
  addresses = ["10.0.0.2/24"]
}
`

func key(kind catalog.Kind, scope, name string) catalog.Key {
	return catalog.NewKey(kind, scope, name)
}

func TestLoadExample(t *testing.T) {
	result, err := Load([]byte(exampleHCL), "lab.hcl", DefaultLoadOptions())
	require.NoError(t, err)

	assert.Equal(t, SchemaVersion{Major: 1, Minor: 0}, result.Version)
	assert.Empty(t, result.Warnings)
	assert.Equal(t, reconcile.PolicyRecreate, result.Settings.Policy)
	assert.Equal(t, 6, result.Settings.Retry.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, result.Settings.Retry.InitialDelay)
	assert.Equal(t, time.Second, result.Settings.Retry.MaxDelay)

	decls := result.Declarations
	assert.Equal(t, []topology.Declaration{
		{Kind: catalog.KindNamespace, Name: "ns1", Attributes: nil},
		{Kind: catalog.KindBridge, Name: "br0", Attributes: map[string]string{"mtu": "1500"}},
		{Kind: catalog.KindAddress, Name: "10.0.0.1/24"},
		{Kind: catalog.KindVeth, Name: "veth0", Attributes: map[string]string{}},
		{Kind: catalog.KindVeth, Name: "veth1", Scope: "ns1", Attributes: map[string]string{}},
		{Kind: catalog.KindAddress, Name: "10.0.0.2/24", Scope: "ns1"},
	}, decls.Objects)

	assert.Equal(t, []catalog.Relation{
		{Type: catalog.AttachesTo, From: key(catalog.KindAddress, "", "10.0.0.1/24"), To: key(catalog.KindBridge, "", "br0")},
		{Type: catalog.PairsWith, From: key(catalog.KindVeth, "", "veth0"), To: key(catalog.KindVeth, "ns1", "veth1")},
		{Type: catalog.AttachesTo, From: key(catalog.KindVeth, "", "veth0"), To: key(catalog.KindBridge, "", "br0")},
		{Type: catalog.AttachesTo, From: key(catalog.KindAddress, "ns1", "10.0.0.2/24"), To: key(catalog.KindVeth, "ns1", "veth1")},
	}, decls.Relations)

	// The declarations describe a valid model.
	m, err := topology.Build(decls)
	require.NoError(t, err)
	assert.Equal(t, 6, m.Len())
}

func TestLoadVariables(t *testing.T) {
	opts := LoadOptions{Variables: map[string]string{"prefix": "lab", "unused": "x"}}
	result, err := Load([]byte(exampleHCL), "lab.hcl", opts)
	require.NoError(t, err)

	assert.Equal(t, "lab0", result.Declarations.Objects[3].Name)
	assert.Equal(t, []string{`variable "unused" is set but not declared`}, result.Warnings)

	_, err = Load([]byte(`
variable "site" {}
bridge "br0" {
  ifname = "br-${var.site}"
}
`), "site.hcl", DefaultLoadOptions())
	assert.ErrorContains(t, err, `variable "site" has no default`)

	_, err = Load([]byte(`bridge "br0" { ifname = var.missing }`), "x.hcl", DefaultLoadOptions())
	assert.Error(t, err)
}

func TestLoadNumericVariable(t *testing.T) {
	result, err := Load([]byte(`
variable "mtu" {
  default = "1500"
}
bridge "br0" {
  mtu = var.mtu
}
`), "mtu.hcl", LoadOptions{Variables: map[string]string{"mtu": "9000"}})
	require.NoError(t, err)
	assert.Equal(t, "9000", result.Declarations.Objects[0].Attributes["mtu"])
}

func TestLoadLinksAndVRFs(t *testing.T) {
	result, err := Load([]byte(`
vrf "vrf101" {}

bridge "br0" {
  master = "vrf101"
}

link "vx0" {
  type     = "vxlan"
  vxlan_id = 42
  underlay = "eth0"
  port     = 4789
  remote   = "192.0.2.10"
  master   = "br0"
}

link "d0" {
  type      = "dummy"
  state     = "down"
  addresses = ["2001:DB8::1/64"]
}

relation "attaches-to" {
  from = "link:/d0"
  to   = "vrf:/vrf101"
}
`), "links.hcl", DefaultLoadOptions())
	require.NoError(t, err)

	m, err := topology.Build(result.Declarations)
	require.NoError(t, err)

	vx, ok := m.Object(key(catalog.KindLink, "", "vx0"))
	require.True(t, ok)
	attrs := vx.Attrs.(catalog.LinkAttrs)
	assert.Equal(t, catalog.LinkVXLAN, attrs.LinkType)
	assert.Equal(t, "br0", attrs.Master)
	require.NotNil(t, attrs.VXLAN)
	assert.Equal(t, 42, attrs.VXLAN.ID)
	assert.Equal(t, 4789, attrs.VXLAN.Port)

	vrf, ok := m.Object(key(catalog.KindVRF, "", "vrf101"))
	require.True(t, ok)
	assert.Equal(t, uint32(101), vrf.Attrs.(catalog.VRFAttrs).Table)

	d0, ok := m.Object(key(catalog.KindLink, "", "d0"))
	require.True(t, ok)
	assert.Equal(t, "vrf101", d0.Attrs.(catalog.LinkAttrs).Master)

	_, ok = m.Object(key(catalog.KindAddress, "", "2001:db8::1/64"))
	assert.True(t, ok, "address names are canonical")
}

func TestLoadJSON(t *testing.T) {
	data := []byte(`{
  "namespace": {"ns1": {}},
  "veth": {
    "veth0": {"peer": "veth1", "peer_namespace": "ns1"},
    "veth1": {"namespace": "ns1", "addresses": ["10.0.0.2/24"]}
  }
}`)

	for _, name := range []string{"lab.json", "lab.topo"} {
		t.Run(name, func(t *testing.T) {
			result, err := Load(data, name, DefaultLoadOptions())
			require.NoError(t, err)
			m, err := topology.Build(result.Declarations)
			require.NoError(t, err)
			assert.Equal(t, 4, m.Len())
			assert.Equal(t, DefaultSettings(), result.Settings)
		})
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr string
	}{
		{"syntax", `bridge "br0" {`, "parse error"},
		{"unknown block", `router "r1" {}`, "decode error"},
		{"missing link type", `link "d0" {}`, "decode error"},
		{"schema version", `schema_version = "2.0"`, "unsupported topology schema version 2.0"},
		{"bad policy", `settings { diverged_policy = "ignore" }`, "unknown diverged policy"},
		{"bad delay", `settings {
  retry {
    initial_delay = "soon"
  }
}`, "retry initial_delay"},
		{"delays inverted", `settings {
  retry {
    initial_delay = "5s"
    max_delay     = "1s"
  }
}`, "exceeds max_delay"},
		{"bad relation type", `relation "owns" {
  from = "bridge:/br0"
  to   = "link:/d0"
}`, "unknown relation type"},
		{"bad relation ref", `relation "contains" {
  from = "ns1"
  to   = "link:/d0"
}`, "invalid object reference"},
		{"ambiguous master", `vrf "m" {
  table = 5
}
bridge "m" {}
link "d0" {
  type   = "dummy"
  master = "m"
}`, "ambiguous"},
		{"remote and group", `link "vx0" {
  type     = "vxlan"
  vxlan_id = 1
  remote   = "192.0.2.1"
  group    = "239.1.1.1"
}`, "exclusive"},
		{"peer namespace without peer", `veth "v0" {
  peer_namespace = "ns1"
}`, "peer_namespace without peer"},
		{"duplicate variable", `variable "a" {
  default = "1"
}
variable "a" {
  default = "2"
}`, "declared twice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load([]byte(tt.src), "bad.hcl", DefaultLoadOptions())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestUnknownMasterIsDangling(t *testing.T) {
	result, err := Load([]byte(`link "d0" {
  type   = "dummy"
  master = "nowhere"
}`), "x.hcl", DefaultLoadOptions())
	require.NoError(t, err)

	_, err = topology.Build(result.Declarations)
	var cerr *topology.ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, topology.DanglingReference, cerr.Reason)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lab.hcl")
	require.NoError(t, os.WriteFile(path, []byte(exampleHCL), 0644))

	result, err := LoadFile(path, DefaultLoadOptions())
	require.NoError(t, err)
	assert.Equal(t, path, result.Source)
	assert.Len(t, result.Declarations.Objects, 6)

	_, err = LoadFile(filepath.Join(dir, "missing.hcl"), DefaultLoadOptions())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadFileURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/lab.hcl":
			_, _ = w.Write([]byte(exampleHCL))
		case "/big.hcl":
			_, _ = w.Write(make([]byte, maxSourceSize+1))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	opts := LoadOptions{HTTPClient: srv.Client()}

	result, err := LoadFile(srv.URL+"/lab.hcl", opts)
	require.NoError(t, err)
	assert.Len(t, result.Declarations.Objects, 6)

	_, err = LoadFile(srv.URL+"/missing.hcl", opts)
	assert.ErrorContains(t, err, "404")

	_, err = LoadFile(srv.URL+"/big.hcl", opts)
	assert.ErrorContains(t, err, "exceeds")
}
