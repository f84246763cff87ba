package catalog

import (
	"net/netip"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	for _, k := range Kinds() {
		got, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}

	got, err := ParseKind("NetNS")
	require.NoError(t, err)
	assert.Equal(t, KindNamespace, got)

	_, err = ParseKind("tunnel")
	assert.Error(t, err)
}

func TestKeyOrdering(t *testing.T) {
	keys := []Key{
		NewKey(KindVeth, "ns1", "veth1"),
		NewKey(KindBridge, "", "br0"),
		NewKey(KindNamespace, "", "ns1"),
		NewKey(KindVeth, "", "veth0"),
		NewKey(KindAddress, "", "10.0.0.1/24"),
	}
	slices.SortFunc(keys, Compare)

	want := []string{
		"namespace:/ns1",
		"bridge:/br0",
		"veth:/veth0",
		"veth:ns1/veth1",
		"address:/10.0.0.1/24",
	}
	var got []string
	for _, k := range keys {
		got = append(got, k.String())
	}
	assert.Equal(t, want, got)
}

func TestParseKey(t *testing.T) {
	tests := []struct {
		in   string
		want Key
	}{
		{"veth:veth0", NewKey(KindVeth, "", "veth0")},
		{"veth:/veth0", NewKey(KindVeth, "", "veth0")},
		{"veth:ns1/veth1", NewKey(KindVeth, "ns1", "veth1")},
		{"address:ns1/10.0.0.1/24", NewKey(KindAddress, "ns1", "10.0.0.1/24")},
		{"address:10.0.0.1/24", NewKey(KindAddress, "", "10.0.0.1/24")},
		{"address:2001:db8::1/64", NewKey(KindAddress, "", "2001:db8::1/64")},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKey(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseKey("veth0")
	assert.Error(t, err)
	_, err = ParseKey("veth:ns1/")
	assert.Error(t, err)
}

func TestCanonicalPair(t *testing.T) {
	a := NewKey(KindVeth, "", "veth0")
	b := NewKey(KindVeth, "ns1", "veth1")

	r := Relation{Type: PairsWith, From: b, To: a}.Canonical()
	assert.Equal(t, a, r.From)
	assert.Equal(t, b, r.To)

	// Non-symmetric relations keep their direction.
	c := Relation{Type: AttachesTo, From: b, To: a}.Canonical()
	assert.Equal(t, b, c.From)
}

func TestCanAttach(t *testing.T) {
	assert.True(t, CanAttach(KindVeth, KindBridge))
	assert.True(t, CanAttach(KindLink, KindVRF))
	assert.True(t, CanAttach(KindBridge, KindVRF))
	assert.True(t, CanAttach(KindAddress, KindVeth))
	assert.False(t, CanAttach(KindBridge, KindBridge))
	assert.False(t, CanAttach(KindNamespace, KindBridge))
	assert.False(t, CanAttach(KindVRF, KindVRF))
	assert.False(t, CanAttach(KindAddress, KindNamespace))
}

func TestCanUse(t *testing.T) {
	assert.True(t, CanUse(KindLink, KindVeth))
	assert.True(t, CanUse(KindLink, KindBridge))
	assert.False(t, CanUse(KindVeth, KindLink))
	assert.False(t, CanUse(KindLink, KindAddress))

	typ, err := ParseRelationType("uses")
	assert.NoError(t, err)
	assert.Equal(t, Uses, typ)
}

func TestParseAttributes(t *testing.T) {
	t.Run("bridge defaults to up", func(t *testing.T) {
		a, err := ParseAttributes(KindBridge, "br0", map[string]string{"mtu": "9000"})
		require.NoError(t, err)
		assert.Equal(t, BridgeAttrs{LinkCommon: LinkCommon{MTU: 9000, State: StateUp}}, a)
	})

	t.Run("vrf table from name", func(t *testing.T) {
		a, err := ParseAttributes(KindVRF, "vrf101", nil)
		require.NoError(t, err)
		assert.Equal(t, uint32(101), a.(VRFAttrs).Table)
	})

	t.Run("vrf explicit table wins", func(t *testing.T) {
		a, err := ParseAttributes(KindVRF, "vrf101", map[string]string{"table": "7"})
		require.NoError(t, err)
		assert.Equal(t, uint32(7), a.(VRFAttrs).Table)
	})

	t.Run("vxlan", func(t *testing.T) {
		a, err := ParseAttributes(KindLink, "vx0", map[string]string{
			"type": "vxlan", "vxlan_id": "42", "underlay": "eth0", "remote": "192.0.2.1",
		})
		require.NoError(t, err)
		l := a.(LinkAttrs)
		assert.Equal(t, "vxlan", l.Type())
		assert.Equal(t, &VXLANAttrs{ID: 42, Underlay: "eth0", Remote: "192.0.2.1"}, l.VXLAN)
	})

	t.Run("address", func(t *testing.T) {
		a, err := ParseAttributes(KindAddress, "10.0.0.1/24", nil)
		require.NoError(t, err)
		assert.Equal(t, netip.MustParsePrefix("10.0.0.1/24"), a.(AddressAttrs).Prefix)
	})

	errCases := []struct {
		name string
		kind Kind
		obj  string
		raw  map[string]string
	}{
		{"unknown key", KindBridge, "br0", map[string]string{"stp": "on"}},
		{"bad mtu", KindVeth, "v", map[string]string{"mtu": "abc"}},
		{"small mtu", KindVeth, "v", map[string]string{"mtu": "10"}},
		{"bad state", KindBridge, "br0", map[string]string{"state": "sideways"}},
		{"vrf without table", KindVRF, "red", nil},
		{"vrf zero table", KindVRF, "red", map[string]string{"table": "0"}},
		{"link without type", KindLink, "l0", nil},
		{"dummy with vxlan id", KindLink, "l0", map[string]string{"type": "dummy", "vxlan_id": "1"}},
		{"vxlan without id", KindLink, "vx0", map[string]string{"type": "vxlan"}},
		{"vxlan bad remote", KindLink, "vx0", map[string]string{"type": "vxlan", "vxlan_id": "1", "remote": "x"}},
		{"namespace attrs", KindNamespace, "ns1", map[string]string{"mtu": "1500"}},
		{"bad address", KindAddress, "10.0.0.300/24", nil},
		{"non-canonical address", KindAddress, "2001:DB8::1/64", nil},
	}
	for _, tc := range errCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseAttributes(tc.kind, tc.obj, tc.raw)
			assert.Error(t, err)
		})
	}
}

func TestAttributesDiff(t *testing.T) {
	desired := BridgeAttrs{LinkCommon: LinkCommon{MTU: 9000, State: StateUp, Master: "vrf1"}}

	s, m := desired.Diff(BridgeAttrs{LinkCommon: LinkCommon{MTU: 9000, State: StateUp, Master: "vrf1"}})
	assert.Empty(t, s)
	assert.Empty(t, m)

	s, m = desired.Diff(BridgeAttrs{LinkCommon: LinkCommon{MTU: 1500, State: StateDown}})
	assert.Empty(t, s)
	assert.Equal(t, []string{"mtu", "state", "master"}, m)

	// Unset MTU is not managed.
	s, m = BridgeAttrs{LinkCommon: LinkCommon{State: StateUp}}.Diff(BridgeAttrs{LinkCommon: LinkCommon{MTU: 1500, State: StateUp}})
	assert.Empty(t, s)
	assert.Empty(t, m)

	s, _ = VRFAttrs{Table: 10}.Diff(VRFAttrs{Table: 11})
	assert.Equal(t, []string{"table"}, s)

	s, _ = desired.Diff(LinkAttrs{LinkType: LinkDummy})
	assert.Equal(t, []string{"kind"}, s)

	s, _ = LinkAttrs{LinkType: LinkVXLAN, VXLAN: &VXLANAttrs{ID: 5}}.Diff(LinkAttrs{LinkType: LinkVXLAN, VXLAN: &VXLANAttrs{ID: 6, Port: 4789}})
	assert.Equal(t, []string{"vxlan_id"}, s)

	s, _ = VethAttrs{Peer: "a"}.Diff(VethAttrs{})
	assert.Empty(t, s, "unknown observed peer is not drift")
	s, _ = VethAttrs{Peer: "a"}.Diff(VethAttrs{Peer: "b"})
	assert.Equal(t, []string{"peer"}, s)
}

func TestWithMaster(t *testing.T) {
	a := WithMaster(VethAttrs{Peer: "x"}, "br0")
	assert.Equal(t, "br0", a.(Linked).Common().Master)
	assert.Equal(t, NamespaceAttrs{}, WithMaster(NamespaceAttrs{}, "br0"))
}
