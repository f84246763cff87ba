package topology

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/topoctl/internal/catalog"
)

var (
	ns1   = catalog.NewKey(catalog.KindNamespace, "", "ns1")
	br0   = catalog.NewKey(catalog.KindBridge, "", "br0")
	veth0 = catalog.NewKey(catalog.KindVeth, "", "veth0")
	veth1 = catalog.NewKey(catalog.KindVeth, "ns1", "veth1")
)

func exampleDecls() Declarations {
	return Declarations{
		Objects: []Declaration{
			{Kind: catalog.KindVeth, Name: "veth1", Scope: "ns1"},
			{Kind: catalog.KindBridge, Name: "br0", Attributes: map[string]string{"mtu": "1500"}},
			{Kind: catalog.KindNamespace, Name: "ns1"},
			{Kind: catalog.KindVeth, Name: "veth0"},
		},
		Relations: []catalog.Relation{
			{Type: catalog.PairsWith, From: veth1, To: veth0},
			{Type: catalog.AttachesTo, From: veth0, To: br0},
		},
	}
}

func requireReason(t *testing.T, err error, reason Reason) {
	t.Helper()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfig)
	var cerr *ConfigError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, reason, cerr.Reason, cerr.Error())
}

func TestBuildExample(t *testing.T) {
	m, err := Build(exampleDecls())
	require.NoError(t, err)

	assert.Equal(t, 4, m.Len())
	var keys []catalog.Key
	for _, o := range m.Objects() {
		keys = append(keys, o.Key)
	}
	assert.Equal(t, []catalog.Key{ns1, br0, veth0, veth1}, keys)
	assert.Equal(t, []string{"ns1"}, m.Namespaces())

	// The implied contains edge and the canonical pair are recorded once.
	assert.Equal(t, []catalog.Relation{
		{Type: catalog.Contains, From: ns1, To: veth1},
		{Type: catalog.AttachesTo, From: veth0, To: br0},
		{Type: catalog.PairsWith, From: veth0, To: veth1},
	}, m.Relations())

	o, ok := m.Object(veth0)
	require.True(t, ok)
	v := o.Attrs.(catalog.VethAttrs)
	assert.Equal(t, "br0", v.Master)
	assert.Equal(t, "veth1", v.Peer)
	assert.Equal(t, "ns1", v.PeerScope)
	assert.True(t, v.Primary)

	o, _ = m.Object(veth1)
	v = o.Attrs.(catalog.VethAttrs)
	assert.False(t, v.Primary)
	assert.Equal(t, "veth0", v.Peer)
	assert.Equal(t, "", v.PeerScope)

	_, ok = m.Object(catalog.NewKey(catalog.KindBridge, "", "br9"))
	assert.False(t, ok)
}

func TestBuildPairDeclaredFromBothEnds(t *testing.T) {
	d := exampleDecls()
	d.Relations = append(d.Relations,
		catalog.Relation{Type: catalog.PairsWith, From: veth0, To: veth1},
		catalog.Relation{Type: catalog.Contains, From: ns1, To: veth1},
	)
	m, err := Build(d)
	require.NoError(t, err)
	assert.Len(t, m.Relations(), 3)
}

func TestBuildAddress(t *testing.T) {
	addr := catalog.NewKey(catalog.KindAddress, "", "10.0.0.1/24")
	d := exampleDecls()
	d.Objects = append(d.Objects, Declaration{Kind: catalog.KindAddress, Name: addr.Name})
	d.Relations = append(d.Relations, catalog.Relation{Type: catalog.AttachesTo, From: addr, To: br0})

	m, err := Build(d)
	require.NoError(t, err)
	o, ok := m.Object(addr)
	require.True(t, ok)
	assert.Equal(t, "br0", o.Attrs.(catalog.AddressAttrs).Link)

	assert.Equal(t, []Group{
		{Kind: catalog.KindNamespace},
		{Kind: catalog.KindBridge},
		{Kind: catalog.KindVeth},
		{Kind: catalog.KindVeth, Scope: "ns1"},
		{Kind: catalog.KindAddress},
	}, m.Groups())
}

func vxlanDecl(name, underlay string) Declaration {
	attrs := map[string]string{"type": "vxlan", "vxlan_id": "42"}
	if underlay != "" {
		attrs["underlay"] = underlay
	}
	return Declaration{Kind: catalog.KindLink, Name: name, Attributes: attrs}
}

func TestBuildUnderlay(t *testing.T) {
	vx0 := catalog.NewKey(catalog.KindLink, "", "vx0")

	t.Run("declared device", func(t *testing.T) {
		d := exampleDecls()
		d.Objects = append(d.Objects, vxlanDecl("vx0", "veth0"))

		m, err := Build(d)
		require.NoError(t, err)
		assert.Contains(t, m.Relations(), catalog.Relation{Type: catalog.Uses, From: vx0, To: veth0})
	})

	t.Run("unmanaged device", func(t *testing.T) {
		d := exampleDecls()
		d.Objects = append(d.Objects, vxlanDecl("vx0", "eth0"))

		m, err := Build(d)
		require.NoError(t, err)
		for _, r := range m.Relations() {
			assert.NotEqual(t, catalog.Uses, r.Type)
		}
		o, _ := m.Object(vx0)
		assert.Equal(t, "eth0", o.Attrs.(catalog.LinkAttrs).VXLAN.Underlay)
	})

	t.Run("explicit relation fills the attribute", func(t *testing.T) {
		d := exampleDecls()
		d.Objects = append(d.Objects, vxlanDecl("vx0", ""))
		d.Relations = append(d.Relations, catalog.Relation{Type: catalog.Uses, From: vx0, To: br0})

		m, err := Build(d)
		require.NoError(t, err)
		o, _ := m.Object(vx0)
		assert.Equal(t, "br0", o.Attrs.(catalog.LinkAttrs).VXLAN.Underlay)
	})

	t.Run("device in another namespace", func(t *testing.T) {
		d := exampleDecls()
		d.Objects = append(d.Objects, vxlanDecl("vx0", "veth1"))

		m, err := Build(d)
		require.NoError(t, err)
		for _, r := range m.Relations() {
			assert.NotEqual(t, catalog.Uses, r.Type)
		}
	})

	t.Run("itself", func(t *testing.T) {
		d := exampleDecls()
		d.Objects = append(d.Objects, vxlanDecl("vx0", "vx0"))

		_, err := Build(d)
		requireReason(t, err, InvalidAttachment)
	})

	t.Run("relation disagrees with attribute", func(t *testing.T) {
		d := exampleDecls()
		d.Objects = append(d.Objects, vxlanDecl("vx0", "veth0"))
		d.Relations = append(d.Relations, catalog.Relation{Type: catalog.Uses, From: vx0, To: br0})

		_, err := Build(d)
		requireReason(t, err, InvalidAttachment)
	})

	t.Run("not a vxlan", func(t *testing.T) {
		d := exampleDecls()
		d.Relations = append(d.Relations, catalog.Relation{Type: catalog.Uses, From: veth0, To: br0})

		_, err := Build(d)
		requireReason(t, err, InvalidAttachment)
	})
}

func TestBuildErrors(t *testing.T) {
	vrf := catalog.NewKey(catalog.KindVRF, "", "vrf10")
	addr := catalog.NewKey(catalog.KindAddress, "", "10.0.0.1/24")
	veth2 := catalog.NewKey(catalog.KindVeth, "", "veth2")

	tests := []struct {
		name   string
		mutate func(d *Declarations)
		reason Reason
	}{
		{
			name: "duplicate object",
			mutate: func(d *Declarations) {
				d.Objects = append(d.Objects, Declaration{Kind: catalog.KindBridge, Name: "br0"})
			},
			reason: DuplicateObject,
		},
		{
			name: "namespace name reused in another scope",
			mutate: func(d *Declarations) {
				d.Objects = append(d.Objects, Declaration{Kind: catalog.KindNamespace, Name: "ns1", Scope: "ns1"})
			},
			reason: DuplicateObject,
		},
		{
			name: "undeclared scope",
			mutate: func(d *Declarations) {
				d.Objects = append(d.Objects, Declaration{Kind: catalog.KindBridge, Name: "br1", Scope: "ns9"})
			},
			reason: DanglingReference,
		},
		{
			name: "dangling attachment target",
			mutate: func(d *Declarations) {
				d.Relations[1].To = catalog.NewKey(catalog.KindBridge, "", "br9")
			},
			reason: DanglingReference,
		},
		{
			name: "veth without peer",
			mutate: func(d *Declarations) {
				d.Relations = d.Relations[1:]
			},
			reason: MalformedPair,
		},
		{
			name: "veth with two peers",
			mutate: func(d *Declarations) {
				d.Objects = append(d.Objects, Declaration{Kind: catalog.KindVeth, Name: "veth2"})
				d.Relations = append(d.Relations, catalog.Relation{Type: catalog.PairsWith, From: veth0, To: veth2})
			},
			reason: MalformedPair,
		},
		{
			name: "pair with a bridge",
			mutate: func(d *Declarations) {
				d.Relations = append(d.Relations, catalog.Relation{Type: catalog.PairsWith, From: veth0, To: br0})
			},
			reason: MalformedPair,
		},
		{
			name: "bridge attached to bridge",
			mutate: func(d *Declarations) {
				d.Objects = append(d.Objects, Declaration{Kind: catalog.KindBridge, Name: "br1"})
				d.Relations = append(d.Relations, catalog.Relation{
					Type: catalog.AttachesTo, From: catalog.NewKey(catalog.KindBridge, "", "br1"), To: br0,
				})
			},
			reason: InvalidAttachment,
		},
		{
			name: "two masters",
			mutate: func(d *Declarations) {
				d.Objects = append(d.Objects, Declaration{Kind: catalog.KindVRF, Name: "vrf10"})
				d.Relations = append(d.Relations, catalog.Relation{Type: catalog.AttachesTo, From: veth0, To: vrf})
			},
			reason: InvalidAttachment,
		},
		{
			name: "attachment across namespaces",
			mutate: func(d *Declarations) {
				d.Relations = append(d.Relations, catalog.Relation{Type: catalog.AttachesTo, From: veth1, To: br0})
			},
			reason: InvalidAttachment,
		},
		{
			name: "contains disagrees with scope",
			mutate: func(d *Declarations) {
				d.Relations = append(d.Relations, catalog.Relation{Type: catalog.Contains, From: ns1, To: br0})
			},
			reason: InvalidAttachment,
		},
		{
			name: "unattached address",
			mutate: func(d *Declarations) {
				d.Objects = append(d.Objects, Declaration{Kind: catalog.KindAddress, Name: addr.Name})
			},
			reason: InvalidAttachment,
		},
		{
			name: "bad attribute",
			mutate: func(d *Declarations) {
				d.Objects[1].Attributes = map[string]string{"mtu": "huge"}
			},
			reason: InvalidAttributes,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := exampleDecls()
			tt.mutate(&d)
			m, err := Build(d)
			assert.Nil(t, m)
			requireReason(t, err, tt.reason)
		})
	}
}

func TestBuildMutualContainmentIsAccepted(t *testing.T) {
	// Mutual containment is a cycle; Build accepts it and ordering rejects it.
	m, err := Build(Declarations{Objects: []Declaration{
		{Kind: catalog.KindNamespace, Name: "a", Scope: "b"},
		{Kind: catalog.KindNamespace, Name: "b", Scope: "a"},
	}})
	require.NoError(t, err)
	assert.Len(t, m.Relations(), 2)
}
