package config

import (
	"fmt"
	"net/netip"
	"strconv"

	"grimm.is/topoctl/internal/catalog"
	"grimm.is/topoctl/internal/topology"
)

// Declarations flattens the file into object and relation declarations.
// References are resolved by name only; whether they point anywhere is
// checked by topology.Build.
func (c *Config) Declarations() (topology.Declarations, error) {
	b := &declBuilder{masters: make(map[masterRef][]catalog.Kind)}

	for _, v := range c.VRFs {
		ref := masterRef{v.Namespace, ifname(v.Label, v.IfName)}
		b.masters[ref] = append(b.masters[ref], catalog.KindVRF)
	}
	for _, br := range c.Bridges {
		ref := masterRef{br.Namespace, ifname(br.Label, br.IfName)}
		b.masters[ref] = append(b.masters[ref], catalog.KindBridge)
	}

	for _, ns := range c.Namespaces {
		b.object(catalog.KindNamespace, ns.Label, ns.Namespace, nil)
	}

	for _, v := range c.VRFs {
		attrs := device(v.MTU, v.State)
		setInt(attrs, "table", v.Table)
		key := b.object(catalog.KindVRF, ifname(v.Label, v.IfName), v.Namespace, attrs)
		b.addresses(key, v.Addresses)
	}

	for _, br := range c.Bridges {
		key := b.object(catalog.KindBridge, ifname(br.Label, br.IfName), br.Namespace, device(br.MTU, br.State))
		b.master(key, br.Master)
		b.addresses(key, br.Addresses)
	}

	for _, l := range c.Links {
		attrs := device(l.MTU, l.State)
		attrs["type"] = l.Type
		setInt(attrs, "vxlan_id", l.VXLANID)
		setInt(attrs, "port", l.Port)
		setString(attrs, "underlay", l.Underlay)
		setString(attrs, "local", l.Local)
		// A multicast group is a remote the kernel joins instead of
		// unicasting to.
		switch {
		case l.Remote != "" && l.Group != "":
			b.fail(fmt.Errorf("link %q: remote and group are exclusive", l.Label))
		case l.Group != "":
			attrs["remote"] = l.Group
		default:
			setString(attrs, "remote", l.Remote)
		}
		key := b.object(catalog.KindLink, ifname(l.Label, l.IfName), l.Namespace, attrs)
		b.master(key, l.Master)
		b.addresses(key, l.Addresses)
	}

	for _, v := range c.Veths {
		key := b.object(catalog.KindVeth, ifname(v.Label, v.IfName), v.Namespace, device(v.MTU, v.State))
		if v.Peer != "" {
			b.relate(catalog.PairsWith, key, catalog.NewKey(catalog.KindVeth, v.PeerNamespace, v.Peer))
		} else if v.PeerNamespace != "" {
			b.fail(fmt.Errorf("veth %q: peer_namespace without peer", v.Label))
		}
		b.master(key, v.Master)
		b.addresses(key, v.Addresses)
	}

	for _, r := range c.Relations {
		typ, err := catalog.ParseRelationType(r.Type)
		if err != nil {
			b.fail(fmt.Errorf("relation: %w", err))
			continue
		}
		from, err := catalog.ParseKey(r.From)
		if err != nil {
			b.fail(fmt.Errorf("relation %s: from: %w", r.Type, err))
			continue
		}
		to, err := catalog.ParseKey(r.To)
		if err != nil {
			b.fail(fmt.Errorf("relation %s: to: %w", r.Type, err))
			continue
		}
		b.relate(typ, from, to)
	}

	if b.err != nil {
		return topology.Declarations{}, b.err
	}
	return b.decls, nil
}

type masterRef struct {
	scope string
	name  string
}

type declBuilder struct {
	decls   topology.Declarations
	masters map[masterRef][]catalog.Kind
	err     error
}

func (b *declBuilder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *declBuilder) object(kind catalog.Kind, name, scope string, attrs map[string]string) catalog.Key {
	b.decls.Objects = append(b.decls.Objects, topology.Declaration{
		Kind:       kind,
		Name:       name,
		Scope:      scope,
		Attributes: attrs,
	})
	return catalog.NewKey(kind, scope, name)
}

func (b *declBuilder) relate(typ catalog.RelationType, from, to catalog.Key) {
	b.decls.Relations = append(b.decls.Relations, catalog.Relation{Type: typ, From: from, To: to})
}

// master attaches key to the bridge or VRF called name in its own scope.
// A name nothing declares becomes a bridge reference and fails in
// topology.Build as dangling.
func (b *declBuilder) master(key catalog.Key, name string) {
	if name == "" {
		return
	}
	kinds := b.masters[masterRef{key.Scope, name}]
	switch len(kinds) {
	case 0:
		b.relate(catalog.AttachesTo, key, catalog.NewKey(catalog.KindBridge, key.Scope, name))
	case 1:
		b.relate(catalog.AttachesTo, key, catalog.NewKey(kinds[0], key.Scope, name))
	default:
		b.fail(fmt.Errorf("%s: master %q is ambiguous: declared as %v", key, name, kinds))
	}
}

// addresses declares each prefix on the device key. Prefixes are written in
// canonical form so "2001:DB8::1/64" and "2001:db8::1/64" are one object;
// unparsable ones are passed through for topology.Build to reject.
func (b *declBuilder) addresses(key catalog.Key, prefixes []string) {
	for _, s := range prefixes {
		name := s
		if p, err := netip.ParsePrefix(s); err == nil {
			name = p.String()
		}
		addr := b.object(catalog.KindAddress, name, key.Scope, nil)
		b.relate(catalog.AttachesTo, addr, key)
	}
}

func device(mtu int, state string) map[string]string {
	attrs := make(map[string]string)
	setInt(attrs, "mtu", mtu)
	setString(attrs, "state", state)
	return attrs
}

func setInt(attrs map[string]string, key string, v int) {
	if v != 0 {
		attrs[key] = strconv.Itoa(v)
	}
}

func setString(attrs map[string]string, key, v string) {
	if v != "" {
		attrs[key] = v
	}
}
