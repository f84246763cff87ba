package kernel

import (
	"context"
	"fmt"
	"net/netip"
	"slices"
	"sync"

	"grimm.is/topoctl/internal/catalog"
)

const defaultMTU = 1500

// Memory is an in-memory kernel. It follows the same rules as the real
// one (names are unique per namespace across link types, deleting a veth
// removes its peer, deleting a master releases its ports, addresses live on
// links) so reconciliation can be exercised without privileges.
type Memory struct {
	mu         sync.Mutex
	namespaces map[string]*memNamespace
	mutations  []string
	calls      map[string]int
	faults     []*fault
	hook       func(op string, key catalog.Key)
}

type memNamespace struct {
	owned bool
	links map[string]*memLink
}

type memLink struct {
	name  string
	scope string
	owned bool
	attrs catalog.Attributes
	addrs []memAddr
	peer  *memLink
}

type memAddr struct {
	prefix netip.Prefix
	owned  bool
}

type fault struct {
	op        string
	key       catalog.Key
	err       error
	remaining int
	forever   bool
}

var _ Kernel = (*Memory)(nil)

// NewMemory returns an empty kernel holding only the root namespace.
func NewMemory() *Memory {
	return &Memory{
		namespaces: map[string]*memNamespace{"": newMemNamespace(false)},
		calls:      make(map[string]int),
	}
}

// FailOn makes the next n calls of op ("exists", "list", "create",
// "update", "delete") on key fail with err. n <= 0 fails every call.
func (m *Memory) FailOn(op string, key catalog.Key, err error, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults = append(m.faults, &fault{op: op, key: key, err: err, remaining: n, forever: n <= 0})
}

// SetHook installs a function called before every operation, outside the
// lock. Tests use it to change state between a check and a mutation.
func (m *Memory) SetHook(fn func(op string, key catalog.Key)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hook = fn
}

// Mutations returns the successful mutations in order, as "op key" lines.
func (m *Memory) Mutations() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.mutations)
}

// ResetMutations clears the mutation log.
func (m *Memory) ResetMutations() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mutations = nil
}

// Calls returns how many times op was invoked on key, failed or not.
func (m *Memory) Calls(op string, key catalog.Key) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op+" "+key.String()]
}

func newMemNamespace(owned bool) *memNamespace {
	return &memNamespace{owned: owned, links: map[string]*memLink{}}
}

// AddNamespace seeds a namespace. owned controls whether it carries the
// ownership marker.
func (m *Memory) AddNamespace(name string, owned bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ns, ok := m.namespaces[name]; ok {
		ns.owned = owned
		return
	}
	m.namespaces[name] = newMemNamespace(owned)
}

// AddLink seeds a link. owned controls whether it carries the ownership
// marker. A missing namespace is seeded unmarked.
func (m *Memory) AddLink(scope, name string, attrs catalog.Attributes, owned bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ns, ok := m.namespaces[scope]
	if !ok {
		ns = newMemNamespace(false)
		m.namespaces[scope] = ns
	}
	ns.links[name] = &memLink{name: name, scope: scope, owned: owned, attrs: normalize(attrs)}
}

// AddAddress seeds an address on an existing link. owned controls whether
// it carries the ownership marker.
func (m *Memory) AddAddress(scope, link, prefix string, owned bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.link(scope, link)
	if l == nil {
		return fmt.Errorf("link %s: %w", link, ErrNotFound)
	}
	p, err := netip.ParsePrefix(prefix)
	if err != nil {
		return err
	}
	l.addrs = append(l.addrs, memAddr{prefix: p, owned: owned})
	return nil
}

func normalize(a catalog.Attributes) catalog.Attributes {
	switch v := a.(type) {
	case catalog.VRFAttrs:
		v.LinkCommon = normalizeCommon(v.LinkCommon)
		return v
	case catalog.BridgeAttrs:
		v.LinkCommon = normalizeCommon(v.LinkCommon)
		return v
	case catalog.LinkAttrs:
		v.LinkCommon = normalizeCommon(v.LinkCommon)
		if v.VXLAN != nil {
			vx := *v.VXLAN
			if vx.Port == 0 {
				vx.Port = 8472
			}
			v.VXLAN = &vx
		}
		return v
	case catalog.VethAttrs:
		v.LinkCommon = normalizeCommon(v.LinkCommon)
		return v
	}
	return a
}

func normalizeCommon(c catalog.LinkCommon) catalog.LinkCommon {
	if c.MTU == 0 {
		c.MTU = defaultMTU
	}
	if c.State == "" {
		c.State = catalog.StateUp
	}
	return c
}

func setCommon(a catalog.Attributes, c catalog.LinkCommon) catalog.Attributes {
	switch v := a.(type) {
	case catalog.VRFAttrs:
		v.LinkCommon = c
		return v
	case catalog.BridgeAttrs:
		v.LinkCommon = c
		return v
	case catalog.LinkAttrs:
		v.LinkCommon = c
		return v
	case catalog.VethAttrs:
		v.LinkCommon = c
		return v
	}
	return a
}

func common(a catalog.Attributes) catalog.LinkCommon {
	if l, ok := a.(catalog.Linked); ok {
		return l.Common()
	}
	return catalog.LinkCommon{}
}

// enter runs the hook, counts the call and applies any matching fault.
func (m *Memory) enter(op string, key catalog.Key) error {
	m.mu.Lock()
	hook := m.hook
	m.mu.Unlock()
	if hook != nil {
		hook(op, key)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[op+" "+key.String()]++
	for _, f := range m.faults {
		if f.op != op || f.key != key {
			continue
		}
		if f.forever {
			return f.err
		}
		if f.remaining > 0 {
			f.remaining--
			return f.err
		}
	}
	return nil
}

func (m *Memory) record(op string, key catalog.Key) {
	m.mutations = append(m.mutations, op+" "+key.String())
}

func (m *Memory) link(scope, name string) *memLink {
	ns, ok := m.namespaces[scope]
	if !ok {
		return nil
	}
	return ns.links[name]
}

func (m *Memory) findAddress(scope string, p netip.Prefix) (*memLink, int) {
	ns, ok := m.namespaces[scope]
	if !ok {
		return nil, -1
	}
	for _, l := range ns.links {
		i := slices.IndexFunc(l.addrs, func(a memAddr) bool { return a.prefix == p })
		if i >= 0 {
			return l, i
		}
	}
	return nil, -1
}

func (m *Memory) observe(key catalog.Key, l *memLink) *Observed {
	attrs := l.attrs
	if v, ok := attrs.(catalog.VethAttrs); ok {
		v.Primary = false
		if l.peer != nil {
			v.Peer = l.peer.name
			v.PeerScope = l.peer.scope
		}
		attrs = v
	}
	return &Observed{Key: key, Type: attrs.Type(), Owned: l.owned, Attrs: attrs}
}

// Exists implements Querier.
func (m *Memory) Exists(ctx context.Context, key catalog.Key) (*Observed, error) {
	if err := m.enter("exists", key); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case key.Kind == catalog.KindNamespace:
		ns, ok := m.namespaces[key.Name]
		if !ok || key.Name == "" {
			return nil, nil
		}
		owned := ns.owned
		for _, l := range ns.links {
			owned = owned && l.owned
		}
		return &Observed{Key: key, Type: catalog.TypeNamespace, Owned: owned, Attrs: catalog.NamespaceAttrs{}}, nil

	case key.Kind == catalog.KindAddress:
		p, err := netip.ParsePrefix(key.Name)
		if err != nil {
			return nil, err
		}
		l, i := m.findAddress(key.Scope, p)
		if l == nil {
			return nil, nil
		}
		return &Observed{
			Key:   key,
			Type:  catalog.TypeAddress,
			Owned: l.addrs[i].owned,
			Attrs: catalog.AddressAttrs{Prefix: p, Link: l.name},
		}, nil

	case key.Kind.IsLink():
		l := m.link(key.Scope, key.Name)
		if l == nil {
			return nil, nil
		}
		return m.observe(key, l), nil
	}
	return nil, fmt.Errorf("exists %s: %w", key, ErrUnsupported)
}

// List implements Querier.
func (m *Memory) List(ctx context.Context, kind catalog.Kind, scope string) ([]string, error) {
	if err := m.enter("list", catalog.NewKey(kind, scope, "")); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var names []string
	if kind == catalog.KindNamespace {
		if scope != "" {
			return nil, nil
		}
		for name := range m.namespaces {
			if name != "" {
				names = append(names, name)
			}
		}
		slices.Sort(names)
		return names, nil
	}

	ns, ok := m.namespaces[scope]
	if !ok {
		return nil, nil
	}
	for _, l := range ns.links {
		if kind == catalog.KindAddress {
			for _, a := range l.addrs {
				names = append(names, a.prefix.String())
			}
			continue
		}
		if l.attrs.Kind() == kind {
			names = append(names, l.name)
		}
	}
	slices.Sort(names)
	return slices.Compact(names), nil
}

// Create implements Mutator.
func (m *Memory) Create(ctx context.Context, key catalog.Key, attrs catalog.Attributes) error {
	if err := m.enter("create", key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.create(key, attrs); err != nil {
		return err
	}
	m.record("create", key)
	return nil
}

func (m *Memory) create(key catalog.Key, attrs catalog.Attributes) error {
	if attrs.Kind() != key.Kind {
		return fmt.Errorf("create %s with %s attributes: %w", key, attrs.Kind(), ErrUnsupported)
	}

	switch a := attrs.(type) {
	case catalog.NamespaceAttrs:
		if _, ok := m.namespaces[key.Name]; ok {
			return fmt.Errorf("netns %s: %w", key.Name, ErrAlreadyExists)
		}
		m.namespaces[key.Name] = newMemNamespace(true)
		return nil

	case catalog.AddressAttrs:
		l := m.link(key.Scope, a.Link)
		if l == nil {
			return fmt.Errorf("address %s on %s: %w", key.Name, a.Link, ErrNotFound)
		}
		if other, _ := m.findAddress(key.Scope, a.Prefix); other != nil {
			return fmt.Errorf("address %s on %s: %w", key.Name, other.name, ErrAlreadyExists)
		}
		l.addrs = append(l.addrs, memAddr{prefix: a.Prefix, owned: true})
		return nil
	}

	ns, ok := m.namespaces[key.Scope]
	if !ok {
		return fmt.Errorf("%s: %w", scopeName(key.Scope), ErrNotFound)
	}

	if v, ok := attrs.(catalog.VethAttrs); ok && !v.Primary {
		return m.moveVethPeer(key, v)
	}

	if _, exists := ns.links[key.Name]; exists {
		return fmt.Errorf("link %s: %w", key.Name, ErrAlreadyExists)
	}
	c := normalizeCommon(common(attrs))
	if err := m.checkMaster(key.Scope, c.Master); err != nil {
		return err
	}
	if la, ok := attrs.(catalog.LinkAttrs); ok && la.VXLAN != nil && la.VXLAN.Underlay != "" {
		if m.link(key.Scope, la.VXLAN.Underlay) == nil {
			return fmt.Errorf("vxlan %s underlay %s: %w", key.Name, la.VXLAN.Underlay, ErrNotFound)
		}
	}
	l := &memLink{name: key.Name, scope: key.Scope, owned: true, attrs: normalize(setCommon(attrs, c))}

	if v, ok := attrs.(catalog.VethAttrs); ok {
		if _, exists := ns.links[v.Peer]; exists || v.Peer == key.Name {
			return fmt.Errorf("veth peer %s: %w", v.Peer, ErrAlreadyExists)
		}
		peer := &memLink{
			name:  v.Peer,
			scope: key.Scope,
			owned: true,
			attrs: catalog.VethAttrs{LinkCommon: catalog.LinkCommon{MTU: c.MTU, State: catalog.StateDown}},
		}
		l.peer, peer.peer = peer, l
		ns.links[peer.name] = peer
	}
	ns.links[key.Name] = l
	return nil
}

func (m *Memory) checkMaster(scope, master string) error {
	if master == "" {
		return nil
	}
	ml := m.link(scope, master)
	if ml == nil {
		return fmt.Errorf("master %s: %w", master, ErrNotFound)
	}
	if k := ml.attrs.Kind(); k != catalog.KindBridge && k != catalog.KindVRF {
		return fmt.Errorf("master %s is a %s: %w", master, ml.attrs.Type(), ErrUnsupported)
	}
	return nil
}

func (m *Memory) moveVethPeer(key catalog.Key, v catalog.VethAttrs) error {
	if key.Scope == v.PeerScope {
		return fmt.Errorf("veth %s: %w", key.Name, ErrAlreadyExists)
	}
	src, ok := m.namespaces[v.PeerScope]
	if !ok {
		return fmt.Errorf("%s: %w", scopeName(v.PeerScope), ErrNotFound)
	}
	l, ok := src.links[key.Name]
	if !ok {
		return fmt.Errorf("veth %s in %s: %w", key.Name, scopeName(v.PeerScope), ErrNotFound)
	}
	if l.attrs.Kind() != catalog.KindVeth {
		return fmt.Errorf("%s in %s is a %s: %w", key.Name, scopeName(v.PeerScope), l.attrs.Type(), ErrAlreadyExists)
	}
	dst := m.namespaces[key.Scope]
	if _, exists := dst.links[key.Name]; exists {
		return fmt.Errorf("link %s: %w", key.Name, ErrAlreadyExists)
	}

	c := normalizeCommon(v.LinkCommon)
	if err := m.checkMaster(key.Scope, c.Master); err != nil {
		return err
	}
	delete(src.links, key.Name)
	l.scope = key.Scope
	l.owned = true
	l.addrs = nil
	l.attrs = setCommon(l.attrs, c)
	dst.links[key.Name] = l
	return nil
}

// Update implements Mutator.
func (m *Memory) Update(ctx context.Context, key catalog.Key, attrs catalog.Attributes) error {
	if err := m.enter("update", key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	linked, ok := attrs.(catalog.Linked)
	if !ok {
		m.record("update", key)
		return nil
	}
	l := m.link(key.Scope, key.Name)
	if l == nil {
		return fmt.Errorf("link %s: %w", key.Name, ErrNotFound)
	}

	want := linked.Common()
	c := common(l.attrs)
	if want.MTU > 0 {
		c.MTU = want.MTU
	}
	if want.State != "" {
		c.State = want.State
	}
	if want.Master != c.Master {
		if err := m.checkMaster(key.Scope, want.Master); err != nil {
			return err
		}
		c.Master = want.Master
	}
	l.attrs = setCommon(l.attrs, c)
	m.record("update", key)
	return nil
}

// Delete implements Mutator.
func (m *Memory) Delete(ctx context.Context, key catalog.Key) error {
	if err := m.enter("delete", key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case key.Kind == catalog.KindNamespace:
		ns, ok := m.namespaces[key.Name]
		if !ok || key.Name == "" {
			return fmt.Errorf("netns %s: %w", key.Name, ErrNotFound)
		}
		var foreign []string
		for _, l := range ns.links {
			if !l.owned {
				foreign = append(foreign, l.name)
			}
		}
		if len(foreign) > 0 {
			slices.Sort(foreign)
			return fmt.Errorf("netns %s still holds %v: %w", key.Name, foreign, ErrBusy)
		}
		for _, l := range ns.links {
			m.removeLink(l)
		}
		delete(m.namespaces, key.Name)

	case key.Kind == catalog.KindAddress:
		p, err := netip.ParsePrefix(key.Name)
		if err != nil {
			return err
		}
		l, i := m.findAddress(key.Scope, p)
		if l == nil {
			return fmt.Errorf("address %s: %w", key.Name, ErrNotFound)
		}
		l.addrs = slices.Delete(l.addrs, i, i+1)

	case key.Kind.IsLink():
		l := m.link(key.Scope, key.Name)
		if l == nil {
			return fmt.Errorf("link %s: %w", key.Name, ErrNotFound)
		}
		m.removeLink(l)

	default:
		return fmt.Errorf("delete %s: %w", key, ErrUnsupported)
	}
	m.record("delete", key)
	return nil
}

// removeLink deletes a link, its veth peer, and releases its ports.
func (m *Memory) removeLink(l *memLink) {
	for _, victim := range []*memLink{l, l.peer} {
		if victim == nil {
			continue
		}
		ns := m.namespaces[victim.scope]
		if ns == nil || ns.links[victim.name] != victim {
			continue
		}
		delete(ns.links, victim.name)
		for _, other := range ns.links {
			if c := common(other.attrs); c.Master == victim.name {
				c.Master = ""
				other.attrs = setCommon(other.attrs, c)
			}
		}
	}
}
