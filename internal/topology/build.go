package topology

import (
	"slices"

	"grimm.is/topoctl/internal/catalog"
)

// Build validates the declarations and returns the model. It fails with a
// *ConfigError naming the first offending declaration or relation.
func Build(decls Declarations) (*Model, error) {
	b := &builder{
		attrs:      make(map[catalog.Key]catalog.Attributes, len(decls.Objects)),
		namespaces: make(map[string]catalog.Key),
		relations:  make(map[catalog.Relation]struct{}),
	}
	if err := b.addObjects(decls.Objects); err != nil {
		return nil, err
	}
	if err := b.checkScopes(); err != nil {
		return nil, err
	}
	if err := b.addRelations(decls.Relations); err != nil {
		return nil, err
	}
	if err := b.derive(); err != nil {
		return nil, err
	}
	return b.model(), nil
}

type builder struct {
	order      []catalog.Key
	attrs      map[catalog.Key]catalog.Attributes
	namespaces map[string]catalog.Key
	relations  map[catalog.Relation]struct{}

	masters   map[catalog.Key]catalog.Key
	peers     map[catalog.Key]catalog.Key
	underlays map[catalog.Key]catalog.Key
}

func (b *builder) addObjects(objs []Declaration) error {
	for _, d := range objs {
		key := d.Key()
		if !key.Kind.Valid() {
			return configErr(InvalidAttributes, key, "unknown kind")
		}
		if key.Name == "" {
			return configErr(InvalidAttributes, key, "empty name")
		}
		if _, dup := b.attrs[key]; dup {
			return configErr(DuplicateObject, key, "declared more than once")
		}
		if key.Kind == catalog.KindNamespace {
			if other, dup := b.namespaces[key.Name]; dup {
				return configErr(DuplicateObject, key, "namespace name already used by %s", other)
			}
			b.namespaces[key.Name] = key
		}

		attrs, err := catalog.ParseAttributes(key.Kind, key.Name, d.Attributes)
		if err != nil {
			return configErr(InvalidAttributes, key, "%v", err)
		}
		b.attrs[key] = attrs
		b.order = append(b.order, key)
	}
	return nil
}

// checkScopes resolves every non-root scope to a declared namespace and adds
// the contains edge the scope implies.
func (b *builder) checkScopes() error {
	for _, key := range b.order {
		if key.Scope == "" {
			continue
		}
		ns, ok := b.namespaces[key.Scope]
		if !ok {
			return configErr(DanglingReference, key, "scope %q is not a declared namespace", key.Scope)
		}
		if ns == key {
			return configErr(InvalidAttachment, key, "namespace cannot be scoped inside itself")
		}
		b.relations[catalog.Relation{Type: catalog.Contains, From: ns, To: key}] = struct{}{}
	}
	return nil
}

func (b *builder) addRelations(rels []catalog.Relation) error {
	b.masters = make(map[catalog.Key]catalog.Key)
	b.peers = make(map[catalog.Key]catalog.Key)
	b.underlays = make(map[catalog.Key]catalog.Key)

	for _, r := range rels {
		r = r.Canonical()
		for _, end := range []catalog.Key{r.From, r.To} {
			if _, ok := b.attrs[end]; !ok {
				return configErr(DanglingReference, r, "%s is not declared", end)
			}
		}

		switch r.Type {
		case catalog.Contains:
			if !catalog.CanContain(r.From.Kind, r.To.Kind) {
				return configErr(InvalidAttachment, r, "only namespaces contain objects")
			}
			if r.To.Scope != r.From.Name {
				return configErr(InvalidAttachment, r, "%s is scoped in %q", r.To, r.To.Scope)
			}

		case catalog.AttachesTo:
			if !catalog.CanAttach(r.From.Kind, r.To.Kind) {
				return configErr(InvalidAttachment, r, "%s cannot attach to %s", r.From.Kind, r.To.Kind)
			}
			if r.From.Scope != r.To.Scope {
				return configErr(InvalidAttachment, r, "attachment crosses namespaces")
			}
			if prev, ok := b.masters[r.From]; ok && prev != r.To {
				return configErr(InvalidAttachment, r, "%s is already attached to %s", r.From, prev)
			}
			b.masters[r.From] = r.To

		case catalog.PairsWith:
			if r.From.Kind != catalog.KindVeth || r.To.Kind != catalog.KindVeth {
				return configErr(MalformedPair, r, "pairs-with connects two veth endpoints")
			}
			if r.From == r.To {
				return configErr(MalformedPair, r, "endpoint paired with itself")
			}
			for _, p := range [][2]catalog.Key{{r.From, r.To}, {r.To, r.From}} {
				if prev, ok := b.peers[p[0]]; ok && prev != p[1] {
					return configErr(MalformedPair, r, "%s is already paired with %s", p[0], prev)
				}
				b.peers[p[0]] = p[1]
			}

		case catalog.Uses:
			if err := b.addUnderlay(r); err != nil {
				return err
			}

		default:
			return configErr(InvalidAttachment, r, "unknown relation type")
		}
		b.relations[r] = struct{}{}
	}
	return nil
}

func (b *builder) addUnderlay(r catalog.Relation) error {
	if !catalog.CanUse(r.From.Kind, r.To.Kind) || !isVXLAN(b.attrs[r.From]) {
		return configErr(InvalidAttachment, r, "only a vxlan link uses an underlay device")
	}
	if r.From == r.To {
		return configErr(InvalidAttachment, r, "vxlan cannot be its own underlay")
	}
	if r.From.Scope != r.To.Scope {
		return configErr(InvalidAttachment, r, "underlay crosses namespaces")
	}
	if prev, ok := b.underlays[r.From]; ok && prev != r.To {
		return configErr(InvalidAttachment, r, "%s already uses %s", r.From, prev)
	}
	b.underlays[r.From] = r.To
	return nil
}

func isVXLAN(attrs catalog.Attributes) bool {
	l, ok := attrs.(catalog.LinkAttrs)
	return ok && l.VXLAN != nil
}

// device returns the declared network device called name in scope.
func (b *builder) device(scope, name string) (catalog.Key, bool) {
	for _, kind := range catalog.Kinds() {
		if !kind.IsLink() {
			continue
		}
		key := catalog.NewKey(kind, scope, name)
		if _, ok := b.attrs[key]; ok {
			return key, true
		}
	}
	return catalog.Key{}, false
}

// deriveUnderlay ties a vxlan to its underlay. An underlay attribute that
// names a declared device becomes a uses relation; any other name is a
// device topoctl does not manage.
func (b *builder) deriveUnderlay(key catalog.Key, l catalog.LinkAttrs) (catalog.LinkAttrs, error) {
	vx := *l.VXLAN
	l.VXLAN = &vx

	if dev, ok := b.underlays[key]; ok {
		if vx.Underlay != "" && vx.Underlay != dev.Name {
			return l, configErr(InvalidAttachment, key, "underlay %q disagrees with relation to %s", vx.Underlay, dev)
		}
		vx.Underlay = dev.Name
		return l, nil
	}
	if vx.Underlay == "" {
		return l, nil
	}
	dev, ok := b.device(key.Scope, vx.Underlay)
	if !ok {
		return l, nil
	}
	r := catalog.Relation{Type: catalog.Uses, From: key, To: dev}
	if err := b.addUnderlay(r); err != nil {
		return l, err
	}
	b.relations[r] = struct{}{}
	return l, nil
}

// derive checks per-object relation requirements and fills the
// relation-derived attribute fields.
func (b *builder) derive() error {
	for _, key := range b.order {
		attrs := b.attrs[key]

		switch key.Kind {
		case catalog.KindVeth:
			peer, ok := b.peers[key]
			if !ok {
				return configErr(MalformedPair, key, "veth endpoint has no peer")
			}
			v := attrs.(catalog.VethAttrs)
			v.Peer = peer.Name
			v.PeerScope = peer.Scope
			v.Primary = key.Less(peer)
			attrs = v

		case catalog.KindAddress:
			link, ok := b.masters[key]
			if !ok {
				return configErr(InvalidAttachment, key, "address is not attached to a link")
			}
			a := attrs.(catalog.AddressAttrs)
			a.Link = link.Name
			attrs = a

		case catalog.KindLink:
			if l := attrs.(catalog.LinkAttrs); l.VXLAN != nil {
				withUnderlay, err := b.deriveUnderlay(key, l)
				if err != nil {
					return err
				}
				attrs = withUnderlay
			}
		}

		if master, ok := b.masters[key]; ok && key.Kind.IsLink() {
			attrs = catalog.WithMaster(attrs, master.Name)
		}
		b.attrs[key] = attrs
	}
	return nil
}

func (b *builder) model() *Model {
	keys := slices.Clone(b.order)
	slices.SortFunc(keys, catalog.Compare)

	m := &Model{
		objects: make([]Object, len(keys)),
		index:   make(map[catalog.Key]int, len(keys)),
	}
	for i, k := range keys {
		m.objects[i] = Object{Key: k, Attrs: b.attrs[k]}
		m.index[k] = i
	}
	for r := range b.relations {
		m.relations = append(m.relations, r)
	}
	slices.SortFunc(m.relations, catalog.CompareRelations)
	return m
}
