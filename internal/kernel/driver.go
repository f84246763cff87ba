package kernel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"slices"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"grimm.is/topoctl/internal/brand"
	"grimm.is/topoctl/internal/catalog"
	"grimm.is/topoctl/internal/logging"
)

// Driver implements Querier and Mutator against the running kernel.
//
// Links created by the driver carry an alias equal to the ownership marker;
// that alias is how later runs tell topoctl's objects from everyone
// else's. A namespace is marked through the alias of its loopback and is
// owned while every other link inside it is. IPv4 addresses are marked with
// a "<link>:<marker>" label; IPv6 addresses cannot carry a label and are
// owned when their link is.
type Driver struct {
	ns    Namespaces
	owner string
	log   *logging.Logger
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithLogger sets the driver's logger.
func WithLogger(l *logging.Logger) DriverOption {
	return func(d *Driver) {
		d.log = l.WithComponent("kernel")
	}
}

// WithOwner overrides the ownership marker written to link aliases.
func WithOwner(marker string) DriverOption {
	return func(d *Driver) {
		d.owner = marker
	}
}

// NewDriver returns a driver working through ns.
func NewDriver(ns Namespaces, opts ...DriverOption) *Driver {
	d := &Driver{
		ns:    ns,
		owner: brand.OwnerMarker,
		log:   logging.WithComponent("kernel"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NewSystemDriver returns a driver for the host's namespaces.
func NewSystemDriver(opts ...DriverOption) *Driver {
	return NewDriver(SystemNamespaces(), opts...)
}

func scopeName(scope string) string {
	if scope == "" {
		return "root namespace"
	}
	return "netns " + scope
}

// handle opens a netlink handle in scope. A missing namespace reports
// ErrNotFound.
func (d *Driver) handle(scope string) (Netlinker, error) {
	if scope != "" {
		ok, err := d.ns.Exists(scope)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%s: %w", scopeName(scope), ErrNotFound)
		}
	}
	nl, err := d.ns.Netlinker(scope)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", scopeName(scope), err)
	}
	return nl, nil
}

// Exists implements Querier.
func (d *Driver) Exists(ctx context.Context, key catalog.Key) (*Observed, error) {
	switch {
	case key.Kind == catalog.KindNamespace:
		return d.observeNamespace(key)
	case key.Kind == catalog.KindAddress:
		return d.observeAddress(key)
	case key.Kind.IsLink():
		nl, err := d.handle(key.Scope)
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		defer nl.Close()

		link, err := nl.LinkByName(key.Name)
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return d.observeLink(nl, key, link), nil
	}
	return nil, fmt.Errorf("exists %s: %w", key, ErrUnsupported)
}

func (d *Driver) observeNamespace(key catalog.Key) (*Observed, error) {
	ok, err := d.ns.Exists(key.Name)
	if err != nil || !ok {
		return nil, err
	}
	marked, foreign, err := d.inspectNamespace(key.Name)
	if err != nil {
		return nil, err
	}
	return &Observed{
		Key:   key,
		Type:  catalog.TypeNamespace,
		Owned: marked && len(foreign) == 0,
		Attrs: catalog.NamespaceAttrs{},
	}, nil
}

// inspectNamespace reports whether the namespace's loopback carries the
// ownership marker and lists the other links topoctl does not own.
func (d *Driver) inspectNamespace(name string) (bool, []string, error) {
	nl, err := d.ns.Netlinker(name)
	if err != nil {
		return false, nil, err
	}
	defer nl.Close()

	links, err := nl.LinkList()
	if err != nil {
		return false, nil, err
	}
	var (
		marked  bool
		foreign []string
	)
	for _, l := range links {
		switch {
		case l.Attrs().Name == "lo":
			marked = l.Attrs().Alias == d.owner
		case l.Attrs().Alias != d.owner:
			foreign = append(foreign, l.Attrs().Name)
		}
	}
	return marked, foreign, nil
}

// markNamespace stamps the ownership marker on a new namespace's loopback.
func (d *Driver) markNamespace(name string) error {
	nl, err := d.ns.Netlinker(name)
	if err != nil {
		return err
	}
	defer nl.Close()

	lo, err := nl.LinkByName("lo")
	if err != nil {
		return fmt.Errorf("netns %s loopback: %w", name, err)
	}
	if err := nl.LinkSetAlias(lo, d.owner); err != nil {
		return fmt.Errorf("netns %s: link set lo alias: %w", name, err)
	}
	return nil
}

func (d *Driver) observeLink(nl Netlinker, key catalog.Key, link netlink.Link) *Observed {
	la := link.Attrs()
	common := catalog.LinkCommon{MTU: la.MTU, State: catalog.StateDown}
	if la.Flags&net.FlagUp != 0 {
		common.State = catalog.StateUp
	}
	common.Master = d.linkName(nl, la.MasterIndex)

	var attrs catalog.Attributes
	switch l := link.(type) {
	case *netlink.Vrf:
		attrs = catalog.VRFAttrs{LinkCommon: common, Table: l.Table}
	case *netlink.Bridge:
		attrs = catalog.BridgeAttrs{LinkCommon: common}
	case *netlink.Veth:
		attrs = catalog.VethAttrs{LinkCommon: common, Peer: l.PeerName}
	case *netlink.Dummy:
		attrs = catalog.LinkAttrs{LinkCommon: common, LinkType: catalog.LinkDummy}
	case *netlink.Vxlan:
		vx := &catalog.VXLANAttrs{
			ID:       l.VxlanId,
			Port:     l.Port,
			Underlay: d.linkName(nl, l.VtepDevIndex),
		}
		if len(l.Group) > 0 {
			vx.Remote = l.Group.String()
		}
		if len(l.SrcAddr) > 0 {
			vx.Local = l.SrcAddr.String()
		}
		attrs = catalog.LinkAttrs{LinkCommon: common, LinkType: catalog.LinkVXLAN, VXLAN: vx}
	default:
		attrs = catalog.LinkAttrs{LinkCommon: common, LinkType: catalog.LinkType(link.Type())}
	}

	return &Observed{
		Key:   key,
		Type:  attrs.Type(),
		Owned: la.Alias == d.owner,
		Attrs: attrs,
	}
}

func (d *Driver) linkName(nl Netlinker, index int) string {
	if index <= 0 {
		return ""
	}
	l, err := nl.LinkByIndex(index)
	if err != nil {
		return ""
	}
	return l.Attrs().Name
}

func prefixOf(a netlink.Addr) (netip.Prefix, bool) {
	if a.IPNet == nil {
		return netip.Prefix{}, false
	}
	ip, ok := netip.AddrFromSlice(a.IP)
	if !ok {
		return netip.Prefix{}, false
	}
	ones, _ := a.Mask.Size()
	return netip.PrefixFrom(ip.Unmap(), ones), true
}

func ipNet(p netip.Prefix) *net.IPNet {
	return &net.IPNet{
		IP:   net.IP(p.Addr().AsSlice()),
		Mask: net.CIDRMask(p.Bits(), p.Addr().BitLen()),
	}
}

// findAddress locates the link carrying prefix in an open namespace.
func findAddress(nl Netlinker, prefix netip.Prefix) (netlink.Link, *netlink.Addr, error) {
	links, err := nl.LinkList()
	if err != nil {
		return nil, nil, err
	}
	for _, l := range links {
		addrs, err := nl.AddrList(l, unix.AF_UNSPEC)
		if err != nil {
			return nil, nil, err
		}
		for i := range addrs {
			if p, ok := prefixOf(addrs[i]); ok && p == prefix {
				return l, &addrs[i], nil
			}
		}
	}
	return nil, nil, nil
}

func (d *Driver) observeAddress(key catalog.Key) (*Observed, error) {
	prefix, err := netip.ParsePrefix(key.Name)
	if err != nil {
		return nil, fmt.Errorf("address %s: %w", key.Name, err)
	}
	nl, err := d.handle(key.Scope)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer nl.Close()

	link, addr, err := findAddress(nl, prefix)
	if err != nil || link == nil {
		return nil, err
	}
	return &Observed{
		Key:   key,
		Type:  catalog.TypeAddress,
		Owned: d.ownsAddress(link, addr, prefix),
		Attrs: catalog.AddressAttrs{Prefix: prefix, Link: link.Attrs().Name},
	}, nil
}

// maxLabelLen is IFNAMSIZ less the terminating NUL.
const maxLabelLen = 15

// addressLabel returns the label marking an IPv4 address on link, or "" when
// the prefix cannot carry one. The kernel requires labels to start with the
// link name.
func (d *Driver) addressLabel(link string, prefix netip.Prefix) string {
	if !prefix.Addr().Is4() || len(link)+2 > maxLabelLen {
		return ""
	}
	label := link + ":" + d.owner
	if len(label) > maxLabelLen {
		label = label[:maxLabelLen]
	}
	return label
}

func (d *Driver) ownsAddress(link netlink.Link, addr *netlink.Addr, prefix netip.Prefix) bool {
	if label := d.addressLabel(link.Attrs().Name, prefix); label != "" {
		return addr.Label == label
	}
	return link.Attrs().Alias == d.owner
}

func kindOfLinkType(t string) (catalog.Kind, bool) {
	switch t {
	case "vrf":
		return catalog.KindVRF, true
	case "bridge":
		return catalog.KindBridge, true
	case "veth":
		return catalog.KindVeth, true
	case "dummy", "vxlan":
		return catalog.KindLink, true
	}
	return 0, false
}

// List implements Querier. Namespaces are not nested in the kernel, so they
// are only listed for the root scope.
func (d *Driver) List(ctx context.Context, kind catalog.Kind, scope string) ([]string, error) {
	if kind == catalog.KindNamespace {
		if scope != "" {
			return nil, nil
		}
		names, err := d.ns.List()
		if err != nil {
			return nil, err
		}
		slices.Sort(names)
		return names, nil
	}

	nl, err := d.handle(scope)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer nl.Close()

	links, err := nl.LinkList()
	if err != nil {
		return nil, err
	}

	var names []string
	for _, l := range links {
		if kind == catalog.KindAddress {
			if l.Attrs().Name == "lo" {
				continue
			}
			addrs, err := nl.AddrList(l, unix.AF_UNSPEC)
			if err != nil {
				return nil, err
			}
			for _, a := range addrs {
				p, ok := prefixOf(a)
				if !ok || p.Addr().IsLinkLocalUnicast() {
					continue
				}
				names = append(names, p.String())
			}
			continue
		}
		if k, ok := kindOfLinkType(l.Type()); ok && k == kind {
			names = append(names, l.Attrs().Name)
		}
	}
	slices.Sort(names)
	return slices.Compact(names), nil
}

// Create implements Mutator.
func (d *Driver) Create(ctx context.Context, key catalog.Key, attrs catalog.Attributes) error {
	d.log.Debug("create", "object", key.String())

	switch a := attrs.(type) {
	case catalog.NamespaceAttrs:
		ok, err := d.ns.Exists(key.Name)
		if err != nil {
			return err
		}
		if ok {
			return fmt.Errorf("netns %s: %w", key.Name, ErrAlreadyExists)
		}
		if err := d.ns.Create(key.Name); err != nil {
			return err
		}
		if err := d.markNamespace(key.Name); err != nil {
			// An unmarked namespace would be taken for a foreign one.
			if derr := d.ns.Delete(key.Name); derr != nil {
				d.log.Warn("failed to remove unmarked namespace", "netns", key.Name, "error", derr)
			}
			return err
		}
		return nil

	case catalog.VethAttrs:
		if a.Primary {
			return d.createVethPair(key, a)
		}
		return d.moveVethPeer(key, a)

	case catalog.AddressAttrs:
		nl, err := d.handle(key.Scope)
		if err != nil {
			return err
		}
		defer nl.Close()
		link, err := nl.LinkByName(a.Link)
		if err != nil {
			return fmt.Errorf("address %s: %w", key.Name, err)
		}
		return nl.AddrAdd(link, &netlink.Addr{
			IPNet: ipNet(a.Prefix),
			Label: d.addressLabel(a.Link, a.Prefix),
		})

	case catalog.Linked:
		nl, err := d.handle(key.Scope)
		if err != nil {
			return err
		}
		defer nl.Close()

		link, err := d.newLink(nl, key.Name, a)
		if err != nil {
			return err
		}
		if err := nl.LinkAdd(link); err != nil {
			return fmt.Errorf("link add %s: %w", key.Name, err)
		}
		return d.configure(nl, key.Name, a.Common())
	}
	return fmt.Errorf("create %s: %w", key, ErrUnsupported)
}

func (d *Driver) newLink(nl Netlinker, name string, a catalog.Linked) (netlink.Link, error) {
	la := netlink.NewLinkAttrs()
	la.Name = name
	la.MTU = a.Common().MTU

	switch v := a.(type) {
	case catalog.VRFAttrs:
		return &netlink.Vrf{LinkAttrs: la, Table: v.Table}, nil
	case catalog.BridgeAttrs:
		return &netlink.Bridge{LinkAttrs: la}, nil
	case catalog.LinkAttrs:
		switch v.LinkType {
		case catalog.LinkDummy:
			return &netlink.Dummy{LinkAttrs: la}, nil
		case catalog.LinkVXLAN:
			return d.newVXLAN(nl, la, v.VXLAN)
		}
		return nil, fmt.Errorf("link type %s: %w", v.LinkType, ErrUnsupported)
	}
	return nil, fmt.Errorf("link %s: %w", name, ErrUnsupported)
}

func (d *Driver) newVXLAN(nl Netlinker, la netlink.LinkAttrs, vx *catalog.VXLANAttrs) (netlink.Link, error) {
	if vx == nil {
		return nil, fmt.Errorf("vxlan %s: missing tunnel parameters", la.Name)
	}
	link := &netlink.Vxlan{
		LinkAttrs: la,
		VxlanId:   vx.ID,
		Port:      vx.Port,
		Learning:  true,
	}
	if vx.Underlay != "" {
		under, err := nl.LinkByName(vx.Underlay)
		if err != nil {
			return nil, fmt.Errorf("vxlan %s underlay: %w", la.Name, err)
		}
		link.VtepDevIndex = under.Attrs().Index
	}
	if vx.Remote != "" {
		link.Group = net.ParseIP(vx.Remote)
	}
	if vx.Local != "" {
		link.SrcAddr = net.ParseIP(vx.Local)
	}
	return link, nil
}

// configure stamps the ownership marker on a freshly created link and
// applies its master and state.
func (d *Driver) configure(nl Netlinker, name string, c catalog.LinkCommon) error {
	link, err := nl.LinkByName(name)
	if err != nil {
		return err
	}
	if err := nl.LinkSetAlias(link, d.owner); err != nil {
		return fmt.Errorf("link set %s alias: %w", name, err)
	}
	if c.MTU > 0 && link.Attrs().MTU != c.MTU {
		if err := nl.LinkSetMTU(link, c.MTU); err != nil {
			return fmt.Errorf("link set %s mtu: %w", name, err)
		}
	}
	if c.Master != "" {
		master, err := nl.LinkByName(c.Master)
		if err != nil {
			return fmt.Errorf("link set %s master %s: %w", name, c.Master, err)
		}
		if err := nl.LinkSetMaster(link, master); err != nil {
			return fmt.Errorf("link set %s master %s: %w", name, c.Master, err)
		}
	}
	if c.State != catalog.StateDown {
		if err := nl.LinkSetUp(link); err != nil {
			return fmt.Errorf("link set %s up: %w", name, err)
		}
	}
	return nil
}

// createVethPair creates both endpoints in the primary's namespace. The
// secondary is moved to its own namespace when its step runs.
func (d *Driver) createVethPair(key catalog.Key, a catalog.VethAttrs) error {
	nl, err := d.handle(key.Scope)
	if err != nil {
		return err
	}
	defer nl.Close()

	la := netlink.NewLinkAttrs()
	la.Name = key.Name
	la.MTU = a.MTU
	veth := &netlink.Veth{LinkAttrs: la, PeerName: a.Peer}
	if err := nl.LinkAdd(veth); err != nil {
		return fmt.Errorf("link add %s type veth peer %s: %w", key.Name, a.Peer, err)
	}

	peer, err := nl.LinkByName(a.Peer)
	if err != nil {
		return fmt.Errorf("veth peer %s: %w", a.Peer, err)
	}
	if err := nl.LinkSetAlias(peer, d.owner); err != nil {
		return fmt.Errorf("link set %s alias: %w", a.Peer, err)
	}
	return d.configure(nl, key.Name, a.LinkCommon)
}

// moveVethPeer brings the secondary endpoint, created along with its
// primary, into its own namespace and configures it there.
func (d *Driver) moveVethPeer(key catalog.Key, a catalog.VethAttrs) error {
	if key.Scope == a.PeerScope {
		return fmt.Errorf("veth %s: %w", key.Name, ErrAlreadyExists)
	}

	src, err := d.handle(a.PeerScope)
	if err != nil {
		return err
	}
	defer src.Close()

	link, err := src.LinkByName(key.Name)
	if err != nil {
		return fmt.Errorf("veth %s not found in %s: %w", key.Name, scopeName(a.PeerScope), err)
	}
	if _, ok := link.(*netlink.Veth); !ok {
		return fmt.Errorf("%s in %s is a %s, not a veth: %w", key.Name, scopeName(a.PeerScope), link.Type(), ErrAlreadyExists)
	}
	if err := d.ns.MoveLink(src, link, key.Scope); err != nil {
		return fmt.Errorf("link set %s netns %s: %w", key.Name, key.Scope, err)
	}

	dst, err := d.handle(key.Scope)
	if err != nil {
		return err
	}
	defer dst.Close()
	return d.configure(dst, key.Name, a.LinkCommon)
}

// Update implements Mutator. Only MTU, state and master are changed.
func (d *Driver) Update(ctx context.Context, key catalog.Key, attrs catalog.Attributes) error {
	d.log.Debug("update", "object", key.String())

	linked, ok := attrs.(catalog.Linked)
	if !ok {
		// Namespaces and addresses have nothing mutable.
		return nil
	}
	c := linked.Common()

	nl, err := d.handle(key.Scope)
	if err != nil {
		return err
	}
	defer nl.Close()

	link, err := nl.LinkByName(key.Name)
	if err != nil {
		return err
	}
	la := link.Attrs()

	if c.MTU > 0 && la.MTU != c.MTU {
		if err := nl.LinkSetMTU(link, c.MTU); err != nil {
			return fmt.Errorf("link set %s mtu %d: %w", key.Name, c.MTU, err)
		}
	}

	if current := d.linkName(nl, la.MasterIndex); current != c.Master {
		if c.Master == "" {
			if err := nl.LinkSetNoMaster(link); err != nil {
				return fmt.Errorf("link set %s nomaster: %w", key.Name, err)
			}
		} else {
			master, err := nl.LinkByName(c.Master)
			if err != nil {
				return fmt.Errorf("link set %s master %s: %w", key.Name, c.Master, err)
			}
			if err := nl.LinkSetMaster(link, master); err != nil {
				return fmt.Errorf("link set %s master %s: %w", key.Name, c.Master, err)
			}
		}
	}

	up := la.Flags&net.FlagUp != 0
	switch {
	case c.State == catalog.StateUp && !up:
		if err := nl.LinkSetUp(link); err != nil {
			return fmt.Errorf("link set %s up: %w", key.Name, err)
		}
	case c.State == catalog.StateDown && up:
		if err := nl.LinkSetDown(link); err != nil {
			return fmt.Errorf("link set %s down: %w", key.Name, err)
		}
	}
	return nil
}

// Delete implements Mutator. Deleting a namespace that still holds links
// topoctl does not own fails with ErrBusy.
func (d *Driver) Delete(ctx context.Context, key catalog.Key) error {
	d.log.Debug("delete", "object", key.String())

	switch {
	case key.Kind == catalog.KindNamespace:
		ok, err := d.ns.Exists(key.Name)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("netns %s: %w", key.Name, ErrNotFound)
		}
		_, foreign, err := d.inspectNamespace(key.Name)
		if err != nil {
			return err
		}
		if len(foreign) > 0 {
			return fmt.Errorf("netns %s still holds %v: %w", key.Name, foreign, ErrBusy)
		}
		return d.ns.Delete(key.Name)

	case key.Kind == catalog.KindAddress:
		prefix, err := netip.ParsePrefix(key.Name)
		if err != nil {
			return fmt.Errorf("address %s: %w", key.Name, err)
		}
		nl, err := d.handle(key.Scope)
		if err != nil {
			return err
		}
		defer nl.Close()
		link, addr, err := findAddress(nl, prefix)
		if err != nil {
			return err
		}
		if link == nil {
			return fmt.Errorf("address %s: %w", key.Name, ErrNotFound)
		}
		return nl.AddrDel(link, addr)

	case key.Kind.IsLink():
		nl, err := d.handle(key.Scope)
		if err != nil {
			return err
		}
		defer nl.Close()
		link, err := nl.LinkByName(key.Name)
		if err != nil {
			return err
		}
		if err := nl.LinkDel(link); err != nil {
			return fmt.Errorf("link del %s: %w", key.Name, err)
		}
		return nil
	}
	return fmt.Errorf("delete %s: %w", key, ErrUnsupported)
}
