package kernel

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"grimm.is/topoctl/internal/catalog"
)

// DryRun is a Mutator that records the ip(8) commands equivalent to each
// mutation instead of performing it.
type DryRun struct {
	mu  sync.Mutex
	Ops []string
}

var _ Mutator = (*DryRun)(nil)

// NewDryRun returns an empty recorder.
func NewDryRun() *DryRun {
	return &DryRun{Ops: make([]string, 0)}
}

func (n *DryRun) log(scope, format string, args ...any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	prefix := "ip "
	if scope != "" {
		prefix = fmt.Sprintf("ip -n %s ", scope)
	}
	n.Ops = append(n.Ops, prefix+fmt.Sprintf(format, args...))
}

// Commands returns a copy of the recorded commands.
func (n *DryRun) Commands() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.Ops))
	copy(out, n.Ops)
	return out
}

// Create implements Mutator.
func (n *DryRun) Create(ctx context.Context, key catalog.Key, attrs catalog.Attributes) error {
	switch a := attrs.(type) {
	case catalog.NamespaceAttrs:
		n.log("", "netns add %s", key.Name)
		return nil

	case catalog.AddressAttrs:
		n.log(key.Scope, "addr add %s dev %s", a.Prefix, a.Link)
		return nil

	case catalog.VethAttrs:
		if !a.Primary {
			n.log(a.PeerScope, "link set %s netns %s", key.Name, netnsArg(key.Scope))
		} else {
			n.log(key.Scope, "link add %s%s type veth peer name %s", key.Name, mtuArg(a.MTU), a.Peer)
		}
		n.configure(key, a.LinkCommon)
		return nil

	case catalog.VRFAttrs:
		n.log(key.Scope, "link add %s%s type vrf table %d", key.Name, mtuArg(a.MTU), a.Table)
		n.configure(key, a.LinkCommon)
		return nil

	case catalog.BridgeAttrs:
		n.log(key.Scope, "link add %s%s type bridge", key.Name, mtuArg(a.MTU))
		n.configure(key, a.LinkCommon)
		return nil

	case catalog.LinkAttrs:
		n.log(key.Scope, "link add %s%s type %s%s", key.Name, mtuArg(a.MTU), a.LinkType, vxlanArgs(a.VXLAN))
		n.configure(key, a.LinkCommon)
		return nil
	}
	return fmt.Errorf("create %s: %w", key, ErrUnsupported)
}

func (n *DryRun) configure(key catalog.Key, c catalog.LinkCommon) {
	if c.Master != "" {
		n.log(key.Scope, "link set %s master %s", key.Name, c.Master)
	}
	if c.State != catalog.StateDown {
		n.log(key.Scope, "link set %s up", key.Name)
	}
}

// Update implements Mutator.
func (n *DryRun) Update(ctx context.Context, key catalog.Key, attrs catalog.Attributes) error {
	linked, ok := attrs.(catalog.Linked)
	if !ok {
		return nil
	}
	c := linked.Common()
	if c.MTU > 0 {
		n.log(key.Scope, "link set %s mtu %d", key.Name, c.MTU)
	}
	if c.Master == "" {
		n.log(key.Scope, "link set %s nomaster", key.Name)
	} else {
		n.log(key.Scope, "link set %s master %s", key.Name, c.Master)
	}
	if c.State != "" {
		n.log(key.Scope, "link set %s %s", key.Name, c.State)
	}
	return nil
}

// Delete implements Mutator.
func (n *DryRun) Delete(ctx context.Context, key catalog.Key) error {
	switch {
	case key.Kind == catalog.KindNamespace:
		n.log("", "netns del %s", key.Name)
	case key.Kind == catalog.KindAddress:
		n.log(key.Scope, "addr del %s", key.Name)
	case key.Kind.IsLink():
		n.log(key.Scope, "link del %s", key.Name)
	default:
		return fmt.Errorf("delete %s: %w", key, ErrUnsupported)
	}
	return nil
}

func mtuArg(mtu int) string {
	if mtu == 0 {
		return ""
	}
	return fmt.Sprintf(" mtu %d", mtu)
}

// netnsArg names the root namespace the way ip(8) accepts it: by pid.
func netnsArg(scope string) string {
	if scope == "" {
		return "1"
	}
	return scope
}

func vxlanArgs(vx *catalog.VXLANAttrs) string {
	if vx == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, " id %d", vx.ID)
	if vx.Underlay != "" {
		fmt.Fprintf(&b, " dev %s", vx.Underlay)
	}
	if vx.Port != 0 {
		fmt.Fprintf(&b, " dstport %d", vx.Port)
	}
	if vx.Remote != "" {
		fmt.Fprintf(&b, " remote %s", vx.Remote)
	}
	if vx.Local != "" {
		fmt.Fprintf(&b, " local %s", vx.Local)
	}
	return b.String()
}
