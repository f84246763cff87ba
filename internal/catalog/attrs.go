package catalog

import (
	"net/netip"
)

// LinkState is the administrative state of a network device.
type LinkState string

const (
	StateUp   LinkState = "up"
	StateDown LinkState = "down"
)

// LinkType selects the device type of a generic link.
type LinkType string

const (
	LinkDummy LinkType = "dummy"
	LinkVXLAN LinkType = "vxlan"
)

// Kernel object types reported for the non-generic kinds.
const (
	TypeNamespace = "netns"
	TypeVRF       = "vrf"
	TypeBridge    = "bridge"
	TypeVeth      = "veth"
	TypeAddress   = "address"
)

// Attributes is the typed attribute record of one object.
type Attributes interface {
	Kind() Kind
	// Type is the kernel object type this record describes ("bridge",
	// "dummy", "netns", ...). An observed object of a different type is not
	// the same object.
	Type() string
	// Diff compares the desired record against an observed one and returns
	// the names of differing structural and mutable attributes. Unset
	// desired values (zero MTU, empty state) are not compared.
	Diff(observed Attributes) (structural, mutable []string)
}

// Linked is implemented by the attribute records of network devices.
type Linked interface {
	Attributes
	Common() LinkCommon
}

// LinkCommon holds the mutable attributes shared by all devices.
type LinkCommon struct {
	MTU   int
	State LinkState
	// Master is the bridge or VRF the device is enslaved to, derived from
	// its attaches-to relation. Empty means no master.
	Master string
}

type drift struct {
	structural []string
	mutable    []string
}

func (d *drift) structuralIf(cond bool, name string) {
	if cond {
		d.structural = append(d.structural, name)
	}
}

func (d *drift) mutableIf(cond bool, name string) {
	if cond {
		d.mutable = append(d.mutable, name)
	}
}

func (d *drift) result() ([]string, []string) {
	return d.structural, d.mutable
}

func (c LinkCommon) diff(o LinkCommon, d *drift) {
	d.mutableIf(c.MTU != 0 && c.MTU != o.MTU, "mtu")
	d.mutableIf(c.State != "" && c.State != o.State, "state")
	d.mutableIf(c.Master != o.Master, "master")
}

func kindMismatch() ([]string, []string) {
	return []string{"kind"}, nil
}

// NamespaceAttrs describes a named network namespace. Namespaces carry no
// attributes of their own.
type NamespaceAttrs struct{}

func (NamespaceAttrs) Kind() Kind   { return KindNamespace }
func (NamespaceAttrs) Type() string { return TypeNamespace }

func (NamespaceAttrs) Diff(observed Attributes) ([]string, []string) {
	if _, ok := observed.(NamespaceAttrs); !ok {
		return kindMismatch()
	}
	return nil, nil
}

// VRFAttrs describes a VRF device bound to a routing table.
type VRFAttrs struct {
	LinkCommon
	Table uint32
}

func (VRFAttrs) Kind() Kind           { return KindVRF }
func (VRFAttrs) Type() string         { return TypeVRF }
func (a VRFAttrs) Common() LinkCommon { return a.LinkCommon }

func (a VRFAttrs) Diff(observed Attributes) ([]string, []string) {
	o, ok := observed.(VRFAttrs)
	if !ok {
		return kindMismatch()
	}
	var d drift
	d.structuralIf(a.Table != o.Table, "table")
	a.LinkCommon.diff(o.LinkCommon, &d)
	return d.result()
}

// BridgeAttrs describes a Linux bridge.
type BridgeAttrs struct {
	LinkCommon
}

func (BridgeAttrs) Kind() Kind           { return KindBridge }
func (BridgeAttrs) Type() string         { return TypeBridge }
func (a BridgeAttrs) Common() LinkCommon { return a.LinkCommon }

func (a BridgeAttrs) Diff(observed Attributes) ([]string, []string) {
	o, ok := observed.(BridgeAttrs)
	if !ok {
		return kindMismatch()
	}
	var d drift
	a.LinkCommon.diff(o.LinkCommon, &d)
	return d.result()
}

// VXLANAttrs are the tunnel parameters of a vxlan link.
type VXLANAttrs struct {
	ID       int
	Underlay string
	Port     int
	Remote   string
	Local    string
}

// LinkAttrs describes a generic link (dummy or vxlan).
type LinkAttrs struct {
	LinkCommon
	LinkType LinkType
	VXLAN    *VXLANAttrs
}

func (LinkAttrs) Kind() Kind           { return KindLink }
func (a LinkAttrs) Type() string       { return string(a.LinkType) }
func (a LinkAttrs) Common() LinkCommon { return a.LinkCommon }

func (a LinkAttrs) Diff(observed Attributes) ([]string, []string) {
	o, ok := observed.(LinkAttrs)
	if !ok {
		return kindMismatch()
	}
	var d drift
	d.structuralIf(a.LinkType != o.LinkType, "type")
	if a.VXLAN != nil {
		ov := o.VXLAN
		if ov == nil {
			ov = &VXLANAttrs{}
		}
		d.structuralIf(a.VXLAN.ID != ov.ID, "vxlan_id")
		d.structuralIf(a.VXLAN.Port != 0 && a.VXLAN.Port != ov.Port, "port")
		d.structuralIf(a.VXLAN.Underlay != "" && a.VXLAN.Underlay != ov.Underlay, "underlay")
		d.structuralIf(a.VXLAN.Remote != "" && a.VXLAN.Remote != ov.Remote, "remote")
		d.structuralIf(a.VXLAN.Local != "" && a.VXLAN.Local != ov.Local, "local")
	}
	a.LinkCommon.diff(o.LinkCommon, &d)
	return d.result()
}

// VethAttrs describes one endpoint of a veth pair.
type VethAttrs struct {
	LinkCommon
	// Peer and PeerScope locate the other endpoint.
	Peer      string
	PeerScope string
	// Primary is set on the endpoint that creates the pair. The other
	// endpoint is created by moving the peer into its namespace.
	Primary bool
}

func (VethAttrs) Kind() Kind           { return KindVeth }
func (VethAttrs) Type() string         { return TypeVeth }
func (a VethAttrs) Common() LinkCommon { return a.LinkCommon }

func (a VethAttrs) Diff(observed Attributes) ([]string, []string) {
	o, ok := observed.(VethAttrs)
	if !ok {
		return kindMismatch()
	}
	var d drift
	// The kernel cannot always name a peer living in another namespace.
	d.structuralIf(a.Peer != "" && o.Peer != "" && a.Peer != o.Peer, "peer")
	a.LinkCommon.diff(o.LinkCommon, &d)
	return d.result()
}

// AddressAttrs describes an IP prefix assigned to a device. The object name
// is the canonical prefix string.
type AddressAttrs struct {
	Prefix netip.Prefix
	// Link is the device the address is assigned on, derived from the
	// address's attaches-to relation.
	Link string
}

func (AddressAttrs) Kind() Kind   { return KindAddress }
func (AddressAttrs) Type() string { return TypeAddress }

func (a AddressAttrs) Diff(observed Attributes) ([]string, []string) {
	o, ok := observed.(AddressAttrs)
	if !ok {
		return kindMismatch()
	}
	var d drift
	d.structuralIf(a.Prefix != o.Prefix, "prefix")
	d.structuralIf(o.Link != "" && a.Link != o.Link, "link")
	return d.result()
}

// WithMaster returns a copy of a device record with its master replaced.
// Non-device records are returned unchanged.
func WithMaster(a Attributes, master string) Attributes {
	switch v := a.(type) {
	case VRFAttrs:
		v.Master = master
		return v
	case BridgeAttrs:
		v.Master = master
		return v
	case LinkAttrs:
		v.Master = master
		return v
	case VethAttrs:
		v.Master = master
		return v
	}
	return a
}
