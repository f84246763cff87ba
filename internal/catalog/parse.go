package catalog

import (
	"fmt"
	"net/netip"
	"sort"
	"strconv"
	"strings"
)

var allowedAttributes = map[Kind][]string{
	KindNamespace: nil,
	KindVRF:       {"mtu", "state", "table"},
	KindBridge:    {"mtu", "state"},
	KindLink:      {"mtu", "state", "type", "vxlan_id", "underlay", "port", "remote", "local"},
	KindVeth:      {"mtu", "state"},
	KindAddress:   nil,
}

const (
	minMTU     = 68
	maxMTU     = 65535
	maxVXLANID = 1<<24 - 1
)

// ParseAttributes converts the loosely typed attribute map of one declaration
// into the typed record of its kind. Relation-derived fields (master, peer,
// address link) are left empty; they are filled in when the topology is built.
func ParseAttributes(kind Kind, name string, raw map[string]string) (Attributes, error) {
	if err := checkKeys(kind, raw); err != nil {
		return nil, err
	}

	switch kind {
	case KindNamespace:
		return NamespaceAttrs{}, nil

	case KindVRF:
		common, err := parseCommon(raw)
		if err != nil {
			return nil, err
		}
		table, err := parseTable(name, raw["table"])
		if err != nil {
			return nil, err
		}
		return VRFAttrs{LinkCommon: common, Table: table}, nil

	case KindBridge:
		common, err := parseCommon(raw)
		if err != nil {
			return nil, err
		}
		return BridgeAttrs{LinkCommon: common}, nil

	case KindLink:
		return parseLink(raw)

	case KindVeth:
		common, err := parseCommon(raw)
		if err != nil {
			return nil, err
		}
		return VethAttrs{LinkCommon: common}, nil

	case KindAddress:
		prefix, err := netip.ParsePrefix(name)
		if err != nil {
			return nil, fmt.Errorf("invalid address %q: %w", name, err)
		}
		if prefix.String() != name {
			return nil, fmt.Errorf("address %q is not in canonical form (want %q)", name, prefix.String())
		}
		return AddressAttrs{Prefix: prefix}, nil
	}
	return nil, fmt.Errorf("unknown object kind %v", kind)
}

func checkKeys(kind Kind, raw map[string]string) error {
	allowed, ok := allowedAttributes[kind]
	if !ok {
		return fmt.Errorf("unknown object kind %v", kind)
	}
	var unknown []string
	for k := range raw {
		found := false
		for _, a := range allowed {
			if a == k {
				found = true
				break
			}
		}
		if !found {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("unknown attribute(s) for %s: %s", kind, strings.Join(unknown, ", "))
	}
	return nil
}

func parseCommon(raw map[string]string) (LinkCommon, error) {
	c := LinkCommon{State: StateUp}

	if v, ok := raw["mtu"]; ok && v != "" {
		mtu, err := strconv.Atoi(v)
		if err != nil {
			return c, fmt.Errorf("invalid mtu %q: %w", v, err)
		}
		if mtu < minMTU || mtu > maxMTU {
			return c, fmt.Errorf("mtu %d out of range [%d, %d]", mtu, minMTU, maxMTU)
		}
		c.MTU = mtu
	}

	if v, ok := raw["state"]; ok && v != "" {
		switch LinkState(strings.ToLower(v)) {
		case StateUp:
			c.State = StateUp
		case StateDown:
			c.State = StateDown
		default:
			return c, fmt.Errorf("invalid state %q: want up or down", v)
		}
	}
	return c, nil
}

// parseTable reads the VRF table id. When omitted it is taken from a numeric
// name suffix, so "vrf101" binds table 101.
func parseTable(name, v string) (uint32, error) {
	if v == "" {
		v = strings.TrimPrefix(strings.ToLower(name), "vrf")
		if v == "" || v == strings.ToLower(name) {
			return 0, fmt.Errorf("vrf %q needs a table (or a name like vrf<table>)", name)
		}
	}
	table, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid vrf table %q: %w", v, err)
	}
	if table == 0 {
		return 0, fmt.Errorf("vrf table must be non-zero")
	}
	return uint32(table), nil
}

func parseLink(raw map[string]string) (Attributes, error) {
	common, err := parseCommon(raw)
	if err != nil {
		return nil, err
	}

	a := LinkAttrs{LinkCommon: common, LinkType: LinkType(strings.ToLower(raw["type"]))}
	switch a.LinkType {
	case "":
		return nil, fmt.Errorf("link needs a type (dummy or vxlan)")
	case LinkDummy:
		for _, k := range []string{"vxlan_id", "underlay", "port", "remote", "local"} {
			if _, ok := raw[k]; ok {
				return nil, fmt.Errorf("attribute %s is only valid for vxlan links", k)
			}
		}
		return a, nil
	case LinkVXLAN:
		vx, err := parseVXLAN(raw)
		if err != nil {
			return nil, err
		}
		a.VXLAN = vx
		return a, nil
	}
	return nil, fmt.Errorf("unsupported link type %q", raw["type"])
}

func parseVXLAN(raw map[string]string) (*VXLANAttrs, error) {
	vx := &VXLANAttrs{
		Underlay: raw["underlay"],
	}

	id, err := strconv.Atoi(raw["vxlan_id"])
	if err != nil {
		return nil, fmt.Errorf("vxlan link needs a numeric vxlan_id: %w", err)
	}
	if id < 1 || id > maxVXLANID {
		return nil, fmt.Errorf("vxlan_id %d out of range [1, %d]", id, maxVXLANID)
	}
	vx.ID = id

	if v := raw["port"]; v != "" {
		port, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid vxlan port %q: %w", v, err)
		}
		vx.Port = int(port)
	}

	for _, field := range []struct {
		name string
		dst  *string
	}{{"remote", &vx.Remote}, {"local", &vx.Local}} {
		v := raw[field.name]
		if v == "" {
			continue
		}
		ip, err := netip.ParseAddr(v)
		if err != nil {
			return nil, fmt.Errorf("invalid vxlan %s %q: %w", field.name, v, err)
		}
		*field.dst = ip.String()
	}
	return vx, nil
}
