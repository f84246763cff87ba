package config

// Config is the top-level structure of a topology file.
type Config struct {
	// Schema version for backward compatibility (e.g., "1.0")
	// If empty, defaults to the current version
	SchemaVersion string `hcl:"schema_version,optional"`

	Variables  []Variable     `hcl:"variable,block"`
	Settings   *SettingsBlock `hcl:"settings,block"`
	Namespaces []Namespace    `hcl:"namespace,block"`
	VRFs       []VRF          `hcl:"vrf,block"`
	Bridges    []Bridge       `hcl:"bridge,block"`
	Links      []Link         `hcl:"link,block"`
	Veths      []Veth         `hcl:"veth,block"`
	Relations  []Relation     `hcl:"relation,block"`
}

// Variable declares an input that -var can set. A variable without a
// default must be set.
type Variable struct {
	Name        string  `hcl:"name,label"`
	Default     *string `hcl:"default,optional"`
	Description string  `hcl:"description,optional"`
}

// SettingsBlock tunes the reconciliation engine.
type SettingsBlock struct {
	// DivergedPolicy is "reject" (default) or "recreate".
	DivergedPolicy string      `hcl:"diverged_policy,optional"`
	Retry          *RetryBlock `hcl:"retry,block"`
}

// RetryBlock overrides the engine's retry defaults. Durations use Go syntax
// ("250ms", "2s").
type RetryBlock struct {
	Attempts     int    `hcl:"attempts,optional"`
	InitialDelay string `hcl:"initial_delay,optional"`
	MaxDelay     string `hcl:"max_delay,optional"`
}

// Namespace is a named network namespace. Setting Namespace nests it
// logically; the kernel has no nesting, so it only orders the two.
type Namespace struct {
	Label     string `hcl:"name,label"`
	Namespace string `hcl:"namespace,optional"`
}

// VRF is a VRF device. A zero Table is taken from a name like vrf101.
type VRF struct {
	Label     string   `hcl:"name,label"`
	IfName    string   `hcl:"ifname,optional"`
	Namespace string   `hcl:"namespace,optional"`
	Table     int      `hcl:"table,optional"`
	MTU       int      `hcl:"mtu,optional"`
	State     string   `hcl:"state,optional"`
	Addresses []string `hcl:"addresses,optional"`
}

// Bridge is a Linux bridge.
type Bridge struct {
	Label     string   `hcl:"name,label"`
	IfName    string   `hcl:"ifname,optional"`
	Namespace string   `hcl:"namespace,optional"`
	MTU       int      `hcl:"mtu,optional"`
	State     string   `hcl:"state,optional"`
	Master    string   `hcl:"master,optional"` // VRF
	Addresses []string `hcl:"addresses,optional"`
}

// Link is a generic device: dummy or vxlan.
type Link struct {
	Label     string   `hcl:"name,label"`
	IfName    string   `hcl:"ifname,optional"`
	Namespace string   `hcl:"namespace,optional"`
	Type      string   `hcl:"type"`
	MTU       int      `hcl:"mtu,optional"`
	State     string   `hcl:"state,optional"`
	Master    string   `hcl:"master,optional"`
	Addresses []string `hcl:"addresses,optional"`

	// VXLAN
	VXLANID  int    `hcl:"vxlan_id,optional"`
	Underlay string `hcl:"underlay,optional"`
	Port     int    `hcl:"port,optional"`
	Remote   string `hcl:"remote,optional"`
	Group    string `hcl:"group,optional"`
	Local    string `hcl:"local,optional"`
}

// Veth is one endpoint of a veth pair. The pair may be declared from either
// end or both.
type Veth struct {
	Label         string   `hcl:"name,label"`
	IfName        string   `hcl:"ifname,optional"`
	Namespace     string   `hcl:"namespace,optional"`
	Peer          string   `hcl:"peer,optional"`
	PeerNamespace string   `hcl:"peer_namespace,optional"`
	MTU           int      `hcl:"mtu,optional"`
	State         string   `hcl:"state,optional"`
	Master        string   `hcl:"master,optional"`
	Addresses     []string `hcl:"addresses,optional"`
}

// Relation is an explicit edge. From and To are object references in
// kind:scope/name form; the label is the relation type.
type Relation struct {
	Type string `hcl:"type,label"`
	From string `hcl:"from"`
	To   string `hcl:"to"`
}

func ifname(label, override string) string {
	if override != "" {
		return override
	}
	return label
}
