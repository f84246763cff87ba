package catalog

import (
	"fmt"
	"strings"
)

// Kind is the type of a declared network object.
type Kind int

const (
	KindNamespace Kind = iota
	KindVRF
	KindBridge
	KindLink
	KindVeth
	KindAddress
)

var kindNames = [...]string{
	KindNamespace: "namespace",
	KindVRF:       "vrf",
	KindBridge:    "bridge",
	KindLink:      "link",
	KindVeth:      "veth",
	KindAddress:   "address",
}

// aliases accepted by ParseKind in addition to the canonical names.
var kindAliases = map[string]Kind{
	"netns":        KindNamespace,
	"generic-link": KindLink,
	"veth-pair":    KindVeth,
	"addr":         KindAddress,
}

// Kinds returns every kind in rank order.
func Kinds() []Kind {
	return []Kind{KindNamespace, KindVRF, KindBridge, KindLink, KindVeth, KindAddress}
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	return k >= KindNamespace && k <= KindAddress
}

// IsLink reports whether objects of this kind are network devices.
func (k Kind) IsLink() bool {
	switch k {
	case KindVRF, KindBridge, KindLink, KindVeth:
		return true
	}
	return false
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKind parses a kind name, case-insensitively.
func ParseKind(s string) (Kind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range kindNames {
		if n == name {
			return Kind(i), nil
		}
	}
	if k, ok := kindAliases[name]; ok {
		return k, nil
	}
	return 0, fmt.Errorf("unknown object kind %q", s)
}
