//go:build !linux

package kernel

import (
	"fmt"

	"github.com/vishvananda/netlink"
)

type systemNamespaces struct{}

// SystemNamespaces returns a Namespaces implementation that fails every
// call; network namespaces only exist on Linux.
func SystemNamespaces() Namespaces {
	return systemNamespaces{}
}

func (systemNamespaces) List() ([]string, error)          { return nil, nil }
func (systemNamespaces) Exists(name string) (bool, error) { return false, nil }

func (systemNamespaces) Create(name string) error {
	return fmt.Errorf("netns %s: %w", name, ErrUnsupported)
}

func (systemNamespaces) Delete(name string) error {
	return fmt.Errorf("netns %s: %w", name, ErrUnsupported)
}

func (systemNamespaces) Netlinker(name string) (Netlinker, error) {
	return nil, fmt.Errorf("netlink: %w", ErrUnsupported)
}

func (systemNamespaces) MoveLink(from Netlinker, link netlink.Link, to string) error {
	return fmt.Errorf("move %s: %w", link.Attrs().Name, ErrUnsupported)
}
