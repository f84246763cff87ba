//go:build linux

package kernel

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"
)

// netnsDir is where iproute2 and netns.NewNamed bind-mount named namespaces.
const netnsDir = "/run/netns"

// handleNetlinker is a Netlinker backed by a namespace-bound netlink handle.
type handleNetlinker struct {
	h *netlink.Handle
}

func (n *handleNetlinker) LinkByName(name string) (netlink.Link, error) {
	l, err := n.h.LinkByName(name)
	if err != nil {
		var nf netlink.LinkNotFoundError
		if errors.As(err, &nf) {
			return nil, fmt.Errorf("link %s: %w", name, ErrNotFound)
		}
		return nil, Classify(err)
	}
	return l, nil
}

func (n *handleNetlinker) LinkByIndex(index int) (netlink.Link, error) {
	l, err := n.h.LinkByIndex(index)
	if err != nil {
		var nf netlink.LinkNotFoundError
		if errors.As(err, &nf) {
			return nil, fmt.Errorf("link index %d: %w", index, ErrNotFound)
		}
		return nil, Classify(err)
	}
	return l, nil
}

func (n *handleNetlinker) LinkList() ([]netlink.Link, error) {
	links, err := n.h.LinkList()
	return links, Classify(err)
}

func (n *handleNetlinker) LinkAdd(link netlink.Link) error {
	return Classify(n.h.LinkAdd(link))
}

func (n *handleNetlinker) LinkDel(link netlink.Link) error {
	return Classify(n.h.LinkDel(link))
}

func (n *handleNetlinker) LinkSetUp(link netlink.Link) error {
	return Classify(n.h.LinkSetUp(link))
}

func (n *handleNetlinker) LinkSetDown(link netlink.Link) error {
	return Classify(n.h.LinkSetDown(link))
}

func (n *handleNetlinker) LinkSetMTU(link netlink.Link, mtu int) error {
	return Classify(n.h.LinkSetMTU(link, mtu))
}

func (n *handleNetlinker) LinkSetMaster(link, master netlink.Link) error {
	return Classify(n.h.LinkSetMaster(link, master))
}

func (n *handleNetlinker) LinkSetNoMaster(link netlink.Link) error {
	return Classify(n.h.LinkSetNoMaster(link))
}

func (n *handleNetlinker) LinkSetAlias(link netlink.Link, alias string) error {
	return Classify(n.h.LinkSetAlias(link, alias))
}

func (n *handleNetlinker) AddrList(link netlink.Link, family int) ([]netlink.Addr, error) {
	addrs, err := n.h.AddrList(link, family)
	return addrs, Classify(err)
}

func (n *handleNetlinker) AddrAdd(link netlink.Link, addr *netlink.Addr) error {
	return Classify(n.h.AddrAdd(link, addr))
}

func (n *handleNetlinker) AddrDel(link netlink.Link, addr *netlink.Addr) error {
	return Classify(n.h.AddrDel(link, addr))
}

func (n *handleNetlinker) Close() {
	n.h.Close()
}

// systemNamespaces manages namespaces under /run/netns.
type systemNamespaces struct{}

// SystemNamespaces returns the Namespaces implementation for this host.
func SystemNamespaces() Namespaces {
	return systemNamespaces{}
}

func (systemNamespaces) List() ([]string, error) {
	entries, err := os.ReadDir(netnsDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, Classify(err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func (systemNamespaces) Exists(name string) (bool, error) {
	_, err := os.Stat(filepath.Join(netnsDir, name))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, Classify(err)
	}
	return true, nil
}

// Create makes a named namespace. netns.NewNamed switches the calling
// thread into the new namespace, so the thread is pinned and switched back
// before returning.
func (systemNamespaces) Create(name string) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	origns, err := netns.Get()
	if err != nil {
		return fmt.Errorf("failed to get original netns: %w", Classify(err))
	}
	defer origns.Close()

	newns, err := netns.NewNamed(name)
	if err != nil {
		_ = netns.Set(origns)
		if os.IsExist(err) {
			return fmt.Errorf("netns %s: %w", name, ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create netns %s: %w", name, Classify(err))
	}
	defer newns.Close()

	if err := netns.Set(origns); err != nil {
		return fmt.Errorf("failed to switch back to original ns: %w", Classify(err))
	}
	return nil
}

func (systemNamespaces) Delete(name string) error {
	if err := netns.DeleteNamed(name); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("netns %s: %w", name, ErrNotFound)
		}
		return fmt.Errorf("failed to delete netns %s: %w", name, Classify(err))
	}
	return nil
}

func (systemNamespaces) Netlinker(name string) (Netlinker, error) {
	if name == "" {
		h, err := netlink.NewHandle()
		if err != nil {
			return nil, Classify(err)
		}
		return &handleNetlinker{h: h}, nil
	}

	ns, err := netns.GetFromName(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("netns %s: %w", name, ErrNotFound)
		}
		return nil, Classify(err)
	}
	defer ns.Close()

	h, err := netlink.NewHandleAt(ns)
	if err != nil {
		return nil, fmt.Errorf("netlink handle in %s: %w", name, Classify(err))
	}
	return &handleNetlinker{h: h}, nil
}

func (systemNamespaces) MoveLink(from Netlinker, link netlink.Link, to string) error {
	var (
		target netns.NsHandle
		err    error
	)
	if to == "" {
		target, err = netns.GetFromPath(fmt.Sprintf("/proc/%d/ns/net", os.Getpid()))
	} else {
		target, err = netns.GetFromName(to)
	}
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("netns %s: %w", to, ErrNotFound)
		}
		return Classify(err)
	}
	defer target.Close()

	h, ok := from.(*handleNetlinker)
	if !ok {
		return fmt.Errorf("move %s: %w", link.Attrs().Name, ErrUnsupported)
	}
	return Classify(h.h.LinkSetNsFd(link, int(target)))
}
