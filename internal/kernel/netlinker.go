package kernel

import (
	"github.com/vishvananda/netlink"
)

// Netlinker is the slice of the netlink API the driver uses, bound to one
// network namespace.
type Netlinker interface {
	LinkByName(name string) (netlink.Link, error)
	LinkByIndex(index int) (netlink.Link, error)
	LinkList() ([]netlink.Link, error)
	LinkAdd(link netlink.Link) error
	LinkDel(link netlink.Link) error
	LinkSetUp(link netlink.Link) error
	LinkSetDown(link netlink.Link) error
	LinkSetMTU(link netlink.Link, mtu int) error
	LinkSetMaster(link, master netlink.Link) error
	LinkSetNoMaster(link netlink.Link) error
	LinkSetAlias(link netlink.Link, alias string) error

	AddrList(link netlink.Link, family int) ([]netlink.Addr, error)
	AddrAdd(link netlink.Link, addr *netlink.Addr) error
	AddrDel(link netlink.Link, addr *netlink.Addr) error

	Close()
}

// Namespaces manages named network namespaces and hands out netlink
// handles bound to them. The empty name is the root namespace.
type Namespaces interface {
	List() ([]string, error)
	Exists(name string) (bool, error)
	Create(name string) error
	Delete(name string) error
	// Netlinker opens a handle in the named namespace. The caller closes it.
	Netlinker(name string) (Netlinker, error)
	// MoveLink moves a link, looked up through from, into the named
	// namespace.
	MoveLink(from Netlinker, link netlink.Link, to string) error
}
