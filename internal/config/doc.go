// Package config loads topology files.
//
// # Overview
//
// A topology file is HCL (or HCL's JSON syntax) declaring the namespaces,
// devices and addresses topoctl manages, plus optional engine settings.
// Loading produces topology.Declarations; validation of the declared graph
// is left to topology.Build.
//
// # Blocks
//
//   - settings: diverged_policy and a retry block
//   - variable: a named input with an optional default, referenced as var.<name>
//   - namespace: a named network namespace
//   - vrf, bridge: master devices
//   - link: a dummy or vxlan device
//   - veth: one endpoint of a veth pair
//   - relation: an explicit edge between two object references
//
// Device blocks accept namespace, mtu, state, master and addresses. The
// block label is the device name unless ifname overrides it, which lets
// templated files compute names from variables.
//
// # Example
//
//	variable "prefix" {
//	  default = "lab"
//	}
//
//	namespace "ns1" {}
//
//	bridge "br0" {
//	  mtu       = 1500
//	  addresses = ["10.0.0.1/24"]
//	}
//
//	veth "veth0" {
//	  ifname         = "${var.prefix}0"
//	  master         = "br0"
//	  peer           = "veth1"
//	  peer_namespace = "ns1"
//	}
//
//	veth "veth1" {
//	  namespace = "ns1"
//	  addresses = ["10.0.0.2/24"]
//	}
//
// Files may also be fetched from http(s) URLs.
package config
