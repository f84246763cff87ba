// Package catalog defines the closed set of network object kinds topoctl
// understands, how objects are identified, which relations may connect them,
// and the typed attribute record each kind carries.
//
// # Kinds
//
// Kinds are ranked; the rank is the first component of [Key] ordering and so
// drives the deterministic tie-break of the dependency resolver:
//
//	namespace < vrf < bridge < link < veth < address
//
// # Attributes
//
// Each kind has exactly one attribute record type ([NamespaceAttrs],
// [VRFAttrs], [BridgeAttrs], [LinkAttrs], [VethAttrs], [AddressAttrs]).
// Loosely typed attribute maps coming from a topology file are converted with
// [ParseAttributes], so malformed values are rejected before any kernel state
// is touched.
//
// Attributes are split into structural ones (changing them requires the object
// to be destroyed and recreated, e.g. a VRF table) and mutable ones (MTU,
// admin state, master) that can be updated in place. See [Attributes.Diff].
package catalog
