package station

import (
	"slices"
	"strings"
)

// Capability is an optional instrument feature.
type Capability string

const (
	CapATR           Capability = "ATR"
	CapLock          Capability = "LOCK"
	CapPowerSearch   Capability = "POWERSEARCH"
	CapReflectorless Capability = "REFLECTORLESS"
)

// CapabilitySet is the fixed feature list a driver declares. It is never
// probed from the device.
type CapabilitySet struct {
	caps []Capability
}

// NewCapabilitySet returns a sorted, de-duplicated set.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	c := slices.Clone(caps)
	slices.Sort(c)
	return CapabilitySet{caps: slices.Compact(c)}
}

// Has reports whether c is in the set.
func (s CapabilitySet) Has(c Capability) bool {
	_, found := slices.BinarySearch(s.caps, c)
	return found
}

// List returns the capabilities in sorted order.
func (s CapabilitySet) List() []Capability { return slices.Clone(s.caps) }

func (s CapabilitySet) String() string {
	names := make([]string, len(s.caps))
	for i, c := range s.caps {
		names[i] = string(c)
	}
	return "{" + strings.Join(names, ",") + "}"
}
