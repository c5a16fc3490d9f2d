// SPDX-License-Identifier: GPL-3.0-or-later

package packet

import (
	"fmt"
	"net/netip"
)

// FlowKey identifies a bidirectional flow.
//
// Endpoints are stored in canonical order, so both directions of a flow
// produce the same key. FlowKey is comparable and usable as a map key.
type FlowKey struct {
	Protocol uint8
	Lo       netip.AddrPort
	Hi       netip.AddrPort
}

// NewFlowKey returns the canonical [FlowKey] for the given endpoints.
func NewFlowKey(protocol uint8, x, y netip.AddrPort) FlowKey {
	if x.Compare(y) > 0 {
		x, y = y, x
	}
	return FlowKey{Protocol: protocol, Lo: x, Hi: y}
}

// String returns a human readable representation of the key.
func (k FlowKey) String() string {
	return fmt.Sprintf("%d/%s/%s", k.Protocol, k.Lo, k.Hi)
}
