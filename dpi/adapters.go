// SPDX-License-Identifier: GPL-3.0-or-later

package dpi

import "github.com/bassosimone/conduit"

// NetworkAdapter is the network-facing end of the pipeline.
//
// It lets uplink data into the graph and delivers everything else to the
// Deliver callback, which may be nil.
type NetworkAdapter struct {
	Deliver func(env *Envelope)
}

var _ conduit.Adapter[Message] = &NetworkAdapter{}

// Accept implements [conduit.Adapter].
func (a *NetworkAdapter) Accept(hop *Hop, env *Envelope) conduit.NextSide {
	msg := env.Payload()
	msg.Visit("NetworkAdapter")
	if msg.Uplink && env.Phase() == conduit.PhaseInformationChunk && hop.Node() == hop.Entry() {
		return conduit.SideA
	}
	if a.Deliver != nil {
		a.Deliver(env)
	}
	return conduit.SideDone
}

// ApplicationAdapter is the application-facing end of the pipeline.
//
// It lets downlink data into the graph and delivers everything else to the
// Deliver callback, which may be nil.
type ApplicationAdapter struct {
	Deliver func(env *Envelope)
}

var _ conduit.Adapter[Message] = &ApplicationAdapter{}

// Accept implements [conduit.Adapter].
func (a *ApplicationAdapter) Accept(hop *Hop, env *Envelope) conduit.NextSide {
	msg := env.Payload()
	msg.Visit("ApplicationAdapter")
	if !msg.Uplink && env.Phase() == conduit.PhaseInformationChunk && hop.Node() == hop.Entry() {
		return conduit.SideA
	}
	if a.Deliver != nil {
		a.Deliver(env)
	}
	return conduit.SideDone
}
