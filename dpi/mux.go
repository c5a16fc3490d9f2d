// SPDX-License-Identifier: GPL-3.0-or-later

package dpi

import (
	"github.com/bassosimone/conduit"
	"github.com/bassosimone/conduit/packet"
	"github.com/bassosimone/conduit/tcpstate"
)

// Role tells whether a Mux sits below or above the per-connection stages.
type Role int

const (
	// Lower is the Mux between the network layer and the connections.
	Lower Role = iota

	// Upper is the Mux between the connections and the application.
	Upper
)

// ConnectionsMux routes messages to per-connection sub-pipelines.
//
// A lower Mux routes uplink traffic by flow and sends downlink traffic
// toward the network. An upper Mux does the opposite. Release messages for
// a known flow go to the factory on B0; Release messages for unknown flows
// continue toward A. Data without a route only creates one when it may open
// a flow: timeouts never do, and TCP segments must move a Closed connection
// out of Closed.
//
// Construct using [NewConnectionsMux].
type ConnectionsMux struct {
	*conduit.FlowTable[packet.FlowKey, Message]
	role Role
}

var _ conduit.Mux[Message] = &ConnectionsMux{}

// NewConnectionsMux returns a new [*ConnectionsMux] with an empty table.
func NewConnectionsMux(role Role) *ConnectionsMux {
	return &ConnectionsMux{
		FlowTable: conduit.NewFlowTable[packet.FlowKey](keyOf),
		role:      role,
	}
}

// Accept implements [conduit.Mux].
func (m *ConnectionsMux) Accept(hop *Hop, env *Envelope) (conduit.NextSide, *Envelope) {
	msg := env.Payload()
	msg.Visit("ConnectionsMux")
	_, found := m.Find(env)
	return muxSide(m.role, env, found), nil
}

func muxSide(role Role, env *Envelope, found bool) conduit.NextSide {
	msg := env.Payload()
	switch env.Phase() {
	case conduit.PhaseRelease:
		if found {
			return conduit.SideB0
		}
		return conduit.SideA
	case conduit.PhaseAlerting:
		if msg.Uplink == (role == Lower) && !found {
			return conduit.SideDone
		}
	}
	if msg.Uplink == (role == Lower) {
		if env.Phase() == conduit.PhaseInformationChunk && !found && !opensFlow(msg) {
			return conduit.SideDone
		}
		return conduit.SideB
	}
	return conduit.SideA
}

// opensFlow tells whether a data message without a route may create one.
//
// A timeout asks to tear a flow down, so it never does. A TCP segment only
// does when it moves a Closed connection out of Closed.
func opensFlow(msg *Message) bool {
	if msg.Timeout {
		return false
	}
	if msg.Packet == nil || !msg.Packet.IsTCP() {
		return true
	}
	return tcpstate.Next(tcpstate.Closed, msg.Event()) != tcpstate.Closed
}

// TrackedConnectionsMux is a lower Mux running a [*tcpstate.Machine] per
// TCP connection.
//
// Uplink TCP segments go through [*conduit.TrackedFlowTable.Track]: a
// segment leaving the connection Closed never creates a route, the segment
// completing the handshake is marked as Established, and the segment
// closing the connection becomes a Release for the factory. Everything
// else, UDP included, routes like a lower [*ConnectionsMux].
//
// The factory shares the machine of each connection with its
// [*TCPProtocol], which applies the downlink segments.
//
// Construct using [NewTrackedConnectionsMux].
type TrackedConnectionsMux struct {
	connections *conduit.TrackedFlowTable[packet.FlowKey, Message]
	datagrams   *conduit.FlowTable[packet.FlowKey, Message]
}

var _ conduit.Mux[Message] = &TrackedConnectionsMux{}

// NewTrackedConnectionsMux returns a new [*TrackedConnectionsMux] with
// empty tables.
func NewTrackedConnectionsMux() *TrackedConnectionsMux {
	connections := conduit.NewTrackedFlowTable[packet.FlowKey](keyOf, (*Message).Event)
	connections.OnEstablished = func(msg *Message) {
		msg.Established = true
	}
	return &TrackedConnectionsMux{
		connections: connections,
		datagrams:   conduit.NewFlowTable[packet.FlowKey](keyOf),
	}
}

// Accept implements [conduit.Mux].
func (m *TrackedConnectionsMux) Accept(hop *Hop, env *Envelope) (conduit.NextSide, *Envelope) {
	msg := env.Payload()
	msg.Visit("ConnectionsMux")
	_, found := m.Find(env)
	if env.Phase() == conduit.PhaseInformationChunk && msg.Uplink && isTCP(msg) {
		if !found && msg.Timeout {
			return conduit.SideDone, nil
		}
		return m.connections.Track(hop, env)
	}
	return muxSide(Lower, env, found), nil
}

// Find implements [conduit.Mux].
func (m *TrackedConnectionsMux) Find(env *Envelope) (*Node, bool) {
	if isTCP(env.Payload()) {
		return m.connections.Find(env)
	}
	return m.datagrams.Find(env)
}

// Insert implements [conduit.Mux].
func (m *TrackedConnectionsMux) Insert(key any, child *Node) (*Node, error) {
	if isTCPKey(key) {
		return m.connections.Insert(key, child)
	}
	return m.datagrams.Insert(key, child)
}

// Erase implements [conduit.Mux].
func (m *TrackedConnectionsMux) Erase(key any) (*Node, error) {
	if isTCPKey(key) {
		return m.connections.Erase(key)
	}
	return m.datagrams.Erase(key)
}

// Create implements [conduit.Mux].
func (m *TrackedConnectionsMux) Create(hop *Hop, env *Envelope) *Envelope {
	return m.datagrams.Create(hop, env)
}

// Lookup returns the child stored under key.
func (m *TrackedConnectionsMux) Lookup(key packet.FlowKey) (*Node, bool) {
	if key.Protocol == packet.ProtocolTCP {
		return m.connections.Lookup(key)
	}
	return m.datagrams.Lookup(key)
}

// Machine returns the state machine of the TCP connection stored under key.
func (m *TrackedConnectionsMux) Machine(key packet.FlowKey) (*tcpstate.Machine, bool) {
	return m.connections.Machine(key)
}

// Len returns the number of routes.
func (m *TrackedConnectionsMux) Len() int {
	return m.connections.Len() + m.datagrams.Len()
}

func isTCP(msg *Message) bool {
	return msg.Packet != nil && msg.Packet.IsTCP()
}

func isTCPKey(key any) bool {
	k, ok := key.(packet.FlowKey)
	return ok && k.Protocol == packet.ProtocolTCP
}
