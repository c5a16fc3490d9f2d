// SPDX-License-Identifier: GPL-3.0-or-later

package dpi

import (
	"time"

	"github.com/bassosimone/conduit"
	"github.com/bassosimone/conduit/packet"
	"github.com/bassosimone/conduit/tcpstate"
)

// Aliases for the engine types instantiated over [Message].
type (
	Envelope = conduit.Envelope[Message]
	Graph    = conduit.Graph[Message]
	Hop      = conduit.Hop[Message]
	Node     = conduit.Node[Message]
)

// Message is the payload flowing through the pipeline.
//
// The host owns the message for the whole entry call. Behaviors annotate it
// in place: every visited stage appends its label to Trace.
type Message struct {
	// ID is a host-assigned identifier.
	ID int

	// Packet contains the decoded packet headers.
	Packet *packet.Packet

	// Uplink is true for traffic from the network toward the application.
	Uplink bool

	// Timestamp is the capture time.
	Timestamp time.Time

	// Timeout marks a synthetic message raised by a host timer.
	Timeout bool

	// Established is set on the message completing a TCP handshake.
	Established bool

	// Application is a one-line summary set by application protocols.
	Application string

	// Trace lists the labels of the visited stages.
	Trace []string
}

// NewMessage returns a new [*Message] for pkt.
func NewMessage(id int, pkt *packet.Packet, uplink bool, ts time.Time) *Message {
	return &Message{
		ID:        id,
		Packet:    pkt,
		Uplink:    uplink,
		Timestamp: ts,
	}
}

// Visit appends label to the trace.
func (m *Message) Visit(label string) {
	m.Trace = append(m.Trace, label)
}

// FlowKey returns the flow key of the message, which is the same for both
// directions of a flow.
func (m *Message) FlowKey() packet.FlowKey {
	return m.Packet.FlowKey()
}

// Event returns the TCP state machine event carried by the message.
func (m *Message) Event() tcpstate.Event {
	return tcpstate.EventFromFlags(m.Packet.TCPFlags, m.Timeout)
}

// keyOf is the flow key extractor used by the routing tables.
func keyOf(m *Message) packet.FlowKey {
	return m.FlowKey()
}

// dataSide returns the side toward which data flows: B when going up to
// the application, A when going down to the network.
func dataSide(m *Message) conduit.NextSide {
	if m.Uplink {
		return conduit.SideB
	}
	return conduit.SideA
}
