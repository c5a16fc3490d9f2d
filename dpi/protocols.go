// SPDX-License-Identifier: GPL-3.0-or-later

package dpi

import (
	"bytes"
	"log/slog"
	"strings"

	"github.com/bassosimone/conduit"
	"github.com/bassosimone/conduit/tcpstate"
	"github.com/miekg/dns"
)

// IPProtocol is the network layer stage.
//
// It forwards TCP and UDP traffic and drops everything else. Release and
// Alerting messages travel toward the network adapter.
type IPProtocol struct{}

var _ conduit.Protocol[Message] = IPProtocol{}

// Accept implements [conduit.Protocol].
func (IPProtocol) Accept(hop *Hop, env *Envelope) (conduit.NextSide, *Envelope) {
	msg := env.Payload()
	msg.Visit("IPProtocol")
	switch env.Phase() {
	case conduit.PhaseRelease, conduit.PhaseAlerting:
		return conduit.SideA, nil
	}
	if msg.Packet == nil || (!msg.Packet.IsTCP() && !msg.Packet.IsUDP()) {
		logger := hop.Logger()
		logger.Debug(
			"ipUnsupported",
			slog.String("graphID", hop.Graph().ID()),
			slog.Int("messageID", msg.ID),
			slog.Uint64("nodeID", hop.Node().ID()),
		)
		return conduit.SideDone, nil
	}
	return dataSide(msg), nil
}

// TCPProtocol is the per-connection TCP stage.
//
// It runs a [*tcpstate.Machine] over both directions of the connection. It
// emits a Release toward the lower Mux when the connection returns to
// Closed, and an Alerting in the data direction on RST.
//
// Behind a [*TrackedConnectionsMux] the machine belongs to the Mux, which
// applies the uplink segments, and the stage only applies the downlink ones.
//
// Construct using [NewTCPProtocol].
type TCPProtocol struct {
	machine *tcpstate.Machine
	shared  bool
}

var (
	_ conduit.Protocol[Message] = &TCPProtocol{}
	_ conduit.Releaser          = &TCPProtocol{}
)

// NewTCPProtocol returns a new [*TCPProtocol] in the Closed state.
func NewTCPProtocol() *TCPProtocol {
	return &TCPProtocol{machine: tcpstate.NewMachine()}
}

// State returns the connection state.
func (p *TCPProtocol) State() tcpstate.State {
	return p.machine.Current()
}

// share replaces the machine with the one the lower Mux keeps for the
// connection.
func (p *TCPProtocol) share(machine *tcpstate.Machine) {
	p.machine = machine
	p.shared = true
}

// Release implements [conduit.Releaser].
func (p *TCPProtocol) Release() {
	p.machine.Reset()
}

// Accept implements [conduit.Protocol].
func (p *TCPProtocol) Accept(hop *Hop, env *Envelope) (conduit.NextSide, *Envelope) {
	msg := env.Payload()
	msg.Visit("TCPProtocol")
	switch env.Phase() {
	case conduit.PhaseRelease, conduit.PhaseAlerting:
		return dataSide(msg), nil
	}

	event := msg.Event()
	if p.shared && msg.Uplink {
		if event.RST {
			return dataSide(msg), hop.MakeAlertingMessage(env)
		}
		return dataSide(msg), nil
	}
	prev := p.machine.Transition(event)
	cur := p.machine.Current()
	if prev != cur {
		hop.Logger().Debug(
			"flowTransition",
			slog.String("flowKey", msg.FlowKey().String()),
			slog.String("from", prev.String()),
			slog.String("graphID", hop.Graph().ID()),
			slog.Uint64("nodeID", hop.Node().ID()),
			slog.String("to", cur.String()),
		)
	}

	switch {
	case event.RST:
		return dataSide(msg), hop.MakeAlertingMessage(env)
	case cur == tcpstate.Closed && prev != tcpstate.Closed:
		return conduit.SideA, hop.MakeReleaseMessage(env)
	case (prev == tcpstate.SynSent || prev == tcpstate.SynReceived) && cur == tcpstate.Established:
		msg.Established = true
	}
	return dataSide(msg), nil
}

// UDPProtocol is the per-flow UDP stage.
//
// UDP has no teardown, so the flow is released when the host raises a
// timeout message for it.
type UDPProtocol struct{}

var _ conduit.Protocol[Message] = UDPProtocol{}

// Accept implements [conduit.Protocol].
func (UDPProtocol) Accept(hop *Hop, env *Envelope) (conduit.NextSide, *Envelope) {
	msg := env.Payload()
	msg.Visit("UDPProtocol")
	if env.Phase() == conduit.PhaseInformationChunk && msg.Timeout {
		return conduit.SideA, hop.MakeReleaseMessage(env)
	}
	return dataSide(msg), nil
}

// HTTPProtocol is the per-connection HTTP stage.
//
// It recognizes request and status lines and summarizes them into the
// Application field of the message.
type HTTPProtocol struct{}

var _ conduit.Protocol[Message] = HTTPProtocol{}

// Accept implements [conduit.Protocol].
func (HTTPProtocol) Accept(hop *Hop, env *Envelope) (conduit.NextSide, *Envelope) {
	msg := env.Payload()
	msg.Visit("HTTPProtocol")
	if msg.Packet == nil || len(msg.Packet.Payload) <= 0 {
		return dataSide(msg), nil
	}
	line, _, _ := bytes.Cut(msg.Packet.Payload, []byte("\r\n"))
	fields := strings.Fields(string(line))
	switch {
	case len(fields) >= 2 && strings.HasPrefix(fields[0], "HTTP/"):
		msg.Application = "HTTP " + fields[1]
		hop.Logger().Debug(
			"httpResponse",
			slog.String("flowKey", msg.FlowKey().String()),
			slog.String("graphID", hop.Graph().ID()),
			slog.String("httpStatus", fields[1]),
			slog.Uint64("nodeID", hop.Node().ID()),
		)
	case len(fields) == 3 && strings.HasPrefix(fields[2], "HTTP/"):
		msg.Application = fields[0] + " " + fields[1]
		hop.Logger().Debug(
			"httpRequest",
			slog.String("flowKey", msg.FlowKey().String()),
			slog.String("graphID", hop.Graph().ID()),
			slog.String("httpMethod", fields[0]),
			slog.String("httpURL", fields[1]),
			slog.Uint64("nodeID", hop.Node().ID()),
		)
	}
	return dataSide(msg), nil
}

// DNSProtocol is the per-flow DNS stage.
//
// It parses DNS queries and responses carried over UDP and summarizes the
// question into the Application field of the message.
type DNSProtocol struct{}

var _ conduit.Protocol[Message] = DNSProtocol{}

// Accept implements [conduit.Protocol].
func (DNSProtocol) Accept(hop *Hop, env *Envelope) (conduit.NextSide, *Envelope) {
	msg := env.Payload()
	msg.Visit("DNSProtocol")
	if env.Phase() == conduit.PhaseRelease || msg.Packet == nil || len(msg.Packet.Payload) <= 0 {
		return dataSide(msg), nil
	}
	dnsMsg, err := msg.Packet.DNS()
	if err != nil {
		hop.Logger().Debug(
			"dnsParseError",
			slog.Any("err", err),
			slog.String("flowKey", msg.FlowKey().String()),
			slog.String("graphID", hop.Graph().ID()),
			slog.Uint64("nodeID", hop.Node().ID()),
		)
		return dataSide(msg), nil
	}
	if len(dnsMsg.Question) > 0 {
		q := dnsMsg.Question[0]
		msg.Application = "DNS " + dns.TypeToString[q.Qtype] + " " + q.Name
	}
	event := "dnsQuery"
	if dnsMsg.Response {
		event = "dnsResponse"
	}
	hop.Logger().Info(
		event,
		slog.String("dnsRcode", dns.RcodeToString[dnsMsg.Rcode]),
		slog.Any("dnsRawMessage", msg.Packet.Payload),
		slog.String("flowKey", msg.FlowKey().String()),
		slog.String("graphID", hop.Graph().ID()),
		slog.Uint64("nodeID", hop.Node().ID()),
		slog.Time("t", msg.Timestamp),
	)
	return dataSide(msg), nil
}
