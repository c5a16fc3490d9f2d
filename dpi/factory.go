// SPDX-License-Identifier: GPL-3.0-or-later

package dpi

import (
	"log/slog"

	"github.com/bassosimone/conduit"
	"github.com/bassosimone/conduit/packet"
	"github.com/bassosimone/conduit/tcpstate"
)

// ConnectionFactory builds and tears down per-connection sub-pipelines.
//
// Its A edge is the lower Mux and its B edge the upper Mux. On Setup it
// builds TCP+HTTP stages for TCP flows and UDP+DNS stages for UDP flows,
// and registers them under the flow key in both Muxes. On Release it
// unregisters and releases them. When the lower Mux tracks TCP connections,
// the new [*TCPProtocol] shares the machine of its connection.
type ConnectionFactory struct{}

var _ conduit.Factory[Message] = ConnectionFactory{}

// machineOwner is implemented by Muxes keeping a state machine per TCP
// connection.
type machineOwner interface {
	Machine(key packet.FlowKey) (*tcpstate.Machine, bool)
}

// Accept implements [conduit.Factory].
func (f ConnectionFactory) Accept(hop *Hop, env *Envelope, a, b *Node) *Node {
	switch env.Phase() {
	case conduit.PhaseSetup:
		return f.setup(hop, env, a, b)
	case conduit.PhaseRelease:
		return f.release(hop, env, a, b)
	default:
		hop.Logger().Warn(
			"factoryUnexpectedPhase",
			slog.Any("err", conduit.ErrUnexpectedPhase),
			slog.String("errClass", conduit.EPHASE),
			slog.String("graphID", hop.Graph().ID()),
			slog.Uint64("nodeID", hop.Node().ID()),
			slog.String("phase", env.Phase().String()),
		)
		return nil
	}
}

func (f ConnectionFactory) setup(hop *Hop, env *Envelope, a, b *Node) *Node {
	msg := env.Payload()
	msg.Visit("ConnectionFactory: Setup")
	g := hop.Graph()

	var first, second *Node
	switch {
	case msg.Packet.IsTCP():
		first, second = g.NewProtocol(NewTCPProtocol()), g.NewProtocol(HTTPProtocol{})
	case msg.Packet.IsUDP():
		first, second = g.NewProtocol(UDPProtocol{}), g.NewProtocol(DNSProtocol{})
	default:
		hop.Logger().Warn(
			"factoryUnsupported",
			slog.String("flowKey", msg.FlowKey().String()),
			slog.String("graphID", g.ID()),
			slog.Int("protocol", int(msg.Packet.Protocol)),
		)
		return nil
	}
	conduit.Chain(first, second)
	first.SetSideA(a)
	second.SetSideB(b)

	key := msg.FlowKey()
	if a.InsertInSideB(key, first) == nil {
		g.Release(first)
		g.Release(second)
		return nil
	}
	if b.InsertInSideB(key, second) == nil {
		a.EraseFromSideB(key)
		g.Release(first)
		g.Release(second)
		return nil
	}

	if proto, ok := first.Behavior().(*TCPProtocol); ok {
		if owner, ok := a.Behavior().(machineOwner); ok {
			if machine, found := owner.Machine(key); found {
				proto.share(machine)
			}
		}
	}

	hop.Logger().Info(
		"factorySetup",
		slog.String("flowKey", key.String()),
		slog.Uint64("firstID", first.ID()),
		slog.String("graphID", g.ID()),
		slog.Uint64("secondID", second.ID()),
	)
	if msg.Uplink {
		return first
	}
	return second
}

func (f ConnectionFactory) release(hop *Hop, env *Envelope, a, b *Node) *Node {
	msg := env.Payload()
	msg.Visit("ConnectionFactory: Release")
	g := hop.Graph()
	key := msg.FlowKey()
	first := a.EraseFromSideB(key)
	second := b.EraseFromSideB(key)
	g.Release(first)
	g.Release(second)
	hop.Logger().Info(
		"factoryRelease",
		slog.String("flowKey", key.String()),
		slog.String("graphID", g.ID()),
	)
	return b
}
