// SPDX-License-Identifier: GPL-3.0-or-later

package conduit

import "log/slog"

// Factory is the only capability allowed to mutate the graph after wiring.
//
// Accept receives the factory edges a and b (typically the Muxes around the
// sub-pipelines it manages). On [PhaseSetup] it builds nodes through
// [*Hop.Graph], wires them, registers them with [*Node.InsertInSideB] and
// returns the node that continues processing the message. On [PhaseRelease]
// it unregisters them with [*Node.EraseFromSideB], releases them and
// returns the next node (typically b). A nil return ends the traversal.
//
// When an insert fails, the factory must undo what it registered and
// release what it built, then return nil.
type Factory[T any] interface {
	Accept(hop *Hop[T], env *Envelope[T], a, b *Node[T]) *Node[T]
}

func (n *Node[T]) acceptFactory(hop *Hop[T], env *Envelope[T]) (*Node[T], *Envelope[T], error) {
	g := n.graph
	g.logger.Info(
		"factoryAccept",
		slog.String("graphID", g.id),
		slog.Uint64("nodeID", n.id),
		slog.String("phase", env.phase.String()),
	)
	next := n.factory.Accept(hop, env, n.a, n.b)
	if next == nil {
		return nil, nil, nil
	}
	return next, env, nil
}
