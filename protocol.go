// SPDX-License-Identifier: GPL-3.0-or-later

package conduit

// Protocol is a one-to-one transform with two edges.
//
// Accept returns the next side ([SideA], [SideB] or [SideDone]) and the
// outgoing envelope. A nil envelope means "forward env unchanged". A
// stateful protocol may return an envelope synthesized through the [*Hop]
// (e.g., a Release when its flow state machine closes).
type Protocol[T any] interface {
	Accept(hop *Hop[T], env *Envelope[T]) (NextSide, *Envelope[T])
}

func (n *Node[T]) acceptProtocol(hop *Hop[T], env *Envelope[T]) (*Node[T], *Envelope[T], error) {
	side, out := n.protocol.Accept(hop, env)
	if out == nil {
		out = env
	}
	if side == SideB0 {
		side = SideB
	}
	next, err := n.edge(side)
	return next, out, err
}
