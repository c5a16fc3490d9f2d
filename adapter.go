// SPDX-License-Identifier: GPL-3.0-or-later

package conduit

// Adapter is the terminal capability at either end of a pipeline.
//
// Accept returns [SideA] to move the message into the graph, or [SideDone]
// when the message leaves the engine (delivered to the external world).
// Adapters never rephase messages. Any other side is treated as done.
type Adapter[T any] interface {
	Accept(hop *Hop[T], env *Envelope[T]) NextSide
}

func (n *Node[T]) acceptAdapter(hop *Hop[T], env *Envelope[T]) (*Node[T], *Envelope[T], error) {
	if n.adapter.Accept(hop, env) != SideA {
		return nil, nil, nil
	}
	next, err := n.edge(SideA)
	return next, env, err
}
