// SPDX-License-Identifier: GPL-3.0-or-later

package conduit

import "log/slog"

// Mux is the fan-out capability routing messages by flow key.
//
// Accept returns a coarse directive: [SideA], [SideB0] (the default edge,
// usually a [Factory]), [SideDone], or [SideB] meaning "route by flow". A
// non-nil envelope replaces env for the rest of the hop.
//
// When routing by flow, the engine calls Find. On a hit the message goes to
// the stored child unchanged. On a miss the engine calls Create to obtain a
// Setup envelope (origin = this Mux) and routes it toward B0: the Setup, not
// the data message, travels first, so data never reaches a child that does
// not exist yet. A nil Setup ends the traversal.
//
// Insert must refuse existing keys with [ErrFlowExists] and foreign key
// types with [ErrKeyType]. Erase must report absent keys with [ErrNoRoute].
//
// [*FlowTable] and [*TrackedFlowTable] implement everything but Accept and
// are meant to be embedded.
type Mux[T any] interface {
	Accept(hop *Hop[T], env *Envelope[T]) (NextSide, *Envelope[T])
	Find(env *Envelope[T]) (*Node[T], bool)
	Insert(key any, child *Node[T]) (*Node[T], error)
	Erase(key any) (*Node[T], error)
	Create(hop *Hop[T], env *Envelope[T]) *Envelope[T]
}

func (n *Node[T]) acceptMux(hop *Hop[T], env *Envelope[T]) (*Node[T], *Envelope[T], error) {
	side, out := n.mux.Accept(hop, env)
	if out == nil {
		out = env
	}
	switch side {
	case SideDone:
		return nil, nil, nil
	case SideA, SideB0:
		next, err := n.edge(side)
		return next, out, err
	}
	return n.routeByFlow(hop, out)
}

func (n *Node[T]) routeByFlow(hop *Hop[T], env *Envelope[T]) (*Node[T], *Envelope[T], error) {
	g := n.graph
	if child, found := n.mux.Find(env); found {
		g.logger.Debug(
			"muxRoute",
			slog.Uint64("childID", child.id),
			slog.String("graphID", g.id),
			slog.Uint64("nodeID", n.id),
		)
		return child, env, nil
	}
	if n.b == nil {
		return nil, nil, ErrNoRoute
	}
	setup := n.mux.Create(hop, env)
	if setup == nil {
		return nil, nil, nil
	}
	g.logger.Info(
		"muxSetup",
		slog.String("graphID", g.id),
		slog.Uint64("nodeID", n.id),
		slog.String("phase", setup.phase.String()),
	)
	return n.b, setup, nil
}
