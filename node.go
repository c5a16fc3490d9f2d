// SPDX-License-Identifier: GPL-3.0-or-later

package conduit

import "log/slog"

// Kind is the tag of the node union.
type Kind uint8

const (
	// KindNone marks a node without behavior (released or moved-from).
	KindNone Kind = iota

	// KindAdapter marks a node wrapping an [Adapter].
	KindAdapter

	// KindProtocol marks a node wrapping a [Protocol].
	KindProtocol

	// KindMux marks a node wrapping a [Mux].
	KindMux

	// KindFactory marks a node wrapping a [Factory].
	KindFactory
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindAdapter:
		return "adapter"
	case KindProtocol:
		return "protocol"
	case KindMux:
		return "mux"
	case KindFactory:
		return "factory"
	default:
		return "none"
	}
}

// Releaser is optionally implemented by behaviors that hold resources.
//
// [*Graph.Release] calls Release before returning the node to the pool.
type Releaser interface {
	Release()
}

// Node is a pooled graph element wrapping exactly one behavior kind.
//
// Node identity is its address. Edges are unowned: whoever wires the
// graph (the host, or a [Factory] at runtime) owns its spanning structure.
//
// Construct using [*Graph.NewAdapter], [*Graph.NewProtocol], [*Graph.NewMux]
// or [*Graph.NewFactory].
type Node[T any] struct {
	graph *Graph[T]
	id    uint64
	kind  Kind

	// a is side A; b is side B (side B0 for a Mux).
	a *Node[T]
	b *Node[T]

	// exactly one of these is set, according to kind.
	adapter  Adapter[T]
	protocol Protocol[T]
	mux      Mux[T]
	factory  Factory[T]
}

// ID returns the node identifier, unique within its graph.
func (n *Node[T]) ID() uint64 {
	return n.id
}

// Kind returns the node kind.
func (n *Node[T]) Kind() Kind {
	return n.kind
}

// SideA returns the A edge or nil.
func (n *Node[T]) SideA() *Node[T] {
	return n.a
}

// SideB returns the B edge (B0 for a Mux) or nil.
func (n *Node[T]) SideB() *Node[T] {
	return n.b
}

// Behavior returns the wrapped behavior value, or nil for [KindNone].
func (n *Node[T]) Behavior() any {
	switch n.kind {
	case KindAdapter:
		return n.adapter
	case KindProtocol:
		return n.protocol
	case KindMux:
		return n.mux
	case KindFactory:
		return n.factory
	default:
		return nil
	}
}

// SetSideA sets the A edge.
func (n *Node[T]) SetSideA(a *Node[T]) {
	n.a = a
}

// SetSideB sets the B edge. For a Mux this is the default B0 edge. An
// Adapter has no B edge and ignores the call.
func (n *Node[T]) SetSideB(b *Node[T]) {
	switch n.kind {
	case KindAdapter, KindNone:
		// nothing
	default:
		n.b = b
	}
}

// InsertInSideB attaches child to the routing table of a Mux under key.
//
// It returns child on success and nil when the key already exists, the key
// has the wrong type, or n is not a Mux.
func (n *Node[T]) InsertInSideB(key any, child *Node[T]) *Node[T] {
	if n.kind != KindMux {
		n.logNotMux("muxInsert", key)
		return nil
	}
	g := n.graph
	inserted, err := n.mux.Insert(key, child)
	if err != nil {
		g.logger.Warn(
			"muxInsertConflict",
			slog.Any("err", err),
			slog.String("errClass", g.errClassifier.Classify(err)),
			slog.Any("flowKey", key),
			slog.String("graphID", g.id),
			slog.Uint64("nodeID", n.id),
		)
		return nil
	}
	g.metrics.FlowInserted()
	g.logger.Debug(
		"muxInsert",
		slog.Uint64("childID", child.id),
		slog.Any("flowKey", key),
		slog.String("graphID", g.id),
		slog.Uint64("nodeID", n.id),
	)
	return inserted
}

// EraseFromSideB detaches the child stored under key from the routing table
// of a Mux and returns it, or returns nil when absent or n is not a Mux.
func (n *Node[T]) EraseFromSideB(key any) *Node[T] {
	if n.kind != KindMux {
		n.logNotMux("muxErase", key)
		return nil
	}
	g := n.graph
	child, err := n.mux.Erase(key)
	if err != nil {
		g.logger.Debug(
			"muxErase",
			slog.Any("err", err),
			slog.String("errClass", g.errClassifier.Classify(err)),
			slog.Any("flowKey", key),
			slog.String("graphID", g.id),
			slog.Uint64("nodeID", n.id),
		)
		return nil
	}
	g.metrics.FlowErased()
	g.logger.Debug(
		"muxErase",
		slog.Uint64("childID", child.id),
		slog.Any("flowKey", key),
		slog.String("graphID", g.id),
		slog.Uint64("nodeID", n.id),
	)
	return child
}

func (n *Node[T]) logNotMux(event string, key any) {
	if n.graph == nil {
		return
	}
	n.graph.logger.Debug(
		event,
		slog.Any("err", ErrNoRoute),
		slog.Any("flowKey", key),
		slog.String("graphID", n.graph.id),
		slog.String("kind", n.kind.String()),
		slog.Uint64("nodeID", n.id),
	)
}

// Accept delivers env to n and follows next-hop decisions until a
// behavior stops the traversal.
//
// Traversal is synchronous and drains completely before Accept returns,
// including any Setup or Release rephasing on the way. Anomalies never
// surface to the caller: they are logged and the message is dropped.
//
// Accepting on a released node is a no-op.
func (n *Node[T]) Accept(env *Envelope[T]) {
	if n == nil || env == nil || n.graph == nil {
		return
	}
	g := n.graph
	tr := g.beginTraversal()
	defer g.endTraversal(tr)
	tr.entry = n
	node := n
	for node != nil && env != nil {
		if node.kind == KindNone {
			g.drop(tr, node, env, ErrReleasedNode)
			return
		}
		if tr.hops >= g.maxHops {
			g.drop(tr, node, env, ErrHopLimit)
			return
		}
		tr.hops++
		g.metrics.NodeVisited(node.kind)
		tr.hop.node = node
		next, nextEnv, err := node.dispatch(&tr.hop, env)
		if err != nil {
			g.drop(tr, node, env, err)
			return
		}
		node, env = next, nextEnv
	}
}

// dispatch is the match over the node union.
func (n *Node[T]) dispatch(hop *Hop[T], env *Envelope[T]) (*Node[T], *Envelope[T], error) {
	n.graph.logger.Debug(
		"nodeAccept",
		slog.String("graphID", n.graph.id),
		slog.String("kind", n.kind.String()),
		slog.Uint64("nodeID", n.id),
		slog.String("phase", env.phase.String()),
	)
	switch n.kind {
	case KindAdapter:
		return n.acceptAdapter(hop, env)
	case KindProtocol:
		return n.acceptProtocol(hop, env)
	case KindMux:
		return n.acceptMux(hop, env)
	case KindFactory:
		return n.acceptFactory(hop, env)
	default:
		return nil, nil, ErrReleasedNode
	}
}

// edge maps a side to the corresponding edge, reporting [ErrNoRoute] when
// the side is a real edge that has not been wired.
func (n *Node[T]) edge(side NextSide) (*Node[T], error) {
	var next *Node[T]
	switch side {
	case SideDone:
		return nil, nil
	case SideA:
		next = n.a
	case SideB, SideB0:
		next = n.b
	}
	if next == nil {
		return nil, ErrNoRoute
	}
	return next, nil
}
