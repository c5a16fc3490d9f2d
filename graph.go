// SPDX-License-Identifier: GPL-3.0-or-later

package conduit

import (
	"errors"
	"log/slog"
	"time"

	"github.com/bassosimone/runtimex"
)

// GraphStats is a snapshot of the pools owned by a [*Graph].
type GraphStats struct {
	Envelopes PoolStats
	Nodes     PoolStats
}

// Graph owns the pools backing a set of wired nodes.
//
// All the nodes of a pipeline must come from the same graph. The graph and
// its nodes (including the routing tables of its Muxes) must be used by a
// single goroutine at a time; hosts with several workers create one graph
// per worker.
//
// Construct using [NewGraph].
type Graph[T any] struct {
	envelopes     *Pool[Envelope[T]]
	errClassifier ErrClassifier
	id            string
	lastID        uint64
	logger        SLogger
	maxHops       int
	metrics       Metrics
	nodes         *Pool[Node[T]]
	timeNow       func() time.Time
	traversals    *Pool[traversal[T]]
}

// NewGraph returns a new [*Graph] for payloads of type T.
//
// The cfg argument contains the common configuration.
//
// The logger argument is the [SLogger] to use for structured logging.
func NewGraph[T any](cfg *Config, logger SLogger) *Graph[T] {
	runtimex.Assert(cfg != nil)
	maxHops := cfg.MaxHops
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}
	return &Graph[T]{
		envelopes:     NewPool[Envelope[T]](0),
		errClassifier: cfg.ErrClassifier,
		id:            NewSpanID(),
		lastID:        0,
		logger:        logger,
		maxHops:       maxHops,
		metrics:       cfg.Metrics,
		nodes:         NewPool[Node[T]](cfg.NodePrealloc),
		timeNow:       cfg.TimeNow,
		traversals:    NewPool[traversal[T]](1),
	}
}

// ID returns the graph identifier attached to log events as graphID.
func (g *Graph[T]) ID() string {
	return g.id
}

// Stats returns the current [GraphStats].
func (g *Graph[T]) Stats() GraphStats {
	return GraphStats{
		Envelopes: g.envelopes.Stats(),
		Nodes:     g.nodes.Stats(),
	}
}

// NewAdapter returns a pooled node wrapping behavior.
func (g *Graph[T]) NewAdapter(behavior Adapter[T]) *Node[T] {
	runtimex.Assert(behavior != nil)
	n := g.newNode(KindAdapter)
	n.adapter = behavior
	return n
}

// NewProtocol returns a pooled node wrapping behavior.
func (g *Graph[T]) NewProtocol(behavior Protocol[T]) *Node[T] {
	runtimex.Assert(behavior != nil)
	n := g.newNode(KindProtocol)
	n.protocol = behavior
	return n
}

// NewMux returns a pooled node wrapping behavior.
func (g *Graph[T]) NewMux(behavior Mux[T]) *Node[T] {
	runtimex.Assert(behavior != nil)
	n := g.newNode(KindMux)
	n.mux = behavior
	return n
}

// NewFactory returns a pooled node wrapping behavior.
func (g *Graph[T]) NewFactory(behavior Factory[T]) *Node[T] {
	runtimex.Assert(behavior != nil)
	n := g.newNode(KindFactory)
	n.factory = behavior
	return n
}

func (g *Graph[T]) newNode(kind Kind) *Node[T] {
	n := runtimex.PanicOnError1(g.nodes.Acquire())
	g.lastID++
	n.graph = g
	n.id = g.lastID
	n.kind = kind
	g.logger.Info(
		"nodeCreate",
		slog.String("graphID", g.id),
		slog.String("kind", kind.String()),
		slog.Uint64("nodeID", n.id),
	)
	return n
}

// Release destroys n and returns it to the node pool.
//
// If the behavior implements [Releaser] it is released first. Edges pointing
// to n elsewhere in the graph are not touched: they become dangling, and a
// message reaching n afterwards is dropped with [ErrReleasedNode].
//
// Releasing nil, a node of another graph, or an already released node
// returns false.
func (g *Graph[T]) Release(n *Node[T]) bool {
	if n == nil || n.graph != g {
		return false
	}
	if r, ok := n.Behavior().(Releaser); ok {
		r.Release()
	}
	g.logger.Info(
		"nodeRelease",
		slog.String("graphID", g.id),
		slog.String("kind", n.kind.String()),
		slog.Uint64("nodeID", n.id),
	)
	return g.nodes.Release(n)
}

// Move transfers the behavior and edges of src into a fresh pooled node.
//
// The src node keeps its memory but becomes [KindNone]; it must still be
// released with [*Graph.Release]. Edges elsewhere that point to src are
// not redirected.
func (g *Graph[T]) Move(src *Node[T]) *Node[T] {
	runtimex.Assert(src != nil && src.graph == g)
	dst := g.newNode(src.kind)
	dst.a, dst.b = src.a, src.b
	dst.adapter, dst.protocol = src.adapter, src.protocol
	dst.mux, dst.factory = src.mux, src.factory
	src.kind = KindNone
	src.a, src.b = nil, nil
	src.adapter, src.protocol, src.mux, src.factory = nil, nil, nil, nil
	return dst
}

func (g *Graph[T]) beginTraversal() *traversal[T] {
	tr := runtimex.PanicOnError1(g.traversals.Acquire())
	tr.hop.graph = g
	tr.hop.tr = tr
	g.logger.Debug(
		"traversalStart",
		slog.String("graphID", g.id),
		slog.Time("t", g.timeNow()),
	)
	return tr
}

func (g *Graph[T]) endTraversal(tr *traversal[T]) {
	for _, env := range tr.envelopes {
		g.envelopes.Release(env)
	}
	g.metrics.TraversalDone(tr.hops)
	g.logger.Debug(
		"traversalDone",
		slog.String("graphID", g.id),
		slog.Int("hops", tr.hops),
		slog.Int("synthesized", len(tr.envelopes)),
		slog.Time("t", g.timeNow()),
	)
	g.traversals.Release(tr)
}

func (g *Graph[T]) drop(tr *traversal[T], n *Node[T], env *Envelope[T], err error) {
	errClass := g.errClassifier.Classify(err)
	g.metrics.MessageDropped(errClass)
	level := slog.LevelWarn
	if errors.Is(err, ErrNoRoute) {
		level = slog.LevelDebug
	}
	args := []any{
		slog.Any("err", err),
		slog.String("errClass", errClass),
		slog.String("graphID", g.id),
		slog.Int("hops", tr.hops),
		slog.Uint64("nodeID", n.id),
		slog.String("phase", env.phase.String()),
	}
	if level == slog.LevelDebug {
		g.logger.Debug("messageDropped", args...)
		return
	}
	g.logger.Warn("messageDropped", args...)
}
