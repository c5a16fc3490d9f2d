// SPDX-License-Identifier: GPL-3.0-or-later

package conduit

import "github.com/bassosimone/runtimex"

// traversal is the state of one entry call to [*Node.Accept].
//
// Envelopes synthesized during the traversal are acquired from the graph
// pool and all released together when the entry call returns.
type traversal[T any] struct {
	entry     *Node[T]
	envelopes []*Envelope[T]
	hop       Hop[T]
	hops      int
}

// Hop is what a behavior sees of the engine while accepting a message.
//
// A Hop is only valid during the behavior call that received it and must
// not be retained.
type Hop[T any] struct {
	graph *Graph[T]
	node  *Node[T]
	tr    *traversal[T]
}

// Graph returns the graph owning the current node.
//
// Factories use it to construct and release nodes.
func (h *Hop[T]) Graph() *Graph[T] {
	return h.graph
}

// Node returns the node currently accepting the message.
func (h *Hop[T]) Node() *Node[T] {
	return h.node
}

// Entry returns the node on which the host called [*Node.Accept].
//
// Adapters use it to tell messages entering the graph from messages
// leaving it.
func (h *Hop[T]) Entry() *Node[T] {
	return h.tr.entry
}

// Logger returns the graph logger.
func (h *Hop[T]) Logger() SLogger {
	return h.graph.logger
}

// MakeSetupMessage returns a [PhaseSetup] envelope over the payload of env
// whose origin is the current node.
//
// The envelope stays valid until the entry call returns, regardless of how
// many other envelopes are synthesized in the meantime.
func (h *Hop[T]) MakeSetupMessage(env *Envelope[T]) *Envelope[T] {
	return h.synthesize(env, PhaseSetup)
}

// MakeReleaseMessage is like [*Hop.MakeSetupMessage] for [PhaseRelease].
func (h *Hop[T]) MakeReleaseMessage(env *Envelope[T]) *Envelope[T] {
	return h.synthesize(env, PhaseRelease)
}

// MakeAlertingMessage is like [*Hop.MakeSetupMessage] for [PhaseAlerting].
func (h *Hop[T]) MakeAlertingMessage(env *Envelope[T]) *Envelope[T] {
	return h.synthesize(env, PhaseAlerting)
}

func (h *Hop[T]) synthesize(env *Envelope[T], phase Phase) *Envelope[T] {
	out := runtimex.PanicOnError1(h.graph.envelopes.Acquire())
	out.payload = env.payload
	out.phase = phase
	out.origin = h.node
	h.tr.envelopes = append(h.tr.envelopes, out)
	return out
}
