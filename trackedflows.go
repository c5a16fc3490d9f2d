// SPDX-License-Identifier: GPL-3.0-or-later

package conduit

import (
	"log/slog"

	"github.com/bassosimone/conduit/tcpstate"
)

type trackedRoute[T any] struct {
	child   *Node[T]
	machine *tcpstate.Machine
}

type pendingFlow[K comparable] struct {
	key     K
	machine *tcpstate.Machine
}

// TrackedFlowTable is a routing table that also runs a [*tcpstate.Machine]
// per flow.
//
// Embed a [*TrackedFlowTable] into a [Mux] behavior and call Track from
// Accept for the messages that should be routed by flow.
//
// Construct using [NewTrackedFlowTable].
type TrackedFlowTable[K comparable, T any] struct {
	// OnEstablished is called with the payload of the message completing the
	// handshake of a flow. It may be nil.
	OnEstablished func(payload *T)

	eventOf func(payload *T) tcpstate.Event
	keyOf   func(payload *T) K
	pending *pendingFlow[K]
	routes  map[K]*trackedRoute[T]
}

// NewTrackedFlowTable returns a new empty [*TrackedFlowTable].
//
// The keyOf argument extracts the flow key from a payload.
//
// The eventOf argument extracts the state machine event from a payload.
func NewTrackedFlowTable[K comparable, T any](
	keyOf func(payload *T) K, eventOf func(payload *T) tcpstate.Event) *TrackedFlowTable[K, T] {
	return &TrackedFlowTable[K, T]{
		OnEstablished: nil,
		eventOf:       eventOf,
		keyOf:         keyOf,
		pending:       nil,
		routes:        make(map[K]*trackedRoute[T]),
	}
}

// Track updates the state of the flow of env and decides where it goes.
//
// The state is updated before deciding. With a route, a flow that has just
// returned to Closed yields a Release toward B0, anything else is routed to
// the child. Without a route, a Closed flow is dropped and any other state
// yields a Setup toward B0. The machine of a flow without a route is kept
// in a pending slot and adopted by the Insert that follows for the same key.
func (t *TrackedFlowTable[K, T]) Track(hop *Hop[T], env *Envelope[T]) (NextSide, *Envelope[T]) {
	key := t.keyOf(env.payload)
	route, found := t.routes[key]
	var machine *tcpstate.Machine
	if found {
		machine = route.machine
	} else {
		machine = t.stash(key)
	}

	prev := machine.Transition(t.eventOf(env.payload))
	cur := machine.Current()
	if prev != cur {
		hop.Logger().Debug(
			"flowTransition",
			slog.Any("flowKey", key),
			slog.String("from", prev.String()),
			slog.String("graphID", hop.graph.id),
			slog.Uint64("nodeID", hop.node.id),
			slog.String("to", cur.String()),
		)
	}
	established := (prev == tcpstate.SynSent || prev == tcpstate.SynReceived) && cur == tcpstate.Established

	if found {
		if cur == tcpstate.Closed && prev != tcpstate.Closed {
			return SideB0, hop.MakeReleaseMessage(env)
		}
		if established {
			t.markEstablished(env)
		}
		return SideB, nil
	}

	if cur == tcpstate.Closed {
		return SideDone, nil
	}
	if established {
		t.markEstablished(env)
	}
	return SideB0, hop.MakeSetupMessage(env)
}

func (t *TrackedFlowTable[K, T]) stash(key K) *tcpstate.Machine {
	if t.pending == nil || t.pending.key != key {
		t.pending = &pendingFlow[K]{key: key, machine: tcpstate.NewMachine()}
	}
	return t.pending.machine
}

func (t *TrackedFlowTable[K, T]) markEstablished(env *Envelope[T]) {
	if t.OnEstablished != nil {
		t.OnEstablished(env.payload)
	}
}

// KeyOf returns the flow key of the payload wrapped by env.
func (t *TrackedFlowTable[K, T]) KeyOf(env *Envelope[T]) K {
	return t.keyOf(env.payload)
}

// State returns the state of the flow stored under key.
func (t *TrackedFlowTable[K, T]) State(key K) (tcpstate.State, bool) {
	route, found := t.routes[key]
	if !found {
		return tcpstate.Closed, false
	}
	return route.machine.Current(), true
}

// Lookup returns the child stored under key.
func (t *TrackedFlowTable[K, T]) Lookup(key K) (*Node[T], bool) {
	route, found := t.routes[key]
	if !found {
		return nil, false
	}
	return route.child, true
}

// Machine returns the state machine of the flow stored under key.
//
// The machine belongs to the table: callers may share it with the child
// as long as they stop using it once the entry is erased.
func (t *TrackedFlowTable[K, T]) Machine(key K) (*tcpstate.Machine, bool) {
	route, found := t.routes[key]
	if !found {
		return nil, false
	}
	return route.machine, true
}

// Find implements [Mux].
func (t *TrackedFlowTable[K, T]) Find(env *Envelope[T]) (*Node[T], bool) {
	route, found := t.routes[t.keyOf(env.payload)]
	if !found {
		return nil, false
	}
	return route.child, true
}

// Insert implements [Mux].
//
// The new entry adopts the pending machine when its key matches, otherwise
// it starts from a fresh Closed machine.
func (t *TrackedFlowTable[K, T]) Insert(key any, child *Node[T]) (*Node[T], error) {
	k, ok := key.(K)
	if !ok {
		return nil, ErrKeyType
	}
	if child == nil {
		return nil, ErrNoRoute
	}
	if _, found := t.routes[k]; found {
		return nil, ErrFlowExists
	}
	machine := tcpstate.NewMachine()
	if t.pending != nil && t.pending.key == k {
		machine = t.pending.machine
		t.pending = nil
	}
	t.routes[k] = &trackedRoute[T]{child: child, machine: machine}
	return child, nil
}

// Erase implements [Mux]. The flow machine is discarded with the entry.
func (t *TrackedFlowTable[K, T]) Erase(key any) (*Node[T], error) {
	k, ok := key.(K)
	if !ok {
		return nil, ErrKeyType
	}
	route, found := t.routes[k]
	if !found {
		return nil, ErrNoRoute
	}
	delete(t.routes, k)
	return route.child, nil
}

// Create implements [Mux] by synthesizing a Setup over the same payload.
func (t *TrackedFlowTable[K, T]) Create(hop *Hop[T], env *Envelope[T]) *Envelope[T] {
	return hop.MakeSetupMessage(env)
}

// Len returns the number of routes.
func (t *TrackedFlowTable[K, T]) Len() int {
	return len(t.routes)
}
