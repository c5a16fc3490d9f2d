// SPDX-License-Identifier: GPL-3.0-or-later

package conduit

// FlowTable is a flat routing table mapping flow keys to child nodes.
//
// Embed a [*FlowTable] into a [Mux] behavior to inherit Find, Insert, Erase
// and Create; the behavior only needs to implement Accept.
//
// Construct using [NewFlowTable].
type FlowTable[K comparable, T any] struct {
	keyOf  func(payload *T) K
	routes map[K]*Node[T]
}

// NewFlowTable returns a new empty [*FlowTable].
//
// The keyOf argument extracts the flow key from a payload.
func NewFlowTable[K comparable, T any](keyOf func(payload *T) K) *FlowTable[K, T] {
	return &FlowTable[K, T]{
		keyOf:  keyOf,
		routes: make(map[K]*Node[T]),
	}
}

// KeyOf returns the flow key of the payload wrapped by env.
func (t *FlowTable[K, T]) KeyOf(env *Envelope[T]) K {
	return t.keyOf(env.payload)
}

// Find implements [Mux].
func (t *FlowTable[K, T]) Find(env *Envelope[T]) (*Node[T], bool) {
	child, found := t.routes[t.keyOf(env.payload)]
	return child, found
}

// Lookup returns the child stored under key.
func (t *FlowTable[K, T]) Lookup(key K) (*Node[T], bool) {
	child, found := t.routes[key]
	return child, found
}

// Insert implements [Mux].
func (t *FlowTable[K, T]) Insert(key any, child *Node[T]) (*Node[T], error) {
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
	t.routes[k] = child
	return child, nil
}

// Erase implements [Mux].
func (t *FlowTable[K, T]) Erase(key any) (*Node[T], error) {
	k, ok := key.(K)
	if !ok {
		return nil, ErrKeyType
	}
	child, found := t.routes[k]
	if !found {
		return nil, ErrNoRoute
	}
	delete(t.routes, k)
	return child, nil
}

// Create implements [Mux] by synthesizing a Setup over the same payload.
func (t *FlowTable[K, T]) Create(hop *Hop[T], env *Envelope[T]) *Envelope[T] {
	return hop.MakeSetupMessage(env)
}

// Len returns the number of routes.
func (t *FlowTable[K, T]) Len() int {
	return len(t.routes)
}
