// SPDX-License-Identifier: GPL-3.0-or-later

package conduit

// AdapterFunc wraps a function as an [Adapter] implementation.
//
// Use this to create ad-hoc adapters from closures, typically for tests or
// for the ends of a pipeline that only forward or collect messages.
type AdapterFunc[T any] func(hop *Hop[T], env *Envelope[T]) NextSide

// Accept implements [Adapter].
func (f AdapterFunc[T]) Accept(hop *Hop[T], env *Envelope[T]) NextSide {
	return f(hop, env)
}

// ProtocolFunc wraps a function as a [Protocol] implementation.
type ProtocolFunc[T any] func(hop *Hop[T], env *Envelope[T]) (NextSide, *Envelope[T])

// Accept implements [Protocol].
func (f ProtocolFunc[T]) Accept(hop *Hop[T], env *Envelope[T]) (NextSide, *Envelope[T]) {
	return f(hop, env)
}

// FactoryFunc wraps a function as a [Factory] implementation.
type FactoryFunc[T any] func(hop *Hop[T], env *Envelope[T], a, b *Node[T]) *Node[T]

// Accept implements [Factory].
func (f FactoryFunc[T]) Accept(hop *Hop[T], env *Envelope[T], a, b *Node[T]) *Node[T] {
	return f(hop, env, a, b)
}
