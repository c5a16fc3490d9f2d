// SPDX-License-Identifier: GPL-3.0-or-later

package conduit

import "errors"

var (
	// ErrPoolExhausted indicates that a [*Pool] could not register a newly
	// acquired element. This is fatal and not expected in normal operation.
	ErrPoolExhausted = errors.New("conduit: pool exhausted")

	// ErrFlowExists indicates an insert on a flow key that already has a route.
	ErrFlowExists = errors.New("conduit: flow already exists")

	// ErrNoRoute indicates a missing edge or a missing routing table entry.
	ErrNoRoute = errors.New("conduit: no route")

	// ErrUnexpectedPhase indicates a message whose phase the receiving
	// behavior does not handle.
	ErrUnexpectedPhase = errors.New("conduit: unexpected message phase")

	// ErrHopLimit indicates a traversal that exceeded [Config.MaxHops].
	ErrHopLimit = errors.New("conduit: hop limit exceeded")

	// ErrReleasedNode indicates a message reaching a node that went back to the pool.
	ErrReleasedNode = errors.New("conduit: node has been released")

	// ErrKeyType indicates a flow key whose dynamic type does not match the table.
	ErrKeyType = errors.New("conduit: wrong flow key type")
)
