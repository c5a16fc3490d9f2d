// SPDX-License-Identifier: GPL-3.0-or-later

package conduit

// Phase is the lifecycle phase carried by an [*Envelope].
type Phase uint8

const (
	// PhaseInformationChunk is ordinary data.
	PhaseInformationChunk Phase = iota

	// PhaseSetup requests building routing for a flow.
	PhaseSetup

	// PhaseRelease requests tearing down routing for a flow.
	PhaseRelease

	// PhaseAlerting is an out-of-band notice.
	PhaseAlerting
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseInformationChunk:
		return "informationChunk"
	case PhaseSetup:
		return "setup"
	case PhaseRelease:
		return "release"
	case PhaseAlerting:
		return "alerting"
	default:
		return "unknown"
	}
}

// NextSide is the next-hop decision of a behavior.
type NextSide uint8

const (
	// SideDone stops the traversal.
	SideDone NextSide = iota

	// SideA selects the A edge (upstream or peer).
	SideA

	// SideB selects the B edge. For a Mux, it means "route by flow".
	SideB

	// SideB0 selects the default downstream edge of a Mux.
	SideB0
)

// String returns the side name.
func (s NextSide) String() string {
	switch s {
	case SideDone:
		return "done"
	case SideA:
		return "a"
	case SideB:
		return "b"
	case SideB0:
		return "b0"
	default:
		return "unknown"
	}
}

// Envelope wraps a payload reference with its lifecycle metadata.
//
// The engine never owns, modifies or frees the payload: it belongs to the
// caller of the entry [*Node.Accept] for the whole traversal.
type Envelope[T any] struct {
	payload *T
	phase   Phase
	origin  *Node[T]
}

// MakeMessage wraps payload into a [PhaseInformationChunk] envelope.
//
// The returned envelope is owned by the caller.
func MakeMessage[T any](payload *T) *Envelope[T] {
	return &Envelope[T]{payload: payload, phase: PhaseInformationChunk}
}

// Payload returns the wrapped payload.
func (e *Envelope[T]) Payload() *T {
	return e.payload
}

// Phase returns the lifecycle phase.
func (e *Envelope[T]) Phase() Phase {
	return e.phase
}

// Origin returns the node that raised a Setup, Release or Alerting phase,
// or nil for [PhaseInformationChunk].
//
// The origin may have been released by a [Factory] by the time the envelope
// is observed; compare it by identity only.
func (e *Envelope[T]) Origin() *Node[T] {
	return e.origin
}
