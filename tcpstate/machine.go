// SPDX-License-Identifier: GPL-3.0-or-later

// Package tcpstate implements a simplified TCP connection state machine.
//
// The machine observes one side of a flow through [Event] values read off
// individual segments and walks the classic TCP states. It is used by
// flow-tracking Muxes to tell apart new, established and closing flows.
//
// The transition rules are evaluated in a fixed priority order and the
// first matching rule wins. As a consequence, a FIN in Established always
// leads to FinWait1 (CloseWait is unreachable from Established) and FIN+ACK
// in FinWait1 leads to FinWait2.
package tcpstate

import "slices"

// State is a TCP connection state.
type State uint8

const (
	Closed State = iota
	Listen
	SynSent
	SynReceived
	Established
	FinWait1
	FinWait2
	TimeWait
	Closing
	CloseWait
	LastAck
)

// AllStates lists every [State] in declaration order.
var AllStates = []State{
	Closed, Listen, SynSent, SynReceived, Established, FinWait1,
	FinWait2, TimeWait, Closing, CloseWait, LastAck,
}

// String returns the state name.
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Listen:
		return "listen"
	case SynSent:
		return "synSent"
	case SynReceived:
		return "synReceived"
	case Established:
		return "established"
	case FinWait1:
		return "finWait1"
	case FinWait2:
		return "finWait2"
	case TimeWait:
		return "timeWait"
	case Closing:
		return "closing"
	case CloseWait:
		return "closeWait"
	case LastAck:
		return "lastAck"
	default:
		return "unknown"
	}
}

// Event contains the flags read off a single message.
//
// Timeout is synthetic: the machine performs no timekeeping and relies on
// the host raising it.
type Event struct {
	ACK     bool
	SYN     bool
	FIN     bool
	Timeout bool
	RST     bool
}

// TCP header flag bits understood by [EventFromFlags].
const (
	FlagFIN = 1 << 0
	FlagSYN = 1 << 1
	FlagRST = 1 << 2
	FlagPSH = 1 << 3
	FlagACK = 1 << 4
)

// EventFromFlags builds an [Event] from the TCP header flags byte.
func EventFromFlags(flags uint8, timeout bool) Event {
	return Event{
		ACK:     flags&FlagACK != 0,
		SYN:     flags&FlagSYN != 0,
		FIN:     flags&FlagFIN != 0,
		Timeout: timeout,
		RST:     flags&FlagRST != 0,
	}
}

type rule struct {
	from  []State
	match func(s State, e Event) bool
	to    State
}

// rules are checked in order; the first rule whose from set contains the
// current state and whose predicate matches wins.
var rules = []rule{
	{
		from: []State{Listen, SynSent, LastAck, TimeWait},
		match: func(s State, e Event) bool {
			return ((s == SynSent || s == TimeWait) && e.Timeout) || (s == LastAck && e.ACK)
		},
		to: Closed,
	},
	{
		from:  []State{Closed, SynReceived},
		match: func(s State, e Event) bool { return e.RST },
		to:    Listen,
	},
	{
		from:  []State{Listen, Closed},
		match: func(s State, e Event) bool { return e.SYN },
		to:    SynSent,
	},
	{
		from:  []State{Listen, SynSent},
		match: func(s State, e Event) bool { return e.SYN && e.ACK },
		to:    SynReceived,
	},
	{
		from:  []State{SynSent, SynReceived},
		match: func(s State, e Event) bool { return e.ACK },
		to:    Established,
	},
	{
		from:  []State{SynReceived, Established},
		match: func(s State, e Event) bool { return e.FIN },
		to:    FinWait1,
	},
	{
		from:  []State{FinWait1},
		match: func(s State, e Event) bool { return e.ACK },
		to:    FinWait2,
	},
	{
		from: []State{FinWait1, FinWait2, Closing},
		match: func(s State, e Event) bool {
			return (s == FinWait1 && e.FIN && e.ACK) || (s == FinWait2 && e.FIN) || (s == Closing && e.ACK)
		},
		to: TimeWait,
	},
	{
		from:  []State{FinWait1},
		match: func(s State, e Event) bool { return e.FIN },
		to:    Closing,
	},
	{
		from:  []State{Established},
		match: func(s State, e Event) bool { return e.FIN },
		to:    CloseWait,
	},
	{
		from:  []State{CloseWait},
		match: func(s State, e Event) bool { return e.FIN },
		to:    LastAck,
	},
}

// Next returns the state following s on e without mutating anything.
func Next(s State, e Event) State {
	for _, r := range rules {
		if slices.Contains(r.from, s) && r.match(s, e) {
			return r.to
		}
	}
	return s
}

// Machine tracks the state of one flow.
//
// The zero value is a machine in the [Closed] state.
type Machine struct {
	current State
}

// NewMachine returns a new [*Machine] in the [Closed] state.
func NewMachine() *Machine {
	return &Machine{}
}

// Current returns the current state.
func (m *Machine) Current() State {
	return m.current
}

// Reset moves the machine back to [Closed].
func (m *Machine) Reset() {
	m.current = Closed
}

// Transition applies e and returns the state before the transition.
func (m *Machine) Transition(e Event) State {
	prev := m.current
	m.current = Next(prev, e)
	return prev
}
