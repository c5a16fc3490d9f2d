// SPDX-License-Identifier: GPL-3.0-or-later

package dpi

import (
	"fmt"
	"log/slog"
	"reflect"

	"github.com/bassosimone/conduit"
	"github.com/bassosimone/conduit/packet"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// DefaultLowerScript is a [ScriptedMux] script routing like a lower
// [*ConnectionsMux].
const DefaultLowerScript = `phase == "release" ? (found ? "b0" : "a") : (uplink ? "b" : "a")`

// ScriptedMux is a Mux whose routing directive comes from an expression.
//
// The expression sees the variables uplink, phase, protocol, srcPort,
// dstPort, flags, established and found (whether the flow has a route) and
// must evaluate to one of "a", "b", "b0" or "done". Evaluation errors and
// unknown directives drop the message. Like for [*ConnectionsMux], a "b"
// for data without a route is dropped unless the message may open a flow.
//
// Construct using [NewScriptedMux].
type ScriptedMux struct {
	*conduit.FlowTable[packet.FlowKey, Message]
	program *vm.Program
}

var _ conduit.Mux[Message] = &ScriptedMux{}

// NewScriptedMux compiles source and returns a new [*ScriptedMux].
func NewScriptedMux(source string) (*ScriptedMux, error) {
	sample := scriptEnv(&Message{Packet: &packet.Packet{}}, conduit.PhaseInformationChunk, false)
	program, err := expr.Compile(source, expr.Env(sample), expr.AsKind(reflect.String))
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", source, err)
	}
	mux := &ScriptedMux{
		FlowTable: conduit.NewFlowTable[packet.FlowKey](keyOf),
		program:   program,
	}
	return mux, nil
}

func scriptEnv(msg *Message, phase conduit.Phase, found bool) map[string]any {
	return map[string]any{
		"dstPort":     int(msg.Packet.DstPort),
		"established": msg.Established,
		"flags":       int(msg.Packet.TCPFlags),
		"found":       found,
		"phase":       phase.String(),
		"protocol":    int(msg.Packet.Protocol),
		"srcPort":     int(msg.Packet.SrcPort),
		"uplink":      msg.Uplink,
	}
}

// Accept implements [conduit.Mux].
func (m *ScriptedMux) Accept(hop *Hop, env *Envelope) (conduit.NextSide, *Envelope) {
	msg := env.Payload()
	msg.Visit("ConnectionsScriptedMux")
	_, found := m.Find(env)
	result, err := expr.Run(m.program, scriptEnv(msg, env.Phase(), found))
	if err != nil {
		m.logScriptError(hop, msg, err)
		return conduit.SideDone, nil
	}
	directive, _ := result.(string)
	side, ok := parseSide(directive)
	if !ok {
		m.logScriptError(hop, msg, fmt.Errorf("unknown directive %q", directive))
		return conduit.SideDone, nil
	}
	if side == conduit.SideB && !found && env.Phase() == conduit.PhaseInformationChunk && !opensFlow(msg) {
		return conduit.SideDone, nil
	}
	return side, nil
}

func (m *ScriptedMux) logScriptError(hop *Hop, msg *Message, err error) {
	hop.Logger().Warn(
		"scriptError",
		slog.Any("err", err),
		slog.String("flowKey", msg.FlowKey().String()),
		slog.String("graphID", hop.Graph().ID()),
		slog.Uint64("nodeID", hop.Node().ID()),
	)
}

func parseSide(directive string) (conduit.NextSide, bool) {
	switch directive {
	case "a":
		return conduit.SideA, true
	case "b":
		return conduit.SideB, true
	case "b0":
		return conduit.SideB0, true
	case "done":
		return conduit.SideDone, true
	default:
		return conduit.SideDone, false
	}
}
