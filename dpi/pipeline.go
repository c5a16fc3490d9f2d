// SPDX-License-Identifier: GPL-3.0-or-later

package dpi

import (
	"github.com/bassosimone/conduit"
	"github.com/bassosimone/runtimex"
)

// PipelineConfig contains the [*Pipeline] options.
type PipelineConfig struct {
	// LowerScript, when not empty, replaces the lower
	// [*TrackedConnectionsMux] with a [*ScriptedMux] running this script.
	LowerScript string

	// ToApplication receives what leaves the pipeline at the application
	// end. It may be nil.
	ToApplication func(env *Envelope)

	// ToNetwork receives what leaves the pipeline at the network end. It
	// may be nil.
	ToNetwork func(env *Envelope)
}

// flowCounter is implemented by the routing tables.
type flowCounter interface {
	Len() int
}

// Pipeline is the connection tracking pipeline:
//
//	NetworkAdapter - IPProtocol - lower Mux - ConnectionFactory - upper Mux - ApplicationAdapter
//
// with per-connection stages created between the two Muxes at runtime.
//
// Construct using [NewPipeline].
type Pipeline struct {
	// Application is the application-facing adapter.
	Application *Node

	// Factory is the connection factory.
	Factory *Node

	// Graph owns the pipeline nodes.
	Graph *Graph

	// IP is the network layer stage.
	IP *Node

	// Lower is the Mux below the connections.
	Lower *Node

	// Network is the network-facing adapter.
	Network *Node

	// Upper is the Mux above the connections.
	Upper *Node

	lowerTable flowCounter
	upperTable flowCounter
}

// NewPipeline builds and wires a new [*Pipeline].
//
// The cfg and logger arguments configure the underlying [*Graph].
func NewPipeline(cfg *conduit.Config, logger conduit.SLogger, pcfg *PipelineConfig) (*Pipeline, error) {
	runtimex.Assert(pcfg != nil)
	g := conduit.NewGraph[Message](cfg, logger)

	var (
		lowerMux   conduit.Mux[Message]
		lowerTable flowCounter
	)
	if pcfg.LowerScript != "" {
		scripted, err := NewScriptedMux(pcfg.LowerScript)
		if err != nil {
			return nil, err
		}
		lowerMux, lowerTable = scripted, scripted
	} else {
		tracked := NewTrackedConnectionsMux()
		lowerMux, lowerTable = tracked, tracked
	}
	upperMux := NewConnectionsMux(Upper)

	p := &Pipeline{
		Application: g.NewAdapter(&ApplicationAdapter{Deliver: pcfg.ToApplication}),
		Factory:     g.NewFactory(ConnectionFactory{}),
		Graph:       g,
		IP:          g.NewProtocol(IPProtocol{}),
		Lower:       g.NewMux(lowerMux),
		Network:     g.NewAdapter(&NetworkAdapter{Deliver: pcfg.ToNetwork}),
		Upper:       g.NewMux(upperMux),
		lowerTable:  lowerTable,
		upperTable:  upperMux,
	}

	conduit.Chain(p.Network, p.IP, p.Lower, p.Factory)
	p.Factory.SetSideB(p.Upper)
	p.Upper.SetSideB(p.Factory)
	p.Upper.SetSideA(p.Application)
	p.Application.SetSideA(p.Upper)
	return p, nil
}

// Inject delivers msg to the adapter matching its direction and returns
// once the message has fully drained through the graph.
func (p *Pipeline) Inject(msg *Message) {
	entry := p.Application
	if msg.Uplink {
		entry = p.Network
	}
	entry.Accept(conduit.MakeMessage(msg))
}

// Flows returns the number of flows known to the lower and upper Muxes.
func (p *Pipeline) Flows() (lower, upper int) {
	return p.lowerTable.Len(), p.upperTable.Len()
}
