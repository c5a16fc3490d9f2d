// SPDX-License-Identifier: GPL-3.0-or-later

// Package conduit implements a pooled, synchronous message routing engine
// for protocol processing pipelines.
//
// # Core Abstraction
//
// A pipeline is a graph of [*Node] values. Each node wraps exactly one of
// four behaviors:
//
//   - [Adapter]: a terminal at either end of the pipeline, where messages
//     enter and leave the engine
//   - [Protocol]: a one-to-one transform with an A edge and a B edge
//   - [Mux]: a fan-out routing messages to children by flow key, with a
//     default B0 edge used for flows without a route
//   - [Factory]: the only behavior allowed to build and destroy nodes while
//     messages are flowing
//
// Messages travel inside an [*Envelope] carrying one of four phases:
// [PhaseInformationChunk] for data, [PhaseSetup] and [PhaseRelease] to build
// and tear down per-flow routing, and [PhaseAlerting] for out-of-band
// notices. Behaviors synthesize Setup, Release and Alerting envelopes
// through the [*Hop] they receive.
//
// # Traversal
//
// The host calls [*Node.Accept] on an adapter and the engine follows the
// next-hop decisions of each behavior until one of them stops. Traversal is
// iterative and bounded by [Config.MaxHops]. Anomalies (missing edges,
// released nodes, hop limit) never surface to the caller: the message is
// dropped and a messageDropped event is logged with an errClass label.
//
// When a Mux routes by flow and finds no child, it sends a Setup toward B0
// instead of the data message. The [Factory] behind B0 builds the
// per-flow stages, registers them with [*Node.InsertInSideB] and continues
// processing with the Setup, so data never reaches a child that does not
// exist yet.
//
// # Memory
//
// Nodes and synthesized envelopes come from typed [*Pool] arenas owned by
// the [*Graph]. Synthesized envelopes are all released when the entry
// Accept call returns; nodes are released by [*Graph.Release]. A graph and
// its nodes must be driven by one goroutine at a time.
//
// # Flow Tables
//
// [*FlowTable] and [*TrackedFlowTable] implement the routing part of a Mux
// and are meant to be embedded. The latter also runs a [*tcpstate.Machine]
// per flow and turns handshakes and teardowns into Setup and Release
// messages.
//
// # Observability
//
// Every operation emits structured log events through the [SLogger] passed
// to [NewGraph] (compatible with [*slog.Logger]). Events carry a graphID
// generated by [NewSpanID] and a nodeID, so the events of concurrent graphs
// can be told apart. Errors are classified by [Config.ErrClassifier] and
// counters are exported through [Config.Metrics] (see [NewPrometheusMetrics]).
//
// # Subpackages
//
// The dpi subpackage builds a connection tracking pipeline on top of this
// package, with TCP, UDP, HTTP and DNS stages. The packet subpackage decodes
// IPv4 and IPv6 packets and the tcpstate subpackage implements the TCP
// state machine.
package conduit
