// SPDX-License-Identifier: GPL-3.0-or-later

package conduit

import (
	"context"
	"log/slog"

	"github.com/bassosimone/slogstub"
)

// newCapturingLogger returns a logger that captures all log records into the
// returned slice. The caller can inspect the slice after exercising the code
// under test to verify which events were emitted.
func newCapturingLogger() (*slog.Logger, *[]slog.Record) {
	var records []slog.Record
	handler := &slogstub.FuncHandler{
		EnabledFunc: func(ctx context.Context, level slog.Level) bool {
			return true
		},
		HandleFunc: func(ctx context.Context, record slog.Record) error {
			records = append(records, record)
			return nil
		},
	}
	return slog.New(handler), &records
}

// recordsNamed returns the records whose message is msg.
func recordsNamed(records []slog.Record, msg string) []slog.Record {
	var out []slog.Record
	for _, r := range records {
		if r.Message == msg {
			out = append(out, r)
		}
	}
	return out
}

// recordAttr returns the value of the attribute named key.
func recordAttr(r slog.Record, key string) (slog.Value, bool) {
	var (
		value slog.Value
		found bool
	)
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == key {
			value, found = a.Value, true
			return false
		}
		return true
	})
	return value, found
}

// forwarder returns a [Protocol] always forwarding toward B.
func forwarder[T any]() Protocol[T] {
	return ProtocolFunc[T](func(hop *Hop[T], env *Envelope[T]) (NextSide, *Envelope[T]) {
		return SideB, nil
	})
}

// testMessage is the payload used by the engine tests.
type testMessage struct {
	id     int
	uplink bool
	trace  []string
}

func (m *testMessage) visit(label string) {
	m.trace = append(m.trace, label)
}

func testMessageKey(m *testMessage) int {
	return m.id
}

func dataSide(m *testMessage) NextSide {
	if m.uplink {
		return SideB
	}
	return SideA
}

// delivery records what an adapter absorbed. Synthesized envelopes do not
// outlive the traversal, so the phase is copied out.
type delivery struct {
	id    int
	phase Phase
}

// labelAdapter lets entering data in and records everything else into
// delivered.
func labelAdapter(label string, delivered *[]delivery) Adapter[testMessage] {
	return AdapterFunc[testMessage](func(hop *Hop[testMessage], env *Envelope[testMessage]) NextSide {
		env.Payload().visit(label)
		if env.Phase() == PhaseInformationChunk && hop.Node() == hop.Entry() {
			return SideA
		}
		*delivered = append(*delivered, delivery{id: env.Payload().id, phase: env.Phase()})
		return SideDone
	})
}

// labelProtocol forwards in the data direction.
func labelProtocol(label string) Protocol[testMessage] {
	return ProtocolFunc[testMessage](func(hop *Hop[testMessage], env *Envelope[testMessage]) (NextSide, *Envelope[testMessage]) {
		env.Payload().visit(label)
		if env.Phase() == PhaseRelease {
			return SideA, nil
		}
		return dataSide(env.Payload()), nil
	})
}

// testMux routes by message id. A lower mux routes uplink traffic by flow,
// an upper mux routes downlink traffic by flow.
type testMux struct {
	*FlowTable[int, testMessage]
	upper bool
}

func newTestMux(upper bool) *testMux {
	return &testMux{
		FlowTable: NewFlowTable[int](testMessageKey),
		upper:     upper,
	}
}

func (m *testMux) Accept(hop *Hop[testMessage], env *Envelope[testMessage]) (NextSide, *Envelope[testMessage]) {
	msg := env.Payload()
	msg.visit("ConnectionsMux")
	if env.Phase() == PhaseRelease {
		if _, found := m.Find(env); found {
			return SideB0, nil
		}
		return SideA, nil
	}
	if msg.uplink != m.upper {
		return SideB, nil
	}
	return SideA, nil
}

// testFactory builds a TCP and an HTTP stage per message id.
func testFactory() Factory[testMessage] {
	return FactoryFunc[testMessage](func(hop *Hop[testMessage], env *Envelope[testMessage], a, b *Node[testMessage]) *Node[testMessage] {
		msg := env.Payload()
		g := hop.Graph()
		switch env.Phase() {
		case PhaseSetup:
			msg.visit("ConnectionFactory: Setup")
			tcp := g.NewProtocol(labelProtocol("TCPProtocol"))
			http := g.NewProtocol(labelProtocol("HTTPProtocol"))
			Chain(tcp, http)
			tcp.SetSideA(a)
			http.SetSideB(b)
			if a.InsertInSideB(msg.id, tcp) == nil {
				g.Release(tcp)
				g.Release(http)
				return nil
			}
			if b.InsertInSideB(msg.id, http) == nil {
				a.EraseFromSideB(msg.id)
				g.Release(tcp)
				g.Release(http)
				return nil
			}
			if msg.uplink {
				return tcp
			}
			return http
		case PhaseRelease:
			msg.visit("ConnectionFactory: Release")
			g.Release(a.EraseFromSideB(msg.id))
			g.Release(b.EraseFromSideB(msg.id))
			return b
		default:
			return nil
		}
	})
}

// testPipeline is the six-stage pipeline used by the traversal tests.
type testPipeline struct {
	graph       *Graph[testMessage]
	network     *Node[testMessage]
	ip          *Node[testMessage]
	lower       *Node[testMessage]
	factory     *Node[testMessage]
	upper       *Node[testMessage]
	application *Node[testMessage]
	lowerTable  *testMux
	upperTable  *testMux
	toNetwork   []delivery
	toApp       []delivery
}

func newTestPipeline(cfg *Config, logger SLogger) *testPipeline {
	p := &testPipeline{
		graph:      NewGraph[testMessage](cfg, logger),
		lowerTable: newTestMux(false),
		upperTable: newTestMux(true),
	}
	g := p.graph
	p.network = g.NewAdapter(labelAdapter("NetworkAdapter", &p.toNetwork))
	p.ip = g.NewProtocol(labelProtocol("IPProtocol"))
	p.lower = g.NewMux(p.lowerTable)
	p.factory = g.NewFactory(testFactory())
	p.upper = g.NewMux(p.upperTable)
	p.application = g.NewAdapter(labelAdapter("ApplicationAdapter", &p.toApp))

	Chain(p.network, p.ip, p.lower, p.factory)
	p.factory.SetSideB(p.upper)
	p.upper.SetSideB(p.factory)
	p.upper.SetSideA(p.application)
	p.application.SetSideA(p.upper)
	return p
}

func (p *testPipeline) inject(msg *testMessage) {
	entry := p.application
	if msg.uplink {
		entry = p.network
	}
	entry.Accept(MakeMessage(msg))
}
