// SPDX-License-Identifier: GPL-3.0-or-later

package dpi

import (
	"context"
	"log/slog"
	"net/netip"
	"testing"
	"time"

	"github.com/bassosimone/conduit"
	"github.com/bassosimone/conduit/packet"
	"github.com/bassosimone/dnscodec"
	"github.com/bassosimone/slogstub"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

var (
	client = netip.MustParseAddrPort("10.0.0.1:40000")
	server = netip.MustParseAddrPort("10.0.0.2:80")
	dnsSrv = netip.MustParseAddrPort("10.0.0.53:53")
)

// newCapturingLogger returns a logger that captures all log records into the
// returned slice.
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

func recordsNamed(records []slog.Record, msg string) []slog.Record {
	var out []slog.Record
	for _, r := range records {
		if r.Message == msg {
			out = append(out, r)
		}
	}
	return out
}

// delivery is what an adapter handed to the host. Synthesized envelopes do
// not outlive the traversal, so the fields are copied out.
type delivery struct {
	id          int
	phase       conduit.Phase
	application string
	established bool
}

// fixture is a pipeline that records its deliveries.
type fixture struct {
	*Pipeline
	nextID    int
	toApp     []delivery
	toNetwork []delivery
}

func newFixture(t *testing.T, logger conduit.SLogger, script string) *fixture {
	f := &fixture{}
	record := func(into *[]delivery) func(env *Envelope) {
		return func(env *Envelope) {
			msg := env.Payload()
			*into = append(*into, delivery{
				id:          msg.ID,
				phase:       env.Phase(),
				application: msg.Application,
				established: msg.Established,
			})
		}
	}
	p, err := NewPipeline(conduit.NewConfig(), logger, &PipelineConfig{
		LowerScript:   script,
		ToApplication: record(&f.toApp),
		ToNetwork:     record(&f.toNetwork),
	})
	require.NoError(t, err)
	f.Pipeline = p
	return f
}

// send injects a message and returns it, so that the caller can inspect
// its trace and annotations.
func (f *fixture) send(uplink bool, pkt *packet.Packet, timeout bool) *Message {
	f.nextID++
	msg := NewMessage(f.nextID, pkt, uplink, time.Unix(1700000000, 0))
	msg.Timeout = timeout
	f.Inject(msg)
	return msg
}

// tcp returns a TCP packet between client and server. Uplink packets travel
// from client to server.
func tcp(uplink bool, flags uint8, payload string) *packet.Packet {
	src, dst := server, client
	if uplink {
		src, dst = client, server
	}
	return &packet.Packet{
		Version:  4,
		Src:      src.Addr(),
		Dst:      dst.Addr(),
		Protocol: packet.ProtocolTCP,
		SrcPort:  src.Port(),
		DstPort:  dst.Port(),
		TCPFlags: flags,
		Payload:  []byte(payload),
	}
}

// udp returns a UDP packet between client and the DNS server.
func udp(uplink bool, payload []byte) *packet.Packet {
	src, dst := dnsSrv, client
	if uplink {
		src, dst = client, dnsSrv
	}
	return &packet.Packet{
		Version:  4,
		Src:      src.Addr(),
		Dst:      dst.Addr(),
		Protocol: packet.ProtocolUDP,
		SrcPort:  src.Port(),
		DstPort:  dst.Port(),
		Payload:  payload,
	}
}

func dnsQuery(t *testing.T, name string) *dns.Msg {
	query, err := dnscodec.NewQuery(name, dns.TypeA).NewMsg()
	require.NoError(t, err)
	return query
}

func pack(t *testing.T, msg *dns.Msg) []byte {
	raw, err := msg.Pack()
	require.NoError(t, err)
	return raw
}
