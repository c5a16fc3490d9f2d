// SPDX-License-Identifier: GPL-3.0-or-later

package dpi

import (
	"log/slog"
	"testing"

	"github.com/bassosimone/conduit"
	"github.com/bassosimone/conduit/tcpstate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewScriptedMux(t *testing.T) {
	cases := []struct {
		name    string
		source  string
		wantErr bool
	}{
		{"default script", DefaultLowerScript, false},
		{"constant directive", `"done"`, false},
		{"syntax error", `"a" +`, true},
		{"unknown variable", `nope ? "a" : "b"`, true},
		{"non string result", `1 + 1`, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mux, err := NewScriptedMux(tc.source)
			if tc.wantErr {
				require.Error(t, err)
				assert.Nil(t, mux)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 0, mux.Len())
		})
	}
}

func TestParseSide(t *testing.T) {
	cases := []struct {
		directive string
		side      conduit.NextSide
		ok        bool
	}{
		{"a", conduit.SideA, true},
		{"b", conduit.SideB, true},
		{"b0", conduit.SideB0, true},
		{"done", conduit.SideDone, true},
		{"B", conduit.SideDone, false},
		{"", conduit.SideDone, false},
	}
	for _, tc := range cases {
		side, ok := parseSide(tc.directive)
		assert.Equal(t, tc.side, side, tc.directive)
		assert.Equal(t, tc.ok, ok, tc.directive)
	}
}

func TestScriptedPipeline(t *testing.T) {
	f := newFixture(t, conduit.DefaultSLogger(), DefaultLowerScript)

	syn := f.send(true, tcp(true, tcpstate.FlagSYN, ""), false)
	assert.Equal(t, []string{
		"NetworkAdapter",
		"IPProtocol",
		"ConnectionsScriptedMux",
		"ConnectionFactory: Setup",
		"TCPProtocol",
		"HTTPProtocol",
		"ConnectionsMux",
		"ApplicationAdapter",
	}, syn.Trace)

	synAck := f.send(false, tcp(false, tcpstate.FlagSYN|tcpstate.FlagACK, ""), false)
	assert.Equal(t, []string{
		"ApplicationAdapter",
		"ConnectionsMux",
		"HTTPProtocol",
		"TCPProtocol",
		"ConnectionsScriptedMux",
		"IPProtocol",
		"NetworkAdapter",
	}, synAck.Trace)

	lower, upper := f.Flows()
	assert.Equal(t, 1, lower)
	assert.Equal(t, 1, upper)
}

func TestScriptedPipelineRelease(t *testing.T) {
	f := newFixture(t, conduit.DefaultSLogger(), DefaultLowerScript)

	query := dnsQuery(t, "example.com")
	f.send(true, udp(true, pack(t, query)), false)
	timeout := f.send(true, udp(true, nil), true)

	assert.Equal(t, []string{
		"NetworkAdapter",
		"IPProtocol",
		"ConnectionsScriptedMux",
		"UDPProtocol",
		"ConnectionsScriptedMux",
		"ConnectionFactory: Release",
		"ConnectionsMux",
		"ApplicationAdapter",
	}, timeout.Trace)
	lower, upper := f.Flows()
	assert.Equal(t, 0, lower)
	assert.Equal(t, 0, upper)
}

func TestScriptedPipelineFiltering(t *testing.T) {
	script := `dstPort == 53 ? "done" : (phase == "release" ? (found ? "b0" : "a") : (uplink ? "b" : "a"))`
	f := newFixture(t, conduit.DefaultSLogger(), script)

	blocked := f.send(true, udp(true, pack(t, dnsQuery(t, "example.com"))), false)
	assert.Equal(t, []string{"NetworkAdapter", "IPProtocol", "ConnectionsScriptedMux"}, blocked.Trace)
	assert.Empty(t, f.toApp)

	allowed := f.send(true, tcp(true, tcpstate.FlagSYN, ""), false)
	assert.Contains(t, allowed.Trace, "TCPProtocol")
	lower, _ := f.Flows()
	assert.Equal(t, 1, lower)
}

func TestScriptedMuxUnknownDirective(t *testing.T) {
	logger, records := newCapturingLogger()
	f := newFixture(t, logger, `uplink ? "sideways" : "a"`)

	msg := f.send(true, tcp(true, tcpstate.FlagSYN, ""), false)

	assert.Equal(t, []string{"NetworkAdapter", "IPProtocol", "ConnectionsScriptedMux"}, msg.Trace)
	errors := recordsNamed(*records, "scriptError")
	require.Len(t, errors, 1)
	assert.Equal(t, slog.LevelWarn, errors[0].Level)
	lower, _ := f.Flows()
	assert.Equal(t, 0, lower)
}

func TestNewPipelineBadScript(t *testing.T) {
	p, err := NewPipeline(conduit.NewConfig(), conduit.DefaultSLogger(), &PipelineConfig{
		LowerScript: `"a" +`,
	})
	require.Error(t, err)
	assert.Nil(t, p)
}

func TestScriptedMuxWithoutRoute(t *testing.T) {
	f := newFixture(t, conduit.DefaultSLogger(), DefaultLowerScript)

	timeout := f.send(true, udp(true, nil), true)
	assert.Equal(t, []string{"NetworkAdapter", "IPProtocol", "ConnectionsScriptedMux"}, timeout.Trace)

	ack := f.send(true, tcp(true, tcpstate.FlagACK, ""), false)
	assert.Equal(t, []string{"NetworkAdapter", "IPProtocol", "ConnectionsScriptedMux"}, ack.Trace)

	lower, upper := f.Flows()
	assert.Equal(t, 0, lower)
	assert.Equal(t, 0, upper)
}
