// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"testing"
	"time"

	"github.com/bassosimone/conduit/packet"
	"github.com/bassosimone/conduit/tcpstate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario(t *testing.T) {
	t.Run("http", func(t *testing.T) {
		sc, err := LoadScenario("testdata/http.yaml")
		require.NoError(t, err)
		assert.Equal(t, "http-connection", sc.Name)
		require.Len(t, sc.Packets, 10)
		assert.Equal(t, 1, sc.Packets[0].ID)
		assert.Equal(t, 10, sc.Packets[9].ID)
		assert.Equal(t, 2*time.Minute, sc.Packets[9].Offset)
		assert.True(t, sc.Packets[9].Timeout)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadScenario("testdata/nonexistent.yaml")
		require.Error(t, err)
	})
}

func TestParseScenario(t *testing.T) {
	t.Run("no packets", func(t *testing.T) {
		_, err := ParseScenario([]byte("name: empty\n"))
		require.ErrorIs(t, err, errScenario)
	})

	t.Run("invalid YAML", func(t *testing.T) {
		_, err := ParseScenario([]byte("packets: [\n"))
		require.Error(t, err)
	})

	t.Run("explicit IDs are kept", func(t *testing.T) {
		sc, err := ParseScenario([]byte(`
packets:
  - id: 42
    direction: up
    proto: udp
    src: 10.0.0.1:1000
    dst: 10.0.0.2:2000
`))
		require.NoError(t, err)
		assert.Equal(t, 42, sc.Packets[0].ID)
	})
}

func TestScenarioMessages(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("TCP packet", func(t *testing.T) {
		sc, err := LoadScenario("testdata/http.yaml")
		require.NoError(t, err)
		messages, err := sc.Messages(start)
		require.NoError(t, err)
		require.Len(t, messages, 10)

		first := messages[0]
		assert.True(t, first.Uplink)
		assert.Equal(t, uint8(packet.ProtocolTCP), first.Packet.Protocol)
		assert.Equal(t, uint8(tcpstate.FlagSYN), first.Packet.TCPFlags)
		assert.Equal(t, uint16(40000), first.Packet.SrcPort)
		assert.Equal(t, start, first.Timestamp)

		second := messages[1]
		assert.False(t, second.Uplink)
		assert.Equal(t, start.Add(20*time.Millisecond), second.Timestamp)

		// both directions of the connection share the flow key
		assert.Equal(t, first.FlowKey(), second.FlowKey())
	})

	t.Run("DNS packet", func(t *testing.T) {
		sc, err := LoadScenario("testdata/dns.yaml")
		require.NoError(t, err)
		messages, err := sc.Messages(start)
		require.NoError(t, err)
		msg, err := messages[0].Packet.DNS()
		require.NoError(t, err)
		assert.Equal(t, "example.com.", msg.Question[0].Name)
	})

	cases := []struct {
		name string
		packet PacketSpec
	}{
		{"bad direction", PacketSpec{Direction: "sideways", Proto: "tcp", Src: "10.0.0.1:1", Dst: "10.0.0.2:2"}},
		{"bad proto", PacketSpec{Direction: "up", Proto: "sctp", Src: "10.0.0.1:1", Dst: "10.0.0.2:2"}},
		{"bad flag", PacketSpec{Direction: "up", Proto: "tcp", Src: "10.0.0.1:1", Dst: "10.0.0.2:2", Flags: []string{"urg"}}},
		{"bad src", PacketSpec{Direction: "up", Proto: "tcp", Src: "10.0.0.1", Dst: "10.0.0.2:2"}},
		{"bad dst", PacketSpec{Direction: "up", Proto: "tcp", Src: "10.0.0.1:1", Dst: "nope"}},
		{"mixed families", PacketSpec{Direction: "up", Proto: "udp", Src: "10.0.0.1:1", Dst: "[::1]:2"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sc := &Scenario{Packets: []PacketSpec{tc.packet}}
			_, err := sc.Messages(start)
			require.Error(t, err)
		})
	}
}
