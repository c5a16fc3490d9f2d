// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/bassosimone/conduit/dpi"
	"github.com/bassosimone/conduit/packet"
	"github.com/bassosimone/conduit/tcpstate"
	"github.com/bassosimone/dnscodec"
	"github.com/miekg/dns"
	"gopkg.in/yaml.v3"
)

// Scenario is the YAML description of a replay.
type Scenario struct {
	// Name is a human readable name.
	Name string `yaml:"name"`

	// Script, when set, drives the lower Mux.
	Script string `yaml:"script"`

	// Packets are replayed in order.
	Packets []PacketSpec `yaml:"packets"`
}

// PacketSpec describes a single packet of a [Scenario].
type PacketSpec struct {
	// ID identifies the packet in the output. Defaults to its position.
	ID int `yaml:"id"`

	// Direction is "up" (network to application) or "down".
	Direction string `yaml:"direction"`

	// Proto is "tcp" or "udp".
	Proto string `yaml:"proto"`

	// Src and Dst are address:port pairs.
	Src string `yaml:"src"`
	Dst string `yaml:"dst"`

	// Flags lists TCP flags (syn, ack, fin, rst, psh).
	Flags []string `yaml:"flags"`

	// Payload is the transport payload.
	Payload string `yaml:"payload"`

	// DNSQuery, when set, replaces the payload with a DNS A query.
	DNSQuery string `yaml:"dnsQuery"`

	// Timeout marks a synthetic timer message.
	Timeout bool `yaml:"timeout"`

	// Offset is the capture time relative to the scenario start.
	Offset time.Duration `yaml:"offset"`
}

var errScenario = errors.New("invalid scenario")

// LoadScenario reads and parses the scenario at path.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseScenario(data)
}

// ParseScenario parses a YAML scenario.
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	if len(sc.Packets) <= 0 {
		return nil, fmt.Errorf("%w: no packets", errScenario)
	}
	for idx := range sc.Packets {
		if sc.Packets[idx].ID == 0 {
			sc.Packets[idx].ID = idx + 1
		}
	}
	return &sc, nil
}

// Messages converts the packets into pipeline messages.
//
// Each packet is encoded to wire format and decoded back, as a capture
// would, so malformed specs fail here rather than in the pipeline.
func (sc *Scenario) Messages(start time.Time) ([]*dpi.Message, error) {
	var messages []*dpi.Message
	for _, ps := range sc.Packets {
		msg, err := ps.message(start)
		if err != nil {
			return nil, fmt.Errorf("packet %d: %w", ps.ID, err)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (ps *PacketSpec) message(start time.Time) (*dpi.Message, error) {
	var uplink bool
	switch ps.Direction {
	case "up":
		uplink = true
	case "down":
		uplink = false
	default:
		return nil, fmt.Errorf("%w: direction %q", errScenario, ps.Direction)
	}

	src, err := netip.ParseAddrPort(ps.Src)
	if err != nil {
		return nil, err
	}
	dst, err := netip.ParseAddrPort(ps.Dst)
	if err != nil {
		return nil, err
	}
	if src.Addr().Is4() != dst.Addr().Is4() {
		return nil, fmt.Errorf("%w: mixed address families", errScenario)
	}
	version := 6
	if src.Addr().Is4() {
		version = 4
	}

	pkt := &packet.Packet{
		Version: version,
		Src:     src.Addr(),
		Dst:     dst.Addr(),
		SrcPort: src.Port(),
		DstPort: dst.Port(),
		Payload: []byte(ps.Payload),
	}
	switch strings.ToLower(ps.Proto) {
	case "tcp":
		pkt.Protocol = packet.ProtocolTCP
		flags, err := parseFlags(ps.Flags)
		if err != nil {
			return nil, err
		}
		pkt.TCPFlags = flags
	case "udp":
		pkt.Protocol = packet.ProtocolUDP
	default:
		return nil, fmt.Errorf("%w: proto %q", errScenario, ps.Proto)
	}

	if ps.DNSQuery != "" {
		query, err := dnscodec.NewQuery(ps.DNSQuery, dns.TypeA).NewMsg()
		if err != nil {
			return nil, err
		}
		rawQuery, err := query.Pack()
		if err != nil {
			return nil, err
		}
		pkt.Payload = rawQuery
	}

	raw, err := pkt.Encode()
	if err != nil {
		return nil, err
	}
	decoded, err := packet.Decode(raw)
	if err != nil {
		return nil, err
	}

	msg := dpi.NewMessage(ps.ID, decoded, uplink, start.Add(ps.Offset))
	msg.Timeout = ps.Timeout
	return msg, nil
}

func parseFlags(names []string) (uint8, error) {
	var flags uint8
	for _, name := range names {
		switch strings.ToLower(name) {
		case "fin":
			flags |= tcpstate.FlagFIN
		case "syn":
			flags |= tcpstate.FlagSYN
		case "rst":
			flags |= tcpstate.FlagRST
		case "psh":
			flags |= tcpstate.FlagPSH
		case "ack":
			flags |= tcpstate.FlagACK
		default:
			return 0, fmt.Errorf("%w: flag %q", errScenario, name)
		}
	}
	return flags, nil
}
