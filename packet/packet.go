// SPDX-License-Identifier: GPL-3.0-or-later

// Package packet decodes the IP and transport headers of raw packets.
//
// Only the fields needed to route packets by flow are decoded: addresses,
// transport protocol, ports and TCP flags. Checksums are neither verified
// nor computed.
package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"

	"github.com/miekg/dns"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// Transport protocol numbers.
const (
	ProtocolTCP = 6
	ProtocolUDP = 17
)

// Errors returned by [Decode] and [*Packet.DNS].
var (
	ErrTruncated = errors.New("packet: truncated")
	ErrVersion   = errors.New("packet: unsupported IP version")
	ErrNotDNS    = errors.New("packet: not a DNS packet")
)

const (
	tcpHeaderLen = 20
	udpHeaderLen = 8
	dnsPort      = 53
)

// Packet contains the decoded headers of an IP packet.
type Packet struct {
	// Version is 4 or 6.
	Version int

	// Src and Dst are the IP addresses.
	Src netip.Addr
	Dst netip.Addr

	// Protocol is the transport protocol number.
	Protocol uint8

	// SrcPort and DstPort are zero unless Protocol is TCP or UDP.
	SrcPort uint16
	DstPort uint16

	// TCPFlags is the TCP flags byte (zero for UDP).
	TCPFlags uint8

	// Payload is the transport payload. It aliases the decoded buffer.
	Payload []byte
}

// Decode parses raw as an IPv4 or IPv6 packet.
func Decode(raw []byte) (*Packet, error) {
	if len(raw) < 1 {
		return nil, ErrTruncated
	}
	switch raw[0] >> 4 {
	case ipv4.Version:
		return decodeIPv4(raw)
	case ipv6.Version:
		return decodeIPv6(raw)
	default:
		return nil, fmt.Errorf("%w: %d", ErrVersion, raw[0]>>4)
	}
}

func decodeIPv4(raw []byte) (*Packet, error) {
	hdr, err := ipv4.ParseHeader(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTruncated, err)
	}
	src, _ := netip.AddrFromSlice(hdr.Src.To4())
	dst, _ := netip.AddrFromSlice(hdr.Dst.To4())
	pkt := &Packet{
		Version:  ipv4.Version,
		Src:      src,
		Dst:      dst,
		Protocol: uint8(hdr.Protocol),
	}
	if err := pkt.decodeTransport(raw[hdr.Len:]); err != nil {
		return nil, err
	}
	return pkt, nil
}

func decodeIPv6(raw []byte) (*Packet, error) {
	hdr, err := ipv6.ParseHeader(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTruncated, err)
	}
	src, _ := netip.AddrFromSlice(hdr.Src.To16())
	dst, _ := netip.AddrFromSlice(hdr.Dst.To16())
	pkt := &Packet{
		Version:  ipv6.Version,
		Src:      src,
		Dst:      dst,
		Protocol: uint8(hdr.NextHeader),
	}
	if err := pkt.decodeTransport(raw[ipv6.HeaderLen:]); err != nil {
		return nil, err
	}
	return pkt, nil
}

func (p *Packet) decodeTransport(b []byte) error {
	switch p.Protocol {
	case ProtocolTCP:
		if len(b) < tcpHeaderLen {
			return ErrTruncated
		}
		p.SrcPort = binary.BigEndian.Uint16(b[0:2])
		p.DstPort = binary.BigEndian.Uint16(b[2:4])
		p.TCPFlags = b[13]
		offset := int(b[12]>>4) << 2
		if offset < tcpHeaderLen || len(b) < offset {
			return ErrTruncated
		}
		p.Payload = b[offset:]
	case ProtocolUDP:
		if len(b) < udpHeaderLen {
			return ErrTruncated
		}
		p.SrcPort = binary.BigEndian.Uint16(b[0:2])
		p.DstPort = binary.BigEndian.Uint16(b[2:4])
		p.Payload = b[udpHeaderLen:]
	default:
		p.Payload = b
	}
	return nil
}

// Encode serializes the packet with minimal IP and transport headers.
//
// It is the inverse of [Decode] for the fields [Packet] carries and is
// meant for synthesizing traffic in tests and replays.
func (p *Packet) Encode() ([]byte, error) {
	transport := p.encodeTransport()
	switch p.Version {
	case ipv4.Version:
		hdr := &ipv4.Header{
			Version:  ipv4.Version,
			Len:      ipv4.HeaderLen,
			TotalLen: ipv4.HeaderLen + len(transport),
			TTL:      64,
			Protocol: int(p.Protocol),
			Src:      p.Src.AsSlice(),
			Dst:      p.Dst.AsSlice(),
		}
		raw, err := hdr.Marshal()
		if err != nil {
			return nil, err
		}
		return append(raw, transport...), nil
	case ipv6.Version:
		raw := make([]byte, ipv6.HeaderLen, ipv6.HeaderLen+len(transport))
		raw[0] = ipv6.Version << 4
		binary.BigEndian.PutUint16(raw[4:6], uint16(len(transport)))
		raw[6] = p.Protocol
		raw[7] = 64
		src, dst := p.Src.As16(), p.Dst.As16()
		copy(raw[8:24], src[:])
		copy(raw[24:40], dst[:])
		return append(raw, transport...), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrVersion, p.Version)
	}
}

func (p *Packet) encodeTransport() []byte {
	switch p.Protocol {
	case ProtocolTCP:
		b := make([]byte, tcpHeaderLen, tcpHeaderLen+len(p.Payload))
		binary.BigEndian.PutUint16(b[0:2], p.SrcPort)
		binary.BigEndian.PutUint16(b[2:4], p.DstPort)
		b[12] = (tcpHeaderLen >> 2) << 4
		b[13] = p.TCPFlags
		return append(b, p.Payload...)
	case ProtocolUDP:
		b := make([]byte, udpHeaderLen, udpHeaderLen+len(p.Payload))
		binary.BigEndian.PutUint16(b[0:2], p.SrcPort)
		binary.BigEndian.PutUint16(b[2:4], p.DstPort)
		binary.BigEndian.PutUint16(b[4:6], uint16(udpHeaderLen+len(p.Payload)))
		return append(b, p.Payload...)
	default:
		return append([]byte{}, p.Payload...)
	}
}

// IsTCP returns whether the packet carries TCP.
func (p *Packet) IsTCP() bool {
	return p.Protocol == ProtocolTCP
}

// IsUDP returns whether the packet carries UDP.
func (p *Packet) IsUDP() bool {
	return p.Protocol == ProtocolUDP
}

// DNS parses the payload of a UDP packet to or from port 53.
func (p *Packet) DNS() (*dns.Msg, error) {
	if !p.IsUDP() || (p.SrcPort != dnsPort && p.DstPort != dnsPort) {
		return nil, ErrNotDNS
	}
	msg := new(dns.Msg)
	if err := msg.Unpack(p.Payload); err != nil {
		return nil, err
	}
	return msg, nil
}

// FlowKey returns the canonical flow key of the packet.
func (p *Packet) FlowKey() FlowKey {
	return NewFlowKey(
		p.Protocol,
		netip.AddrPortFrom(p.Src, p.SrcPort),
		netip.AddrPortFrom(p.Dst, p.DstPort),
	)
}
