// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package flow defines the match/action model shared by the controller and the datapath.
package flow

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Port is a switch port number. Values above PortMax are reserved.
type Port uint32

// Reserved ports, OpenFlow 1.3 numbering.
const (
	PortMax        Port = 0xffffff00
	PortInPort     Port = 0xfffffff8
	PortFlood      Port = 0xfffffffb
	PortAll        Port = 0xfffffffc
	PortController Port = 0xfffffffd
	PortLocal      Port = 0xfffffffe
	PortAny        Port = 0xffffffff
)

// Reserved reports whether p is a logical port rather than a physical one.
func (p Port) Reserved() bool { return p > PortMax }

// Physical reports whether p can appear as an ingress port.
func (p Port) Physical() bool { return p != 0 && !p.Reserved() }

func (p Port) String() string {
	switch p {
	case PortInPort:
		return "IN_PORT"
	case PortFlood:
		return "FLOOD"
	case PortAll:
		return "ALL"
	case PortController:
		return "CONTROLLER"
	case PortLocal:
		return "LOCAL"
	case PortAny:
		return "ANY"
	}
	return strconv.FormatUint(uint64(p), 10)
}

// MarshalJSON encodes reserved ports by name and physical ports as numbers.
func (p Port) MarshalJSON() ([]byte, error) {
	if p.Reserved() {
		return json.Marshal(p.String())
	}
	return json.Marshal(uint32(p))
}

// UnmarshalJSON accepts a port number or a reserved port name.
func (p *Port) UnmarshalJSON(b []byte) error {
	var n uint32
	if err := json.Unmarshal(b, &n); err == nil {
		*p = Port(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("invalid port %s", b)
	}
	v, err := ParsePort(s)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// ParsePort accepts a decimal port number or a reserved port name.
func ParsePort(s string) (Port, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "IN_PORT":
		return PortInPort, nil
	case "FLOOD":
		return PortFlood, nil
	case "ALL":
		return PortAll, nil
	case "CONTROLLER":
		return PortController, nil
	case "LOCAL":
		return PortLocal, nil
	case "ANY":
		return PortAny, nil
	}
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return Port(n), nil
}

// Priority orders rules; higher wins.
type Priority uint16

const (
	PriorityMiss    Priority = 0
	PriorityLearned Priority = 1
	PriorityBlock   Priority = 2
)

// EthType is an Ethernet frame type.
type EthType uint16

const (
	EthTypeIPv4 EthType = 0x0800
	EthTypeARP  EthType = 0x0806
	EthTypeIPv6 EthType = 0x86dd
	EthTypeLLDP EthType = 0x88cc
	// EthTypeBDDP is the legacy broadcast discovery type some fabrics emit.
	EthTypeBDDP EthType = 0xa0f1
)

// Discovery reports whether frames of this type belong to topology discovery.
func (t EthType) Discovery() bool { return t == EthTypeLLDP || t == EthTypeBDDP }

func (t EthType) String() string { return fmt.Sprintf("0x%04x", uint16(t)) }

// MarshalJSON encodes the type in hex, e.g. "0x0800".
func (t EthType) MarshalJSON() ([]byte, error) { return json.Marshal(t.String()) }

// UnmarshalJSON accepts anything ParseEthType does, or a bare number.
func (t *EthType) UnmarshalJSON(b []byte) error {
	var n uint16
	if err := json.Unmarshal(b, &n); err == nil {
		*t = EthType(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("invalid ethertype %s", b)
	}
	v, err := ParseEthType(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ParseEthType accepts "0x0800", "2048" or the names "ipv4", "arp", "ipv6".
func ParseEthType(s string) (EthType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ipv4", "ip":
		return EthTypeIPv4, nil
	case "arp":
		return EthTypeARP, nil
	case "ipv6":
		return EthTypeIPv6, nil
	}
	n, err := strconv.ParseUint(strings.TrimSpace(s), 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid ethertype %q", s)
	}
	return EthType(n), nil
}

// MAC is a 48-bit hardware address usable as a map key.
type MAC [6]byte

// Broadcast is ff:ff:ff:ff:ff:ff.
var Broadcast = MAC{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// ParseMAC parses a colon- or dash-separated 48-bit address.
func ParseMAC(s string) (MAC, error) {
	hw, err := net.ParseMAC(s)
	if err != nil {
		return MAC{}, err
	}
	if len(hw) != 6 {
		return MAC{}, fmt.Errorf("address %q is not 48 bits", s)
	}
	var m MAC
	copy(m[:], hw)
	return m, nil
}

// MustParseMAC is ParseMAC that panics on error.
func MustParseMAC(s string) MAC {
	m, err := ParseMAC(s)
	if err != nil {
		panic(err)
	}
	return m
}

// MACFrom copies a net.HardwareAddr. Short input yields the zero address.
func MACFrom(hw net.HardwareAddr) MAC {
	var m MAC
	if len(hw) == 6 {
		copy(m[:], hw)
	}
	return m
}

func (m MAC) IsZero() bool { return m == MAC{} }

// IsGroup reports a multicast or broadcast address (I/G bit set).
func (m MAC) IsGroup() bool { return m[0]&0x01 == 0x01 }

func (m MAC) IsBroadcast() bool { return m == Broadcast }

// HardwareAddr returns m as a net.HardwareAddr.
func (m MAC) HardwareAddr() net.HardwareAddr { return net.HardwareAddr(m[:]) }

func (m MAC) String() string { return m.HardwareAddr().String() }

func (m MAC) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *MAC) UnmarshalText(b []byte) error {
	v, err := ParseMAC(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}
