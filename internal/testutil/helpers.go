// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package testutil holds fakes shared by package tests.
package testutil

import (
	"context"
	"net"
	"sync"
	"testing"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"

	"grimm.is/sdnlink/internal/flow"
)

// Command ops recorded by Handle.
const (
	OpInstall   = "install"
	OpDelete    = "delete"
	OpPacketOut = "packet_out"
)

// Command is one call made against a Handle.
type Command struct {
	Op      string
	Rule    flow.Rule
	Match   flow.Match
	InPort  flow.Port
	Actions []flow.Action
	Data    []byte
}

// Handle is a datapath.Handle that records every command.
type Handle struct {
	mu       sync.Mutex
	commands []Command
	fail     map[string]error
}

func NewHandle() *Handle {
	return &Handle{fail: make(map[string]error)}
}

// FailOn makes every subsequent call of op return err. A nil err clears it.
func (h *Handle) FailOn(op string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err == nil {
		delete(h.fail, op)
		return
	}
	h.fail[op] = err
}

func (h *Handle) record(c Command) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fail[c.Op]; err != nil {
		return err
	}
	h.commands = append(h.commands, c)
	return nil
}

func (h *Handle) InstallRule(_ context.Context, rule flow.Rule) error {
	return h.record(Command{Op: OpInstall, Rule: rule.Clone()})
}

func (h *Handle) DeleteRule(_ context.Context, m flow.Match) error {
	return h.record(Command{Op: OpDelete, Match: m})
}

func (h *Handle) PacketOut(_ context.Context, inPort flow.Port, actions []flow.Action, data []byte) error {
	return h.record(Command{
		Op:      OpPacketOut,
		InPort:  inPort,
		Actions: append([]flow.Action{}, actions...),
		Data:    append([]byte{}, data...),
	})
}

// Commands returns a copy of every recorded command.
func (h *Handle) Commands() []Command {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Command{}, h.commands...)
}

func (h *Handle) filter(op string) []Command {
	var out []Command
	for _, c := range h.Commands() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Installed returns installed rules in call order.
func (h *Handle) Installed() []flow.Rule {
	var out []flow.Rule
	for _, c := range h.filter(OpInstall) {
		out = append(out, c.Rule)
	}
	return out
}

// Deleted returns delete matches in call order.
func (h *Handle) Deleted() []flow.Match {
	var out []flow.Match
	for _, c := range h.filter(OpDelete) {
		out = append(out, c.Match)
	}
	return out
}

// PacketOuts returns packet-out commands in call order.
func (h *Handle) PacketOuts() []Command { return h.filter(OpPacketOut) }

// Reset forgets recorded commands.
func (h *Handle) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commands = nil
}

// Frame serializes an Ethernet frame. IPv4 frames carry a small UDP datagram.
func Frame(t testing.TB, src, dst flow.MAC, ethType flow.EthType) []byte {
	t.Helper()

	eth := &layers.Ethernet{
		SrcMAC:       src.HardwareAddr(),
		DstMAC:       dst.HardwareAddr(),
		EthernetType: layers.EthernetType(ethType),
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}

	var err error
	if ethType == flow.EthTypeIPv4 {
		ip := &layers.IPv4{
			Version:  4,
			TTL:      64,
			Protocol: layers.IPProtocolUDP,
			SrcIP:    net.IPv4(10, 0, 0, 1),
			DstIP:    net.IPv4(10, 0, 0, 2),
		}
		udp := &layers.UDP{SrcPort: 40000, DstPort: 9}
		if err = udp.SetNetworkLayerForChecksum(ip); err == nil {
			err = gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload("probe"))
		}
	} else {
		err = gopacket.SerializeLayers(buf, opts, eth, gopacket.Payload("probe"))
	}
	if err != nil {
		t.Fatalf("serialize frame: %v", err)
	}
	return buf.Bytes()
}
