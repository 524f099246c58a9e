// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package datapath defines the contract between the controller and a switch transport.
//
// A transport delivers Events for each connected switch and accepts commands
// through that switch's Handle. Commands are asynchronous: a nil error means
// the command was handed to the transport, not that the switch applied it.
package datapath

import (
	"context"
	"fmt"

	"grimm.is/sdnlink/internal/flow"
)

// Handle issues commands to one switch.
type Handle interface {
	// InstallRule adds a rule, replacing any rule with the same priority and match.
	InstallRule(ctx context.Context, rule flow.Rule) error
	// DeleteRule removes every rule whose match is covered by m (non-strict).
	DeleteRule(ctx context.Context, m flow.Match) error
	// PacketOut emits data as if it arrived on inPort, applying actions.
	PacketOut(ctx context.Context, inPort flow.Port, actions []flow.Action, data []byte) error
}

// EventKind identifies an event type for dispatch.
type EventKind int

const (
	EventConnect EventKind = iota + 1
	EventDisconnect
	EventPacketIn
)

func (k EventKind) String() string {
	switch k {
	case EventConnect:
		return "connect"
	case EventDisconnect:
		return "disconnect"
	case EventPacketIn:
		return "packet_in"
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is something a switch reported.
type Event interface {
	Kind() EventKind
	Switch() uint64
}

// ConnectEvent is delivered once a switch completes its handshake.
type ConnectEvent struct {
	SwitchID uint64
	Handle   Handle
	Ports    []flow.Port
}

func (e ConnectEvent) Kind() EventKind { return EventConnect }
func (e ConnectEvent) Switch() uint64  { return e.SwitchID }

// DisconnectEvent is delivered when a switch goes away.
type DisconnectEvent struct {
	SwitchID uint64
}

func (e DisconnectEvent) Kind() EventKind { return EventDisconnect }
func (e DisconnectEvent) Switch() uint64  { return e.SwitchID }

// PacketInEvent carries a frame punted to the controller.
type PacketInEvent struct {
	SwitchID uint64
	InPort   flow.Port
	Data     []byte
}

func (e PacketInEvent) Kind() EventKind { return EventPacketIn }
func (e PacketInEvent) Switch() uint64  { return e.SwitchID }

// Sink receives events from a transport.
type Sink interface {
	Submit(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event) error

func (f SinkFunc) Submit(ctx context.Context, ev Event) error { return f(ctx, ev) }
