// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package sim

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"grimm.is/sdnlink/internal/datapath"
	"grimm.is/sdnlink/internal/errors"
	"grimm.is/sdnlink/internal/flow"
	"grimm.is/sdnlink/internal/flowstore"
	"grimm.is/sdnlink/internal/forwarding"
)

// peer is what sits on the far side of a port: a host, or another switch port.
type peer struct {
	host *Host
	sw   *Switch
	port flow.Port
}

// Counters are per-switch frame counters.
type Counters struct {
	Received     uint64 `json:"received"`
	ToController uint64 `json:"to_controller"`
	Dropped      uint64 `json:"dropped"`
	Malformed    uint64 `json:"malformed"`
}

// Switch is a simulated OpenFlow switch. It implements datapath.Handle.
type Switch struct {
	ID   uint64
	Name string

	net   *Network
	ports []flow.Port
	table *flowstore.Table

	mu    sync.RWMutex
	peers map[flow.Port]peer

	connected atomic.Bool

	received     atomic.Uint64
	toController atomic.Uint64
	dropped      atomic.Uint64
	malformed    atomic.Uint64
}

var _ datapath.Handle = (*Switch)(nil)

func newSwitch(n *Network, id uint64, name string, ports []flow.Port) *Switch {
	return &Switch{
		ID:    id,
		Name:  name,
		net:   n,
		ports: slices.Clone(ports),
		table: flowstore.NewTable(),
		peers: make(map[flow.Port]peer),
	}
}

func (s *Switch) attach(port flow.Port, p peer) error {
	if !slices.Contains(s.ports, port) {
		return errors.Errorf(errors.KindValidation, "switch %d has no port %d", s.ID, port)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.peers[port]; busy {
		return errors.Errorf(errors.KindConflict, "port %d:%d already wired", s.ID, port)
	}
	s.peers[port] = p
	return nil
}

// Ports returns the switch's physical ports.
func (s *Switch) Ports() []flow.Port { return slices.Clone(s.ports) }

// Rules returns the switch's own flow table.
func (s *Switch) Rules() []flow.Rule { return s.table.Rules() }

// Counters returns a snapshot of the frame counters.
func (s *Switch) Counters() Counters {
	return Counters{
		Received:     s.received.Load(),
		ToController: s.toController.Load(),
		Dropped:      s.dropped.Load(),
		Malformed:    s.malformed.Load(),
	}
}

func (s *Switch) online() error {
	if !s.connected.Load() {
		return errors.Errorf(errors.KindUnavailable, "switch %d is not connected", s.ID)
	}
	return nil
}

// InstallRule adds or replaces a rule in the switch table.
func (s *Switch) InstallRule(_ context.Context, r flow.Rule) error {
	if err := s.online(); err != nil {
		return err
	}
	s.table.Install(r)
	return nil
}

// DeleteRule removes every rule covered by m.
func (s *Switch) DeleteRule(_ context.Context, m flow.Match) error {
	if err := s.online(); err != nil {
		return err
	}
	s.table.Delete(m)
	return nil
}

// PacketOut emits data as if it had arrived on inPort.
func (s *Switch) PacketOut(ctx context.Context, inPort flow.Port, actions []flow.Action, data []byte) error {
	if err := s.online(); err != nil {
		return err
	}
	s.apply(ctx, inPort, actions, data, 0)
	return nil
}

// receive runs a frame arriving on inPort through the flow table.
func (s *Switch) receive(ctx context.Context, inPort flow.Port, data []byte, hops int) {
	s.received.Add(1)

	pkt, err := forwarding.Decode(inPort, data)
	if err != nil {
		s.malformed.Add(1)
		return
	}
	rule, ok := s.table.Lookup(pkt)
	if !ok || rule.IsDrop() {
		s.dropped.Add(1)
		return
	}
	s.apply(ctx, inPort, rule.Actions, data, hops)
}

func (s *Switch) apply(ctx context.Context, inPort flow.Port, actions []flow.Action, data []byte, hops int) {
	for _, a := range actions {
		switch out := a.Output; out {
		case flow.PortController:
			s.toController.Add(1)
			ev := datapath.PacketInEvent{SwitchID: s.ID, InPort: inPort, Data: slices.Clone(data)}
			if err := s.net.sink.Submit(ctx, ev); err != nil {
				s.net.logger.Debug("packet-in rejected", "switch", s.ID, "error", err)
			}
		case flow.PortFlood, flow.PortAll:
			for _, p := range s.ports {
				if p != inPort {
					s.emit(ctx, p, data, hops)
				}
			}
		case flow.PortInPort:
			s.emit(ctx, inPort, data, hops)
		default:
			if out == inPort || out.Reserved() {
				s.dropped.Add(1)
				continue
			}
			s.emit(ctx, out, data, hops)
		}
	}
}

func (s *Switch) emit(ctx context.Context, port flow.Port, data []byte, hops int) {
	s.mu.RLock()
	p, ok := s.peers[port]
	s.mu.RUnlock()
	if !ok {
		return
	}

	if p.host != nil {
		p.host.deliver(data)
		return
	}
	if hops >= s.net.maxHops {
		s.net.logger.Warn("hop limit reached", "switch", s.ID, "port", port)
		s.dropped.Add(1)
		return
	}
	p.sw.receive(ctx, p.port, data, hops+1)
}
