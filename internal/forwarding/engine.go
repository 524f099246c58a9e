// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package forwarding implements reactive learning-switch forwarding.
package forwarding

import (
	"context"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"

	"grimm.is/sdnlink/internal/datapath"
	"grimm.is/sdnlink/internal/errors"
	"grimm.is/sdnlink/internal/flow"
	"grimm.is/sdnlink/internal/learning"
	"grimm.is/sdnlink/internal/logging"
	"grimm.is/sdnlink/internal/metrics"
)

// Switches resolves a datapath id to its command handle and advertised ports.
type Switches interface {
	Handle(id uint64) (datapath.Handle, error)
	HasPort(id uint64, port flow.Port) bool
}

// Decision describes what the engine did with one frame.
type Decision struct {
	Header    flow.Packet
	Out       flow.Port
	Installed bool
	Ignored   bool
	// UnknownPort is set when the ingress port was not advertised by the
	// switch. Nothing is learned or installed for such frames.
	UnknownPort bool
}

// Engine handles packet-in events.
type Engine struct {
	switches Switches
	macs     *learning.Table
	logger   *logging.Logger
	metrics  *metrics.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(l *logging.Logger) Option { return func(e *Engine) { e.logger = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }

// New creates an engine that learns into macs.
func New(switches Switches, macs *learning.Table, opts ...Option) *Engine {
	e := &Engine{switches: switches, macs: macs}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.WithComponent("forwarding")
	}
	return e
}

// Decode extracts the Ethernet header of a frame received on inPort.
func Decode(inPort flow.Port, data []byte) (flow.Packet, error) {
	var eth layers.Ethernet
	if err := eth.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return flow.Packet{}, errors.Wrapf(errors.ErrMalformedFrame, errors.KindMalformed, "ethernet header (%v)", err)
	}
	return flow.Packet{
		InPort:  inPort,
		EthSrc:  flow.MACFrom(eth.SrcMAC),
		EthDst:  flow.MACFrom(eth.DstMAC),
		EthType: flow.EthType(eth.EthernetType),
	}, nil
}

// HandlePacketIn learns the source location, installs a forwarding rule when
// the destination is known, and emits the frame. Undecodable frames and
// discovery frames are dropped without learning.
func (e *Engine) HandlePacketIn(ctx context.Context, ev datapath.PacketInEvent) (Decision, error) {
	h, err := e.switches.Handle(ev.SwitchID)
	if err != nil {
		return Decision{}, err
	}
	e.metrics.PacketIn(ev.SwitchID)

	pkt, err := Decode(ev.InPort, ev.Data)
	if err != nil {
		e.metrics.MalformedFrame()
		return Decision{}, err
	}
	d := Decision{Header: pkt}

	if pkt.EthType.Discovery() {
		d.Ignored = true
		return d, nil
	}

	var (
		out   flow.Port
		known bool
	)
	if e.switches.HasPort(ev.SwitchID, pkt.InPort) {
		out, known = e.macs.Update(ev.SwitchID, pkt.EthSrc, pkt.InPort, pkt.EthDst)
	} else {
		d.UnknownPort = true
		e.logger.Debug("packet in on unadvertised port, not learning",
			"switch", ev.SwitchID,
			"in_port", pkt.InPort,
			"src", pkt.EthSrc,
		)
		out, known = e.macs.Lookup(ev.SwitchID, pkt.EthDst)
	}
	if !known {
		out = flow.PortFlood
		e.metrics.Flood(ev.SwitchID)
	}
	d.Out = out

	var errs []error
	if known && !d.UnknownPort {
		rule := flow.Forward(flow.PriorityLearned, flow.Match{
			InPort: pkt.InPort,
			EthSrc: pkt.EthSrc,
			EthDst: pkt.EthDst,
		}, out)
		if err := h.InstallRule(ctx, rule); err != nil {
			errs = append(errs, err)
		} else {
			d.Installed = true
		}
	}

	if err := h.PacketOut(ctx, pkt.InPort, []flow.Action{flow.Output(out)}, ev.Data); err != nil {
		errs = append(errs, err)
	}

	e.logger.Debug("packet in",
		"switch", ev.SwitchID,
		"in_port", pkt.InPort,
		"src", pkt.EthSrc,
		"dst", pkt.EthDst,
		"out", out,
	)
	return d, errors.Join(errs...)
}
