// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package sim is an in-memory switch fabric for running the controller
// without real hardware.
//
// Switches hold real flow tables and apply them to serialized Ethernet
// frames. Packets that hit a CONTROLLER action are submitted to the sink as
// packet-in events; the switch itself is the datapath.Handle the controller
// commands.
package sim

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/lo"

	"grimm.is/sdnlink/internal/config"
	"grimm.is/sdnlink/internal/datapath"
	"grimm.is/sdnlink/internal/errors"
	"grimm.is/sdnlink/internal/flow"
	"grimm.is/sdnlink/internal/logging"
)

// DefaultMaxHops bounds switch-to-switch forwarding of one frame.
const DefaultMaxHops = 16

// Network owns simulated switches, hosts and the wires between them.
type Network struct {
	mu       sync.RWMutex
	switches map[uint64]*Switch
	hosts    map[string]*Host

	sink    datapath.Sink
	logger  *logging.Logger
	seq     atomic.Uint64
	maxHops int
}

// Option configures a Network.
type Option func(*Network)

func WithLogger(l *logging.Logger) Option { return func(n *Network) { n.logger = l } }

func WithMaxHops(h int) Option { return func(n *Network) { n.maxHops = h } }

// New creates an empty network that reports to sink.
func New(sink datapath.Sink, opts ...Option) *Network {
	n := &Network{
		switches: make(map[uint64]*Switch),
		hosts:    make(map[string]*Host),
		sink:     sink,
		maxHops:  DefaultMaxHops,
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.logger == nil {
		n.logger = logging.WithComponent("sim")
	}
	return n
}

// FromConfig builds the topology and wires every link.
func FromConfig(topo *config.TopologyConfig, links []config.LinkConfig, sink datapath.Sink, opts ...Option) (*Network, error) {
	if topo == nil {
		return nil, errors.New(errors.KindValidation, "no topology configured")
	}
	n := New(sink, opts...)
	for _, sc := range topo.Switches {
		ports := lo.Map(sc.Ports, func(p uint32, _ int) flow.Port { return flow.Port(p) })
		if _, err := n.AddSwitch(sc.DPID, sc.Name, ports); err != nil {
			return nil, err
		}
	}
	for _, hc := range topo.Hosts {
		mac, err := flow.ParseMAC(hc.MAC)
		if err != nil {
			return nil, errors.Wrapf(err, errors.KindValidation, "host %s", hc.Name)
		}
		var ip net.IP
		if hc.IP != "" {
			ip = net.ParseIP(hc.IP)
		}
		if _, err := n.AddHost(hc.Name, mac, ip, hc.Switch, flow.Port(hc.Port)); err != nil {
			return nil, err
		}
	}
	for _, l := range links {
		if err := n.Wire(l.SwitchA, flow.Port(l.PortA), l.SwitchB, flow.Port(l.PortB)); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// AddSwitch creates a switch with the given physical ports.
func (n *Network) AddSwitch(id uint64, name string, ports []flow.Port) (*Switch, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.switches[id]; ok {
		return nil, errors.Errorf(errors.KindConflict, "switch %d already exists", id)
	}
	if name == "" {
		name = fmt.Sprintf("s%d", id)
	}
	sw := newSwitch(n, id, name, ports)
	n.switches[id] = sw
	return sw, nil
}

// AddHost attaches a host to a switch port. A nil ip gets 10.0.0.<index>.
func (n *Network) AddHost(name string, mac flow.MAC, ip net.IP, swID uint64, port flow.Port) (*Host, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.hosts[name]; ok {
		return nil, errors.Errorf(errors.KindConflict, "host %s already exists", name)
	}
	sw, ok := n.switches[swID]
	if !ok {
		return nil, errors.SwitchNotFound(swID)
	}
	if ip == nil {
		ip = net.IPv4(10, 0, 0, byte(len(n.hosts)+1))
	}
	h := newHost(name, mac, ip, swID, port)
	if err := sw.attach(port, peer{host: h}); err != nil {
		return nil, err
	}
	n.hosts[name] = h
	return h, nil
}

// Wire connects two switch ports.
func (n *Network) Wire(a uint64, pa flow.Port, b uint64, pb flow.Port) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	swA, okA := n.switches[a]
	swB, okB := n.switches[b]
	if !okA {
		return errors.SwitchNotFound(a)
	}
	if !okB {
		return errors.SwitchNotFound(b)
	}
	if err := swA.attach(pa, peer{sw: swB, port: pb}); err != nil {
		return err
	}
	return swB.attach(pb, peer{sw: swA, port: pa})
}

// Switch returns a switch by id.
func (n *Network) Switch(id uint64) (*Switch, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	sw, ok := n.switches[id]
	return sw, ok
}

// Host returns a host by name.
func (n *Network) Host(name string) (*Host, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	h, ok := n.hosts[name]
	return h, ok
}

// Switches returns every switch ordered by id.
func (n *Network) Switches() []*Switch {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := lo.Values(n.switches)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Hosts returns every host ordered by name.
func (n *Network) Hosts() []*Host {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := lo.Values(n.hosts)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Connect announces every switch to the sink.
func (n *Network) Connect(ctx context.Context) error {
	for _, sw := range n.Switches() {
		if err := n.ConnectSwitch(ctx, sw.ID); err != nil {
			return err
		}
	}
	return nil
}

// ConnectSwitch announces one switch.
func (n *Network) ConnectSwitch(ctx context.Context, id uint64) error {
	sw, ok := n.Switch(id)
	if !ok {
		return errors.SwitchNotFound(id)
	}
	sw.connected.Store(true)
	return n.sink.Submit(ctx, datapath.ConnectEvent{SwitchID: id, Handle: sw, Ports: sw.Ports()})
}

// DisconnectSwitch reports a switch gone. Its flow table is cleared, as a
// real switch would lose its rules on restart.
func (n *Network) DisconnectSwitch(ctx context.Context, id uint64) error {
	sw, ok := n.Switch(id)
	if !ok {
		return errors.SwitchNotFound(id)
	}
	sw.connected.Store(false)
	sw.table.Clear()
	return n.sink.Submit(ctx, datapath.DisconnectEvent{SwitchID: id})
}

// Send injects a frame from one host addressed to another. An empty to
// broadcasts. Returns the sequence number carried in the frame.
func (n *Network) Send(ctx context.Context, from, to string, ethType flow.EthType) (uint64, error) {
	src, ok := n.Host(from)
	if !ok {
		return 0, errors.Errorf(errors.KindNotFound, "host %q not found", from)
	}
	dstMAC, dstIP := flow.Broadcast, net.IPv4bcast
	if to != "" {
		dst, ok := n.Host(to)
		if !ok {
			return 0, errors.Errorf(errors.KindNotFound, "host %q not found", to)
		}
		dstMAC, dstIP = dst.MAC, dst.IP
	}
	sw, ok := n.Switch(src.Switch)
	if !ok {
		return 0, errors.SwitchNotFound(src.Switch)
	}

	seq := n.seq.Add(1)
	frame, err := buildFrame(src.MAC, dstMAC, src.IP, dstIP, ethType, seq)
	if err != nil {
		return 0, err
	}
	sw.receive(ctx, src.Port, frame, 0)
	return seq, nil
}

// Trace reports who received one sent frame.
type Trace struct {
	Seq       uint64   `json:"seq"`
	From      string   `json:"from"`
	To        string   `json:"to,omitempty"`
	Delivered bool     `json:"delivered"`
	Receivers []string `json:"receivers"`
}

// Probe sends a frame and waits up to timeout for the destination to receive
// it. Delivered is false on timeout; that is not an error.
func (n *Network) Probe(ctx context.Context, from, to string, ethType flow.EthType, timeout time.Duration) (Trace, error) {
	seq, err := n.Send(ctx, from, to, ethType)
	if err != nil {
		return Trace{}, err
	}
	tr := Trace{Seq: seq, From: from, To: to}

	if to != "" {
		dst, _ := n.Host(to)
		wctx, cancel := context.WithTimeout(ctx, timeout)
		tr.Delivered = dst.Await(wctx, seq) == nil
		cancel()
	} else {
		select {
		case <-time.After(timeout):
		case <-ctx.Done():
		}
	}

	for _, h := range n.Hosts() {
		if h.Received(seq) {
			tr.Receivers = append(tr.Receivers, h.Name)
		}
	}
	if to == "" {
		tr.Delivered = len(tr.Receivers) > 0
	}
	return tr, nil
}
