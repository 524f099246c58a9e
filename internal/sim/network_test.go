// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package sim

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/sdnlink/internal/config"
	"grimm.is/sdnlink/internal/datapath"
	"grimm.is/sdnlink/internal/errors"
	"grimm.is/sdnlink/internal/flow"
	"grimm.is/sdnlink/internal/logging"
)

// hub is a minimal controller: every switch floods every frame.
type hub struct {
	mu      sync.Mutex
	handles map[uint64]datapath.Handle
	events  []datapath.Event
}

func (h *hub) Submit(ctx context.Context, ev datapath.Event) error {
	h.mu.Lock()
	h.events = append(h.events, ev)
	if h.handles == nil {
		h.handles = make(map[uint64]datapath.Handle)
	}
	h.mu.Unlock()

	switch ev := ev.(type) {
	case datapath.ConnectEvent:
		h.mu.Lock()
		h.handles[ev.SwitchID] = ev.Handle
		h.mu.Unlock()
		return ev.Handle.InstallRule(ctx, flow.TableMiss())
	case datapath.PacketInEvent:
		h.mu.Lock()
		sw := h.handles[ev.SwitchID]
		h.mu.Unlock()
		return sw.PacketOut(ctx, ev.InPort, []flow.Action{flow.Output(flow.PortFlood)}, ev.Data)
	}
	return nil
}

func (h *hub) count(kind datapath.EventKind) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, ev := range h.events {
		if ev.Kind() == kind {
			n++
		}
	}
	return n
}

func newFabric(t *testing.T, sink datapath.Sink) *Network {
	t.Helper()
	cfg := config.Default()
	n, err := FromConfig(cfg.Topology, cfg.Links, sink, WithLogger(logging.Nop()))
	require.NoError(t, err)
	return n
}

func TestFromConfig(t *testing.T) {
	n := newFabric(t, &hub{})

	require.Len(t, n.Switches(), 2)
	require.Len(t, n.Hosts(), 4)

	h4, ok := n.Host("h4")
	require.True(t, ok)
	assert.Equal(t, uint64(2), h4.Switch)
	assert.Equal(t, flow.Port(1), h4.Port)
	assert.Equal(t, "10.0.0.4", h4.IP.String())

	_, err := FromConfig(nil, nil, &hub{})
	assert.True(t, errors.IsKind(err, errors.KindValidation))
}

func TestWireErrors(t *testing.T) {
	n := New(&hub{}, WithLogger(logging.Nop()))
	_, err := n.AddSwitch(1, "", []flow.Port{1, 2})
	require.NoError(t, err)
	_, err = n.AddSwitch(1, "dup", nil)
	assert.True(t, errors.IsKind(err, errors.KindConflict))

	sw, _ := n.Switch(1)
	assert.Equal(t, "s1", sw.Name)

	assert.ErrorIs(t, n.Wire(1, 1, 9, 1), errors.ErrSwitchNotFound)

	_, err = n.AddSwitch(2, "s2", []flow.Port{1})
	require.NoError(t, err)
	assert.True(t, errors.IsKind(n.Wire(1, 7, 2, 1), errors.KindValidation), "unknown port")
	require.NoError(t, n.Wire(1, 2, 2, 1))
	assert.True(t, errors.IsKind(n.Wire(1, 2, 2, 1), errors.KindConflict), "port already wired")
}

func TestHandleRequiresConnection(t *testing.T) {
	n := newFabric(t, &hub{})
	sw, _ := n.Switch(1)

	err := sw.InstallRule(context.Background(), flow.TableMiss())
	assert.True(t, errors.IsKind(err, errors.KindUnavailable))
}

func TestFloodReachesEveryHost(t *testing.T) {
	h := &hub{}
	n := newFabric(t, h)
	ctx := context.Background()
	require.NoError(t, n.Connect(ctx))
	assert.Equal(t, 2, h.count(datapath.EventConnect))

	for _, et := range []flow.EthType{flow.EthTypeIPv4, flow.EthTypeARP} {
		seq, err := n.Send(ctx, "h1", "h4", et)
		require.NoError(t, err)

		h4, _ := n.Host("h4")
		assert.True(t, h4.Received(seq), "h4 receives %s", et)

		// Unicast to h4 is filtered by the other hosts' NICs.
		h2, _ := n.Host("h2")
		assert.False(t, h2.Received(seq))
		h1, _ := n.Host("h1")
		assert.False(t, h1.Received(seq), "no reflection to sender")
	}

	seq, err := n.Send(ctx, "h4", "", flow.EthTypeARP)
	require.NoError(t, err)
	for _, name := range []string{"h1", "h2", "h3"} {
		host, _ := n.Host(name)
		assert.True(t, host.Received(seq), name)
	}

	s1, _ := n.Switch(1)
	assert.NotZero(t, s1.Counters().ToController)
}

func TestDropRule(t *testing.T) {
	h := &hub{}
	n := newFabric(t, h)
	ctx := context.Background()
	require.NoError(t, n.Connect(ctx))

	s1, _ := n.Switch(1)
	require.NoError(t, s1.InstallRule(ctx, flow.Drop(flow.PriorityBlock, flow.Match{InPort: 1, EthType: flow.EthTypeIPv4})))

	seq, err := n.Send(ctx, "h1", "h4", flow.EthTypeIPv4)
	require.NoError(t, err)
	h4, _ := n.Host("h4")
	assert.False(t, h4.Received(seq))
	assert.Equal(t, uint64(1), s1.Counters().Dropped)

	seq, err = n.Send(ctx, "h1", "h4", flow.EthTypeARP)
	require.NoError(t, err)
	assert.True(t, h4.Received(seq), "other ethertypes pass")
}

func TestDisconnectClearsTable(t *testing.T) {
	h := &hub{}
	n := newFabric(t, h)
	ctx := context.Background()
	require.NoError(t, n.Connect(ctx))

	s2, _ := n.Switch(2)
	require.Len(t, s2.Rules(), 1)

	require.NoError(t, n.DisconnectSwitch(ctx, 2))
	assert.Empty(t, s2.Rules())
	assert.Equal(t, 1, h.count(datapath.EventDisconnect))

	seq, err := n.Send(ctx, "h1", "h4", flow.EthTypeIPv4)
	require.NoError(t, err)
	h4, _ := n.Host("h4")
	assert.False(t, h4.Received(seq), "s2 has no rules after restart")

	assert.ErrorIs(t, n.DisconnectSwitch(ctx, 9), errors.ErrSwitchNotFound)
}

func TestProbe(t *testing.T) {
	n := newFabric(t, &hub{})
	ctx := context.Background()
	require.NoError(t, n.Connect(ctx))

	tr, err := n.Probe(ctx, "h1", "h4", flow.EthTypeIPv4, time.Second)
	require.NoError(t, err)
	assert.True(t, tr.Delivered)
	assert.Equal(t, []string{"h4"}, tr.Receivers)

	_, err = n.Probe(ctx, "h1", "nobody", flow.EthTypeIPv4, time.Second)
	assert.True(t, errors.IsKind(err, errors.KindNotFound))
}

func TestAwaitTimeout(t *testing.T) {
	n := newFabric(t, &hub{})
	h4, _ := n.Host("h4")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h4.Await(ctx, 42), context.DeadlineExceeded)
}

func TestFrameRoundTrip(t *testing.T) {
	src := flow.MustParseMAC("00:00:00:00:00:01")
	dst := flow.MustParseMAC("00:00:00:00:00:04")

	for _, et := range []flow.EthType{flow.EthTypeIPv4, 0x88b5} {
		data, err := buildFrame(src, dst, []byte{10, 0, 0, 1}, []byte{10, 0, 0, 4}, et, 7)
		require.NoError(t, err)

		r, err := parseFrame(data)
		require.NoError(t, err)
		assert.Equal(t, Received{Seq: 7, Src: src, Dst: dst, EthType: et}, r)
	}

	_, err := parseFrame([]byte{0x01})
	assert.Error(t, err)
}
