// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package forwarding

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/sdnlink/internal/datapath"
	sdnerrors "grimm.is/sdnlink/internal/errors"
	"grimm.is/sdnlink/internal/flow"
	"grimm.is/sdnlink/internal/learning"
	"grimm.is/sdnlink/internal/logging"
	"grimm.is/sdnlink/internal/metrics"
	"grimm.is/sdnlink/internal/testutil"
)

var (
	h1 = flow.MustParseMAC("00:00:00:00:00:01")
	h2 = flow.MustParseMAC("00:00:00:00:00:02")
	h4 = flow.MustParseMAC("00:00:00:00:00:04")
)

type switchMap map[uint64]datapath.Handle

func (m switchMap) Handle(id uint64) (datapath.Handle, error) {
	h, ok := m[id]
	if !ok {
		return nil, sdnerrors.SwitchNotFound(id)
	}
	return h, nil
}

// HasPort treats ports 1-4 as advertised on every switch.
func (m switchMap) HasPort(id uint64, port flow.Port) bool {
	_, ok := m[id]
	return ok && port >= 1 && port <= 4
}

func setup(t *testing.T) (*Engine, *testutil.Handle, *learning.Table) {
	t.Helper()
	fake := testutil.NewHandle()
	macs := learning.New()
	e := New(switchMap{1: fake}, macs, WithLogger(logging.Nop()), WithMetrics(metrics.New()))
	return e, fake, macs
}

func packetIn(t *testing.T, in flow.Port, src, dst flow.MAC, et flow.EthType) datapath.PacketInEvent {
	return datapath.PacketInEvent{SwitchID: 1, InPort: in, Data: testutil.Frame(t, src, dst, et)}
}

func TestUnknownDestinationFloods(t *testing.T) {
	e, fake, macs := setup(t)
	ev := packetIn(t, 1, h1, h4, flow.EthTypeIPv4)

	d, err := e.HandlePacketIn(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, flow.PortFlood, d.Out)
	assert.False(t, d.Installed)

	assert.Empty(t, fake.Installed())
	outs := fake.PacketOuts()
	require.Len(t, outs, 1)
	assert.Equal(t, flow.Port(1), outs[0].InPort)
	assert.Equal(t, []flow.Action{flow.Output(flow.PortFlood)}, outs[0].Actions)
	assert.Equal(t, ev.Data, outs[0].Data)

	port, ok := macs.Lookup(1, h1)
	require.True(t, ok)
	assert.Equal(t, flow.Port(1), port)
}

func TestKnownDestinationInstallsRule(t *testing.T) {
	e, fake, _ := setup(t)
	ctx := context.Background()

	_, err := e.HandlePacketIn(ctx, packetIn(t, 1, h1, h4, flow.EthTypeIPv4))
	require.NoError(t, err)
	fake.Reset()

	d, err := e.HandlePacketIn(ctx, packetIn(t, 4, h4, h1, flow.EthTypeIPv4))
	require.NoError(t, err)
	assert.True(t, d.Installed)
	assert.Equal(t, flow.Port(1), d.Out)

	want := flow.Forward(flow.PriorityLearned, flow.Match{InPort: 4, EthSrc: h4, EthDst: h1}, 1)
	assert.Equal(t, []flow.Rule{want}, fake.Installed())

	outs := fake.PacketOuts()
	require.Len(t, outs, 1)
	assert.Equal(t, []flow.Action{flow.Output(1)}, outs[0].Actions)

	// Rule installed before the packet-out.
	cmds := fake.Commands()
	require.Len(t, cmds, 2)
	assert.Equal(t, testutil.OpInstall, cmds[0].Op)
	assert.Equal(t, testutil.OpPacketOut, cmds[1].Op)
}

func TestBroadcastAlwaysFloods(t *testing.T) {
	e, fake, macs := setup(t)

	_, err := e.HandlePacketIn(context.Background(), packetIn(t, 2, h2, flow.Broadcast, flow.EthTypeARP))
	require.NoError(t, err)
	assert.Empty(t, fake.Installed())
	assert.Equal(t, []flow.Action{flow.Output(flow.PortFlood)}, fake.PacketOuts()[0].Actions)

	_, ok := macs.Lookup(1, flow.Broadcast)
	assert.False(t, ok)
}

func TestGroupSourceNotLearned(t *testing.T) {
	e, _, macs := setup(t)
	mcast := flow.MustParseMAC("01:00:5e:00:00:16")

	_, err := e.HandlePacketIn(context.Background(), packetIn(t, 3, mcast, h1, flow.EthTypeIPv4))
	require.NoError(t, err)
	assert.Empty(t, macs.Entries(1))
}

func TestDiscoveryFramesIgnored(t *testing.T) {
	for _, et := range []flow.EthType{flow.EthTypeLLDP, flow.EthTypeBDDP} {
		t.Run(et.String(), func(t *testing.T) {
			e, fake, macs := setup(t)
			d, err := e.HandlePacketIn(context.Background(), packetIn(t, 4, h4, h1, et))
			require.NoError(t, err)
			assert.True(t, d.Ignored)
			assert.Empty(t, fake.Commands())
			assert.Empty(t, macs.Entries(1))
		})
	}
}

func TestMalformedFrameDropped(t *testing.T) {
	e, fake, macs := setup(t)

	_, err := e.HandlePacketIn(context.Background(), datapath.PacketInEvent{SwitchID: 1, InPort: 1, Data: []byte{0x00, 0x01, 0x02}})
	require.Error(t, err)
	assert.True(t, sdnerrors.Is(err, sdnerrors.ErrMalformedFrame))
	assert.Equal(t, sdnerrors.KindMalformed, sdnerrors.GetKind(err))
	assert.Empty(t, fake.Commands())
	assert.Empty(t, macs.Entries(1))
}

func TestUnknownSwitchSkipped(t *testing.T) {
	e, _, macs := setup(t)
	ev := packetIn(t, 1, h1, h4, flow.EthTypeIPv4)
	ev.SwitchID = 77

	_, err := e.HandlePacketIn(context.Background(), ev)
	assert.True(t, sdnerrors.Is(err, sdnerrors.ErrSwitchNotFound))
	assert.Empty(t, macs.Entries(77))
}

func TestSameSourceAndDestination(t *testing.T) {
	e, fake, _ := setup(t)

	d, err := e.HandlePacketIn(context.Background(), packetIn(t, 2, h2, h2, flow.EthTypeIPv4))
	require.NoError(t, err)
	assert.True(t, d.Installed)
	assert.Equal(t, flow.Port(2), d.Out)
	assert.Len(t, fake.Installed(), 1)
}

func TestTransportErrorsStillPacketOut(t *testing.T) {
	e, fake, _ := setup(t)
	ctx := context.Background()
	_, _ = e.HandlePacketIn(ctx, packetIn(t, 1, h1, h4, flow.EthTypeIPv4))

	fake.FailOn(testutil.OpInstall, errors.New("queue full"))
	_, err := e.HandlePacketIn(ctx, packetIn(t, 4, h4, h1, flow.EthTypeIPv4))
	require.Error(t, err)
	assert.Len(t, fake.PacketOuts(), 2)
}

func TestDecode(t *testing.T) {
	pkt, err := Decode(4, testutil.Frame(t, h4, h1, flow.EthTypeIPv4))
	require.NoError(t, err)
	assert.Equal(t, flow.Packet{InPort: 4, EthSrc: h4, EthDst: h1, EthType: flow.EthTypeIPv4}, pkt)

	_, err = Decode(4, nil)
	assert.Error(t, err)
}

func TestUnadvertisedPortNotLearned(t *testing.T) {
	e, fake, macs := setup(t)
	ctx := context.Background()

	d, err := e.HandlePacketIn(ctx, packetIn(t, 99, h1, h4, flow.EthTypeIPv4))
	require.NoError(t, err)
	assert.True(t, d.UnknownPort)
	assert.Equal(t, flow.PortFlood, d.Out)
	assert.Empty(t, macs.Entries(1))
	assert.Empty(t, fake.Installed())
	require.Len(t, fake.PacketOuts(), 1)

	// h1 stays unknown, so traffic toward it floods instead of using port 99.
	fake.Reset()
	d, err = e.HandlePacketIn(ctx, packetIn(t, 1, h4, h1, flow.EthTypeIPv4))
	require.NoError(t, err)
	assert.False(t, d.Installed)
	assert.Equal(t, flow.PortFlood, d.Out)
	assert.Empty(t, fake.Installed())
}

func TestUnadvertisedPortStillForwardsToKnownHost(t *testing.T) {
	e, fake, _ := setup(t)
	ctx := context.Background()
	_, err := e.HandlePacketIn(ctx, packetIn(t, 2, h2, h4, flow.EthTypeIPv4))
	require.NoError(t, err)
	fake.Reset()

	d, err := e.HandlePacketIn(ctx, packetIn(t, 99, h1, h2, flow.EthTypeIPv4))
	require.NoError(t, err)
	assert.True(t, d.UnknownPort)
	assert.False(t, d.Installed)
	assert.Equal(t, flow.Port(2), d.Out)
	assert.Empty(t, fake.Installed())
	assert.Equal(t, []flow.Action{flow.Output(2)}, fake.PacketOuts()[0].Actions)
}
