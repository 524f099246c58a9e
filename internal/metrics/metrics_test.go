// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/sdnlink/internal/flow"
)

func TestCounters(t *testing.T) {
	m := New()

	m.PacketIn(1)
	m.PacketIn(1)
	m.Flood(2)
	m.MalformedFrame()
	m.RuleInstalled(1, flow.PriorityBlock)
	m.RulesDeleted(1, 3)
	m.RulesDeleted(1, 0)
	m.TransportFailed("install")
	m.SwitchConnected()
	m.SwitchConnected()
	m.SwitchDisconnected()
	m.LinkState("s1-s2", true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.packetIn.WithLabelValues("1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.floods.WithLabelValues("2")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.malformed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rulesInstalled.WithLabelValues("1", "2")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.rulesDeleted.WithLabelValues("1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transportErrors.WithLabelValues("install")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.switches))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.linkBlocked.WithLabelValues("s1-s2")))

	m.LinkState("s1-s2", false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.linkBlocked.WithLabelValues("s1-s2")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.linkTransitions.WithLabelValues("s1-s2", "up")))
}

func TestNilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.PacketIn(1)
		m.RuleInstalled(1, flow.PriorityMiss)
		m.LinkState("x", true)
		m.RegisterGauge("x", "x", func() float64 { return 0 })
		m.HandlerPanic()
	})
	assert.Nil(t, m.Registry())
}

func TestHandlerExposition(t *testing.T) {
	m := New()
	m.RegisterGauge("mac_entries", "Learned host entries.", func() float64 { return 7 })
	m.PacketIn(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `sdnlink_packet_in_total{switch="3"} 1`)
	assert.Contains(t, string(body), "sdnlink_mac_entries 7")
}
