// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/sdnlink/internal/api"
	"grimm.is/sdnlink/internal/config"
	"grimm.is/sdnlink/internal/controller"
	"grimm.is/sdnlink/internal/linkctl"
	"grimm.is/sdnlink/internal/logging"
	"grimm.is/sdnlink/internal/sim"
)

func newTestClient(t *testing.T, connect bool) *Client {
	t.Helper()
	cfg := config.Default()
	ctl, err := controller.New(cfg, controller.WithLogger(logging.Nop()))
	require.NoError(t, err)
	t.Cleanup(ctl.Close)

	if connect {
		n, err := sim.FromConfig(cfg.Topology, cfg.Links, ctl.Sync(), sim.WithLogger(logging.Nop()))
		require.NoError(t, err)
		require.NoError(t, n.Connect(context.Background()))
	}

	srv, err := api.NewServer(api.ServerOptions{
		Links:    ctl.Links(),
		Switches: ctl.Switches(),
		Flows:    ctl.Flows(),
		MACs:     ctl.MACs(),
		Metrics:  ctl.Metrics().Handler(),
		Logger:   logging.Nop(),
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return NewClient(ts.URL + "/")
}

func TestRunLink(t *testing.T) {
	c := newTestClient(t, true)
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, RunLink(ctx, &out, c, "", true))
	assert.Equal(t, "s1-s2: Link blocked\n", out.String())

	out.Reset()
	require.NoError(t, RunLink(ctx, &out, c, config.DefaultLinkID, false))
	assert.Equal(t, "s1-s2: Link unblocked\n", out.String())
}

func TestRunLinkNotApplied(t *testing.T) {
	c := newTestClient(t, false)

	var out bytes.Buffer
	require.NoError(t, RunLink(context.Background(), &out, c, "", true))
	assert.Contains(t, out.String(), "s1-s2: Link blocked")
	assert.Contains(t, out.String(), "not applied")
}

func TestRunLinkUnknown(t *testing.T) {
	c := newTestClient(t, true)

	err := RunLink(context.Background(), &bytes.Buffer{}, c, "nope", true)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.NotEmpty(t, apiErr.Message)
}

func TestClientDecodesReplies(t *testing.T) {
	c := newTestClient(t, true)
	ctx := context.Background()

	_, err := c.SetLink(ctx, "", true)
	require.NoError(t, err)

	links, err := c.Links(ctx)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultLinkID, links.Default)
	require.Len(t, links.Links, 1)
	assert.Equal(t, linkctl.Down, links.Links[0].State)
	assert.Equal(t, uint64(1), links.Links[0].A.Switch)

	switches, err := c.Switches(ctx)
	require.NoError(t, err)
	require.Len(t, switches.Switches, 2)
	assert.Equal(t, uint64(1), switches.Switches[0].ID)
	assert.Len(t, switches.Switches[0].Ports, 4)
}

func TestRunStatus(t *testing.T) {
	c := newTestClient(t, true)
	ctx := context.Background()
	_, err := c.SetLink(ctx, "", true)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, RunStatus(ctx, &out, c))
	s := out.String()
	assert.Contains(t, s, "s1-s2*")
	assert.Contains(t, s, "1:4")
	assert.Contains(t, s, "2:2")
	assert.Contains(t, s, "down")
	assert.Contains(t, s, "SWITCH")
}

func TestRunStatusUnreachable(t *testing.T) {
	c := NewClient("http://127.0.0.1:1")
	err := RunStatus(context.Background(), &bytes.Buffer{}, c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to reach controller")
}

func TestRunMenu(t *testing.T) {
	c := newTestClient(t, true)

	choices := []string{menuDown, "bogus", menuUp, menuExit}
	var asked int
	choose := func(link string) (string, error) {
		assert.Equal(t, "", link)
		next := choices[asked]
		asked++
		return next, nil
	}

	var out bytes.Buffer
	require.NoError(t, RunMenu(context.Background(), &out, c, "", choose))
	assert.Equal(t, len(choices), asked)
	s := out.String()
	assert.Contains(t, s, "Link blocked")
	assert.Contains(t, s, `unknown choice "bogus"`)
	assert.Contains(t, s, "Link unblocked")
	assert.Contains(t, s, "Goodbye!")
}

func TestRunMenuKeepsGoingOnError(t *testing.T) {
	c := newTestClient(t, true)

	choices := []string{menuDown, menuExit}
	var asked int
	choose := func(string) (string, error) {
		next := choices[asked]
		asked++
		return next, nil
	}

	var out bytes.Buffer
	require.NoError(t, RunMenu(context.Background(), &out, c, "nope", choose))
	assert.Contains(t, out.String(), "error:")
	assert.Contains(t, out.String(), "Goodbye!")
}

func TestLoadConfigDefault(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, config.DefaultLinkID, cfg.DefaultLink)
}
