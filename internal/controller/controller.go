// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package controller assembles the control plane from a config: switch
// registry, MAC learning, forwarding, link control and event dispatch.
package controller

import (
	"context"

	"grimm.is/sdnlink/internal/config"
	"grimm.is/sdnlink/internal/datapath"
	"grimm.is/sdnlink/internal/dispatch"
	"grimm.is/sdnlink/internal/errors"
	"grimm.is/sdnlink/internal/flow"
	"grimm.is/sdnlink/internal/flowstore"
	"grimm.is/sdnlink/internal/forwarding"
	"grimm.is/sdnlink/internal/learning"
	"grimm.is/sdnlink/internal/linkctl"
	"grimm.is/sdnlink/internal/logging"
	"grimm.is/sdnlink/internal/metrics"
	"grimm.is/sdnlink/internal/registry"
)

// Controller is the assembled control plane. It is a datapath.Sink.
type Controller struct {
	logger  *logging.Logger
	metrics *metrics.Metrics

	flows    *flowstore.Store
	switches *registry.Registry
	macs     *learning.Table
	engine   *forwarding.Engine
	links    *linkctl.Controller
	events   *dispatch.Dispatcher

	flushOnDisconnect bool
}

var _ datapath.Sink = (*Controller)(nil)

// Option configures a Controller.
type Option func(*Controller)

func WithLogger(l *logging.Logger) Option { return func(c *Controller) { c.logger = l } }

// WithMetrics replaces the metrics set created by New.
func WithMetrics(m *metrics.Metrics) Option { return func(c *Controller) { c.metrics = m } }

// New builds a controller from cfg. cfg must have been validated.
func New(cfg *config.Config, opts ...Option) (*Controller, error) {
	if cfg == nil {
		return nil, errors.New(errors.KindValidation, "config is required")
	}
	c := &Controller{}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.Default()
	}
	if c.metrics == nil {
		c.metrics = metrics.New()
	}

	var (
		ttl        = cfg.Learning.TTL()
		queueDepth int
	)
	if cfg.Learning != nil {
		c.flushOnDisconnect = cfg.Learning.FlushOnDisconnect
	}
	if cfg.Dispatch != nil {
		queueDepth = cfg.Dispatch.QueueDepth
	}

	c.flows = flowstore.New(c.metrics)
	c.switches = registry.New(c.flows,
		registry.WithLogger(c.logger.WithComponent("registry")),
		registry.WithMetrics(c.metrics),
	)
	c.macs = learning.New(learning.WithTTL(ttl))
	c.engine = forwarding.New(c.switches, c.macs,
		forwarding.WithLogger(c.logger.WithComponent("forwarding")),
		forwarding.WithMetrics(c.metrics),
	)

	links, err := linkctl.New(c.switches, c.macs, linksFromConfig(cfg.Links),
		linkctl.WithDefault(cfg.DefaultLink),
		linkctl.WithLogger(c.logger.WithComponent("linkctl")),
		linkctl.WithMetrics(c.metrics),
	)
	if err != nil {
		return nil, err
	}
	c.links = links

	c.events = dispatch.New(
		dispatch.WithQueueDepth(queueDepth),
		dispatch.WithLogger(c.logger.WithComponent("dispatch")),
		dispatch.WithMetrics(c.metrics),
	)
	c.events.Register(datapath.EventConnect, c.onConnect)
	c.events.Register(datapath.EventDisconnect, c.onDisconnect)
	c.events.Register(datapath.EventPacketIn, c.onPacketIn)

	c.metrics.RegisterGauge("mac_entries", "Learned host locations across all switches.", func() float64 {
		return float64(c.macs.Len())
	})

	c.logger.Info("controller ready",
		"links", len(cfg.Links),
		"default_link", links.DefaultLink(),
		"mac_ttl", ttl.String(),
	)
	return c, nil
}

func linksFromConfig(in []config.LinkConfig) []linkctl.Link {
	out := make([]linkctl.Link, 0, len(in))
	for _, l := range in {
		out = append(out, linkctl.Link{
			ID:      l.ID,
			A:       linkctl.Endpoint{Switch: l.SwitchA, Port: flow.Port(l.PortA)},
			B:       linkctl.Endpoint{Switch: l.SwitchB, Port: flow.Port(l.PortB)},
			EthType: l.EtherType(),
		})
	}
	return out
}

// Submit queues an event on its switch's worker.
func (c *Controller) Submit(ctx context.Context, ev datapath.Event) error {
	return c.events.Submit(ctx, ev)
}

// Process handles an event on the calling goroutine and returns the
// handler's error.
func (c *Controller) Process(ctx context.Context, ev datapath.Event) error {
	return c.events.Process(ctx, ev)
}

// Sync returns a sink that processes events inline.
func (c *Controller) Sync() datapath.Sink { return datapath.SinkFunc(c.Process) }

// Close drains queued events and stops the workers.
func (c *Controller) Close() { c.events.Close() }

func (c *Controller) Links() *linkctl.Controller   { return c.links }
func (c *Controller) Switches() *registry.Registry { return c.switches }
func (c *Controller) MACs() *learning.Table        { return c.macs }
func (c *Controller) Flows() *flowstore.Store      { return c.flows }
func (c *Controller) Metrics() *metrics.Metrics    { return c.metrics }
func (c *Controller) Engine() *forwarding.Engine   { return c.engine }

func (c *Controller) onConnect(ctx context.Context, ev datapath.Event) error {
	e, ok := ev.(datapath.ConnectEvent)
	if !ok {
		return unexpected(ev)
	}
	return c.switches.OnConnect(ctx, e.SwitchID, e.Handle, e.Ports)
}

func (c *Controller) onDisconnect(_ context.Context, ev datapath.Event) error {
	if !c.switches.OnDisconnect(ev.Switch()) {
		return errors.SwitchNotFound(ev.Switch())
	}
	if c.flushOnDisconnect {
		c.macs.Flush(ev.Switch())
	}
	return nil
}

func (c *Controller) onPacketIn(ctx context.Context, ev datapath.Event) error {
	e, ok := ev.(datapath.PacketInEvent)
	if !ok {
		return unexpected(ev)
	}
	_, err := c.engine.HandlePacketIn(ctx, e)
	return err
}

func unexpected(ev datapath.Event) error {
	return errors.Errorf(errors.KindInternal, "unexpected %T for %s", ev, ev.Kind())
}
