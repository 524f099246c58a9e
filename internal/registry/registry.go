// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package registry tracks connected switches and their command handles.
package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"grimm.is/sdnlink/internal/datapath"
	"grimm.is/sdnlink/internal/errors"
	"grimm.is/sdnlink/internal/flow"
	"grimm.is/sdnlink/internal/flowstore"
	"grimm.is/sdnlink/internal/logging"
	"grimm.is/sdnlink/internal/metrics"
)

// Switch is a registered datapath.
type Switch struct {
	ID          uint64
	Handle      datapath.Handle
	Ports       []flow.Port
	ConnectedAt time.Time
}

// Info is the externally visible part of a Switch.
type Info struct {
	ID          uint64      `json:"id"`
	Ports       []flow.Port `json:"ports"`
	ConnectedAt time.Time   `json:"connected_at"`
	Rules       int         `json:"rules"`
}

// Registry maps datapath ids to switches. The lock guards the map only;
// commands on a handle are issued without holding it.
type Registry struct {
	mu       sync.RWMutex
	switches map[uint64]*Switch

	flows   *flowstore.Store
	logger  *logging.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

func WithLogger(l *logging.Logger) Option { return func(r *Registry) { r.logger = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(r *Registry) { r.metrics = m } }

// New creates an empty registry whose handles are recorded into flows.
func New(flows *flowstore.Store, opts ...Option) *Registry {
	r := &Registry{
		switches: make(map[uint64]*Switch),
		flows:    flows,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logging.WithComponent("registry")
	}
	return r
}

// OnConnect registers the switch, replacing any previous handle for the same
// id, then installs the table-miss rule before returning. A reconnect starts
// from an empty bookkept table. The switch stays registered if the table-miss
// install fails; the error is returned for logging.
func (r *Registry) OnConnect(ctx context.Context, id uint64, h datapath.Handle, ports []flow.Port) error {
	sw := &Switch{
		ID:          id,
		Ports:       lo.Uniq(lo.Filter(ports, func(p flow.Port, _ int) bool { return p.Physical() })),
		ConnectedAt: r.now(),
	}
	sort.Slice(sw.Ports, func(i, j int) bool { return sw.Ports[i] < sw.Ports[j] })

	r.mu.Lock()
	_, reconnect := r.switches[id]
	if reconnect {
		r.flows.Forget(id)
	}
	wrapped := r.flows.Wrap(id, h)
	sw.Handle = wrapped
	r.switches[id] = sw
	r.mu.Unlock()

	if !reconnect {
		r.metrics.SwitchConnected()
	}
	r.logger.Info("switch connected", "switch", id, "ports", len(sw.Ports), "reconnect", reconnect)

	if err := wrapped.InstallRule(ctx, flow.TableMiss()); err != nil {
		r.logger.WithError(err).Warn("table-miss install failed", "switch", id)
		return err
	}
	return nil
}

// OnDisconnect removes the switch and its bookkept rules. Reports whether it was known.
func (r *Registry) OnDisconnect(id uint64) bool {
	r.mu.Lock()
	_, ok := r.switches[id]
	delete(r.switches, id)
	r.mu.Unlock()

	if !ok {
		return false
	}
	r.flows.Forget(id)
	r.metrics.SwitchDisconnected()
	r.logger.Info("switch disconnected", "switch", id)
	return true
}

// Get returns the switch or an error wrapping errors.ErrSwitchNotFound.
func (r *Registry) Get(id uint64) (*Switch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sw, ok := r.switches[id]
	if !ok {
		return nil, errors.SwitchNotFound(id)
	}
	return sw, nil
}

// Handle returns the recording handle of a connected switch.
func (r *Registry) Handle(id uint64) (datapath.Handle, error) {
	sw, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	return sw.Handle, nil
}

// HasPort reports whether the switch is registered and advertised port on connect.
func (r *Registry) HasPort(id uint64, port flow.Port) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sw, ok := r.switches[id]
	if !ok {
		return false
	}
	i := sort.Search(len(sw.Ports), func(i int) bool { return sw.Ports[i] >= port })
	return i < len(sw.Ports) && sw.Ports[i] == port
}

// Connected reports whether every id is registered.
func (r *Registry) Connected(ids ...uint64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.EveryBy(ids, func(id uint64) bool {
		_, ok := r.switches[id]
		return ok
	})
}

// List returns every registered switch ordered by id.
func (r *Registry) List() []Info {
	r.mu.RLock()
	all := lo.Values(r.switches)
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return lo.Map(all, func(sw *Switch, _ int) Info {
		return Info{
			ID:          sw.ID,
			Ports:       append([]flow.Port{}, sw.Ports...),
			ConnectedAt: sw.ConnectedAt,
			Rules:       r.flows.Len(sw.ID),
		}
	})
}

// Len returns the number of registered switches.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.switches)
}
