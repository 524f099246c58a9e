// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package linkctl forces managed inter-switch links into a blocked or forwarding state.
//
// Blocking installs drop rules above the learned forwarding rules on both
// endpoints; unblocking removes them and installs explicit forwarding rules
// toward the peer for every host currently located across the link.
package linkctl

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/samber/lo"

	"grimm.is/sdnlink/internal/datapath"
	"grimm.is/sdnlink/internal/errors"
	"grimm.is/sdnlink/internal/flow"
	"grimm.is/sdnlink/internal/logging"
	"grimm.is/sdnlink/internal/metrics"
)

const (
	StatusBlocked   = "Link blocked"
	StatusUnblocked = "Link unblocked"
)

// State is the administrative state of a link.
type State int

const (
	// Up means the link forwards traffic (unblocked).
	Up State = iota
	// Down means policy traffic on the link is dropped (blocked).
	Down
)

func (s State) String() string {
	if s == Down {
		return "down"
	}
	return "up"
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "up":
		*s = Up
	case "down":
		*s = Down
	default:
		return fmt.Errorf("invalid link state %q", b)
	}
	return nil
}

// Endpoint is one side of a link.
type Endpoint struct {
	Switch uint64    `json:"switch"`
	Port   flow.Port `json:"port"`
}

func (e Endpoint) String() string { return fmt.Sprintf("%d:%d", e.Switch, e.Port) }

// Link is a managed inter-switch link. EthType selects the traffic the block
// applies to; zero means IPv4.
type Link struct {
	ID      string       `json:"id"`
	A       Endpoint     `json:"a"`
	B       Endpoint     `json:"b"`
	EthType flow.EthType `json:"eth_type"`
}

func (l Link) endpoints() []Endpoint { return []Endpoint{l.A, l.B} }

// Result reports the outcome of Block or Unblock.
type Result struct {
	Link  string `json:"link"`
	State State  `json:"state"`
	// Applied is false when an endpoint was not connected and nothing was changed.
	Applied bool   `json:"applied"`
	Status  string `json:"status"`
}

// Status is a link and its current state.
type Status struct {
	Link
	State State `json:"state"`
}

// Switches resolves connected switches.
type Switches interface {
	Handle(id uint64) (datapath.Handle, error)
	Connected(ids ...uint64) bool
}

// Hosts locates learned hosts.
type Hosts interface {
	HostsOn(sw uint64, port flow.Port) []flow.MAC
}

type managed struct {
	mu    sync.Mutex
	link  Link
	state State
	// allow rules installed by the last Unblock, per switch
	allowed map[uint64][]flow.Match
}

// Controller owns the state of every managed link. Operations on the same
// link are serialized; different links proceed independently.
type Controller struct {
	links       map[string]*managed
	defaultLink string

	switches Switches
	hosts    Hosts
	logger   *logging.Logger
	metrics  *metrics.Metrics
}

// Option configures a Controller.
type Option func(*Controller)

func WithLogger(l *logging.Logger) Option { return func(c *Controller) { c.logger = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(c *Controller) { c.metrics = m } }

// WithDefault sets the link driven by BlockDefault and UnblockDefault.
func WithDefault(id string) Option { return func(c *Controller) { c.defaultLink = id } }

// New validates links and creates a controller with every link Up.
func New(switches Switches, hosts Hosts, links []Link, opts ...Option) (*Controller, error) {
	c := &Controller{
		links:    make(map[string]*managed, len(links)),
		switches: switches,
		hosts:    hosts,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.WithComponent("linkctl")
	}

	for _, l := range links {
		if l.ID == "" {
			return nil, errors.New(errors.KindValidation, "link id is required")
		}
		if _, dup := c.links[l.ID]; dup {
			return nil, errors.Errorf(errors.KindValidation, "duplicate link %q", l.ID)
		}
		if !l.A.Port.Physical() || !l.B.Port.Physical() {
			return nil, errors.Errorf(errors.KindValidation, "link %q: endpoint ports must be physical", l.ID)
		}
		if l.A.Switch == l.B.Switch {
			return nil, errors.Errorf(errors.KindValidation, "link %q: endpoints must be on different switches", l.ID)
		}
		if l.EthType == 0 {
			l.EthType = flow.EthTypeIPv4
		}
		c.links[l.ID] = &managed{link: l, state: Up, allowed: make(map[uint64][]flow.Match)}
	}

	if c.defaultLink == "" && len(links) == 1 {
		c.defaultLink = links[0].ID
	}
	if c.defaultLink != "" {
		if _, ok := c.links[c.defaultLink]; !ok {
			return nil, errors.Errorf(errors.KindValidation, "default link %q is not configured", c.defaultLink)
		}
	}
	return c, nil
}

// DefaultLink returns the id used by BlockDefault and UnblockDefault.
func (c *Controller) DefaultLink() string { return c.defaultLink }

func (c *Controller) get(id string) (*managed, error) {
	m, ok := c.links[id]
	if !ok {
		return nil, errors.LinkNotFound(id)
	}
	return m, nil
}

// BlockDefault blocks the default link.
func (c *Controller) BlockDefault(ctx context.Context) (Result, error) {
	return c.Block(ctx, c.defaultLink)
}

// UnblockDefault unblocks the default link.
func (c *Controller) UnblockDefault(ctx context.Context) (Result, error) {
	return c.Unblock(ctx, c.defaultLink)
}

// Block drops the link's traffic on both endpoints. If either endpoint is not
// connected nothing changes and Applied is false. Transport failures are
// logged and do not fail the call.
func (c *Controller) Block(ctx context.Context, id string) (Result, error) {
	m, err := c.get(id)
	if err != nil {
		return Result{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	res := Result{Link: id, State: m.state, Status: StatusBlocked}
	handles, ok := c.resolve(m.link)
	if !ok {
		c.logger.Info("link endpoints not connected, block skipped", "link", id)
		return res, nil
	}

	for i, ep := range m.link.endpoints() {
		h := handles[i]
		c.try(h.DeleteRule(ctx, flow.Match{InPort: ep.Port}), "link", id, "switch", ep.Switch)
		for _, am := range m.allowed[ep.Switch] {
			c.try(h.DeleteRule(ctx, am), "link", id, "switch", ep.Switch)
		}
		delete(m.allowed, ep.Switch)
		c.try(h.InstallRule(ctx, flow.Drop(flow.PriorityBlock, blockMatch(m.link, ep))), "link", id, "switch", ep.Switch)
	}

	m.state = Down
	c.metrics.LinkState(id, true)
	c.logger.Info("link blocked", "link", id, "a", m.link.A, "b", m.link.B)
	res.State, res.Applied = Down, true
	return res, nil
}

// Unblock removes the drop rules and installs forwarding rules toward the
// peer for hosts learned across the link. Like Block it is a no-op when an
// endpoint is not connected.
func (c *Controller) Unblock(ctx context.Context, id string) (Result, error) {
	m, err := c.get(id)
	if err != nil {
		return Result{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	res := Result{Link: id, State: m.state, Status: StatusUnblocked}
	handles, ok := c.resolve(m.link)
	if !ok {
		c.logger.Info("link endpoints not connected, unblock skipped", "link", id)
		return res, nil
	}

	for i, ep := range m.link.endpoints() {
		h := handles[i]
		c.try(h.DeleteRule(ctx, blockMatch(m.link, ep)), "link", id, "switch", ep.Switch)
		for _, am := range m.allowed[ep.Switch] {
			c.try(h.DeleteRule(ctx, am), "link", id, "switch", ep.Switch)
		}

		var installed []flow.Match
		for _, mac := range c.hosts.HostsOn(ep.Switch, ep.Port) {
			am := flow.Match{EthType: m.link.EthType, EthDst: mac}
			if c.try(h.InstallRule(ctx, flow.Forward(flow.PriorityLearned, am, ep.Port)), "link", id, "switch", ep.Switch) {
				installed = append(installed, am)
			}
		}
		m.allowed[ep.Switch] = installed
	}

	m.state = Up
	c.metrics.LinkState(id, false)
	c.logger.Info("link unblocked", "link", id, "a", m.link.A, "b", m.link.B)
	res.State, res.Applied = Up, true
	return res, nil
}

// State returns the current state of a link.
func (c *Controller) State(id string) (State, error) {
	m, err := c.get(id)
	if err != nil {
		return Up, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, nil
}

// States lists every managed link ordered by id.
func (c *Controller) States() []Status {
	ids := lo.Keys(c.links)
	sort.Strings(ids)

	out := make([]Status, 0, len(ids))
	for _, id := range ids {
		m := c.links[id]
		m.mu.Lock()
		out = append(out, Status{Link: m.link, State: m.state})
		m.mu.Unlock()
	}
	return out
}

func blockMatch(l Link, ep Endpoint) flow.Match {
	return flow.Match{InPort: ep.Port, EthType: l.EthType}
}

func (c *Controller) resolve(l Link) ([]datapath.Handle, bool) {
	if !c.switches.Connected(l.A.Switch, l.B.Switch) {
		return nil, false
	}
	handles := make([]datapath.Handle, 0, 2)
	for _, ep := range l.endpoints() {
		h, err := c.switches.Handle(ep.Switch)
		if err != nil {
			return nil, false
		}
		handles = append(handles, h)
	}
	return handles, true
}

func (c *Controller) try(err error, kv ...any) bool {
	if err == nil {
		return true
	}
	c.logger.WithError(err).Warn("link command failed", kv...)
	return false
}
