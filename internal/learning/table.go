// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package learning maintains the per-switch host address to port table.
package learning

import (
	"bytes"
	"sort"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"grimm.is/sdnlink/internal/flow"
)

// Entry is a learned host location.
type Entry struct {
	MAC  flow.MAC  `json:"mac"`
	Port flow.Port `json:"port"`
}

// Option configures a Table.
type Option func(*Table)

// WithTTL expires entries that have not been refreshed for d. Zero disables expiry.
func WithTTL(d time.Duration) Option {
	return func(t *Table) { t.ttl = d }
}

// Table partitions entries by switch. Each partition has its own lock so
// learning on one switch never waits on another.
type Table struct {
	mu    sync.RWMutex
	parts map[uint64]*partition
	ttl   time.Duration
}

type partition struct {
	mu      sync.Mutex
	entries *ttlcache.Cache[flow.MAC, flow.Port]
}

// New creates an empty table.
func New(opts ...Option) *Table {
	t := &Table{parts: make(map[uint64]*partition)}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Table) partition(sw uint64, create bool) *partition {
	t.mu.RLock()
	p, ok := t.parts[sw]
	t.mu.RUnlock()
	if ok || !create {
		return p
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok = t.parts[sw]; !ok {
		p = &partition{entries: ttlcache.New[flow.MAC, flow.Port](
			ttlcache.WithTTL[flow.MAC, flow.Port](t.ttl),
			ttlcache.WithDisableTouchOnHit[flow.MAC, flow.Port](),
		)}
		t.parts[sw] = p
	}
	return p
}

func learnable(mac flow.MAC, port flow.Port) bool {
	return !mac.IsZero() && !mac.IsGroup() && port.Physical()
}

// Learn records that mac was last seen on port of sw. Group addresses and
// logical ports are ignored. Returns true if the entry is new or moved.
func (t *Table) Learn(sw uint64, mac flow.MAC, port flow.Port) bool {
	if !learnable(mac, port) {
		return false
	}
	p := t.partition(sw, true)
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.learn(mac, port)
}

func (p *partition) learn(mac flow.MAC, port flow.Port) bool {
	prev, ok := p.get(mac)
	p.entries.Set(mac, port, ttlcache.DefaultTTL)
	return !ok || prev != port
}

func (p *partition) get(mac flow.MAC) (flow.Port, bool) {
	item := p.entries.Get(mac)
	if item == nil || item.IsExpired() {
		return 0, false
	}
	return item.Value(), true
}

// Lookup returns the port mac was last seen on at sw.
func (t *Table) Lookup(sw uint64, mac flow.MAC) (flow.Port, bool) {
	if mac.IsGroup() {
		return 0, false
	}
	p := t.partition(sw, false)
	if p == nil {
		return 0, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.get(mac)
}

// Update learns src on inPort and resolves dst in one step under the switch's
// partition lock. Group destinations are never resolved.
func (t *Table) Update(sw uint64, src flow.MAC, inPort flow.Port, dst flow.MAC) (flow.Port, bool) {
	p := t.partition(sw, true)
	p.mu.Lock()
	defer p.mu.Unlock()

	if learnable(src, inPort) {
		p.learn(src, inPort)
	}
	if dst.IsGroup() {
		return 0, false
	}
	return p.get(dst)
}

// HostsOn lists addresses currently located behind port of sw.
func (t *Table) HostsOn(sw uint64, port flow.Port) []flow.MAC {
	var out []flow.MAC
	for _, e := range t.Entries(sw) {
		if e.Port == port {
			out = append(out, e.MAC)
		}
	}
	return out
}

// Entries returns the live entries of sw ordered by address.
func (t *Table) Entries(sw uint64) []Entry {
	p := t.partition(sw, false)
	if p == nil {
		return nil
	}
	p.mu.Lock()
	items := p.entries.Items()
	p.mu.Unlock()

	out := make([]Entry, 0, len(items))
	for mac, item := range items {
		if item.IsExpired() {
			continue
		}
		out = append(out, Entry{MAC: mac, Port: item.Value()})
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].MAC[:], out[j].MAC[:]) < 0 })
	return out
}

// Forget removes a single address from sw.
func (t *Table) Forget(sw uint64, mac flow.MAC) {
	if p := t.partition(sw, false); p != nil {
		p.mu.Lock()
		p.entries.Delete(mac)
		p.mu.Unlock()
	}
}

// Flush drops everything learned on sw.
func (t *Table) Flush(sw uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.parts, sw)
}

// Len counts live entries across all switches.
func (t *Table) Len() int {
	t.mu.RLock()
	ids := make([]uint64, 0, len(t.parts))
	for id := range t.parts {
		ids = append(ids, id)
	}
	t.mu.RUnlock()

	n := 0
	for _, id := range ids {
		n += len(t.Entries(id))
	}
	return n
}
