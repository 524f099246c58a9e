// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package flowstore

import (
	"context"
	"sort"
	"sync"

	"grimm.is/sdnlink/internal/datapath"
	"grimm.is/sdnlink/internal/errors"
	"grimm.is/sdnlink/internal/flow"
)

// Observer is notified after rule changes reach the transport.
type Observer interface {
	RuleInstalled(sw uint64, prio flow.Priority)
	RulesDeleted(sw uint64, n int)
	TransportFailed(op string)
}

// Store holds the controller-side view of every switch's rules.
type Store struct {
	mu       sync.RWMutex
	tables   map[uint64]*Table
	observer Observer
}

// New returns an empty store. observer may be nil.
func New(observer Observer) *Store {
	return &Store{tables: make(map[uint64]*Table), observer: observer}
}

// Table returns the table for sw, creating it if needed.
func (s *Store) Table(sw uint64) *Table {
	s.mu.RLock()
	t, ok := s.tables[sw]
	s.mu.RUnlock()
	if ok {
		return t
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok = s.tables[sw]; !ok {
		t = NewTable()
		s.tables[sw] = t
	}
	return t
}

// Install records r on sw.
func (s *Store) Install(sw uint64, r flow.Rule) bool { return s.Table(sw).Install(r) }

// Delete removes rules on sw covered by m.
func (s *Store) Delete(sw uint64, m flow.Match) []flow.Rule {
	t, ok := s.lookup(sw)
	if !ok {
		return nil
	}
	return t.Delete(m)
}

// Rules returns the rules recorded for sw.
func (s *Store) Rules(sw uint64) ([]flow.Rule, error) {
	t, ok := s.lookup(sw)
	if !ok {
		return nil, errors.SwitchNotFound(sw)
	}
	return t.Rules(), nil
}

// Len returns the number of rules recorded for sw.
func (s *Store) Len(sw uint64) int {
	t, ok := s.lookup(sw)
	if !ok {
		return 0
	}
	return t.Len()
}

// Forget drops everything recorded for sw.
func (s *Store) Forget(sw uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tables, sw)
}

// Switches lists switches with a table, ascending.
func (s *Store) Switches() []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]uint64, 0, len(s.tables))
	for id := range s.tables {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *Store) lookup(sw uint64) (*Table, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[sw]
	return t, ok
}

// Wrap returns a Handle that mirrors successful rule commands on h into the store.
func (s *Store) Wrap(sw uint64, h datapath.Handle) datapath.Handle {
	s.Table(sw)
	return &recorder{sw: sw, next: h, store: s}
}

type recorder struct {
	sw    uint64
	next  datapath.Handle
	store *Store
}

func (r *recorder) InstallRule(ctx context.Context, rule flow.Rule) error {
	if err := r.next.InstallRule(ctx, rule); err != nil {
		r.failed("install")
		return errors.Transport(err, "install", r.sw)
	}
	r.store.Install(r.sw, rule)
	if r.store.observer != nil {
		r.store.observer.RuleInstalled(r.sw, rule.Priority)
	}
	return nil
}

func (r *recorder) DeleteRule(ctx context.Context, m flow.Match) error {
	if err := r.next.DeleteRule(ctx, m); err != nil {
		r.failed("delete")
		return errors.Transport(err, "delete", r.sw)
	}
	removed := r.store.Delete(r.sw, m)
	if r.store.observer != nil {
		r.store.observer.RulesDeleted(r.sw, len(removed))
	}
	return nil
}

func (r *recorder) PacketOut(ctx context.Context, inPort flow.Port, actions []flow.Action, data []byte) error {
	if err := r.next.PacketOut(ctx, inPort, actions, data); err != nil {
		r.failed("packet_out")
		return errors.Transport(err, "packet_out", r.sw)
	}
	return nil
}

func (r *recorder) failed(op string) {
	if r.store.observer != nil {
		r.store.observer.TransportFailed(op)
	}
}
