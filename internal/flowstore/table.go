// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package flowstore tracks the flow rules installed on each switch.
package flowstore

import (
	"sort"
	"sync"

	"grimm.is/sdnlink/internal/flow"
)

// Table is one switch's rule table. At most one rule exists per (priority, match).
type Table struct {
	mu    sync.RWMutex
	rules map[flow.Key]entry
	seq   uint64
}

type entry struct {
	rule flow.Rule
	seq  uint64
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{rules: make(map[flow.Key]entry)}
}

// Install adds a rule. A rule with the same priority and match is replaced in
// place and keeps its original installation order. Reports whether a rule was replaced.
func (t *Table) Install(r flow.Rule) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := r.Key()
	if old, ok := t.rules[k]; ok {
		t.rules[k] = entry{rule: r.Clone(), seq: old.seq}
		return true
	}
	t.seq++
	t.rules[k] = entry{rule: r.Clone(), seq: t.seq}
	return false
}

// Delete removes every rule whose match is covered by m, regardless of
// priority, and returns the removed rules in table order.
func (t *Table) Delete(m flow.Match) []flow.Rule {
	t.mu.Lock()
	defer t.mu.Unlock()

	var removed []entry
	for k, e := range t.rules {
		if m.Covers(k.Match) {
			removed = append(removed, e)
			delete(t.rules, k)
		}
	}
	return sortEntries(removed)
}

// DeleteStrict removes only the rule with exactly this priority and match.
func (t *Table) DeleteStrict(prio flow.Priority, m flow.Match) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := flow.Key{Priority: prio, Match: m}
	if _, ok := t.rules[k]; !ok {
		return false
	}
	delete(t.rules, k)
	return true
}

// Lookup returns the rule a packet would hit: the highest priority match,
// earliest installed on ties.
func (t *Table) Lookup(pkt flow.Packet) (flow.Rule, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var (
		best  entry
		found bool
	)
	for k, e := range t.rules {
		if !k.Match.Matches(pkt) {
			continue
		}
		if !found || k.Priority > best.rule.Priority ||
			(k.Priority == best.rule.Priority && e.seq < best.seq) {
			best, found = e, true
		}
	}
	if !found {
		return flow.Rule{}, false
	}
	return best.rule.Clone(), true
}

// Get returns the rule with exactly this priority and match.
func (t *Table) Get(prio flow.Priority, m flow.Match) (flow.Rule, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.rules[flow.Key{Priority: prio, Match: m}]
	if !ok {
		return flow.Rule{}, false
	}
	return e.rule.Clone(), true
}

// Rules returns a snapshot ordered by descending priority, then installation order.
func (t *Table) Rules() []flow.Rule {
	t.mu.RLock()
	defer t.mu.RUnlock()

	all := make([]entry, 0, len(t.rules))
	for _, e := range t.rules {
		all = append(all, e)
	}
	return sortEntries(all)
}

// Len returns the number of rules.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rules)
}

// Clear removes every rule.
func (t *Table) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rules = make(map[flow.Key]entry)
}

// Conflict is a pair of equal-priority rules that overlap but act differently.
// Which one a packet hits depends on installation order.
type Conflict struct {
	First  flow.Rule `json:"first"`
	Second flow.Rule `json:"second"`
}

// Conflicts reports ambiguous rule pairs.
func (t *Table) Conflicts() []Conflict {
	rules := t.Rules()

	var out []Conflict
	for i := 0; i < len(rules); i++ {
		for j := i + 1; j < len(rules); j++ {
			a, b := rules[i], rules[j]
			if a.Priority != b.Priority {
				break
			}
			if a.Match.Overlaps(b.Match) && !a.SameActions(b) {
				out = append(out, Conflict{First: a, Second: b})
			}
		}
	}
	return out
}

func sortEntries(es []entry) []flow.Rule {
	sort.Slice(es, func(i, j int) bool {
		if es[i].rule.Priority != es[j].rule.Priority {
			return es[i].rule.Priority > es[j].rule.Priority
		}
		return es[i].seq < es[j].seq
	})
	out := make([]flow.Rule, len(es))
	for i, e := range es {
		out[i] = e.rule.Clone()
	}
	return out
}
