// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package flow

import (
	"fmt"
	"strings"
)

// Action is a single output instruction.
type Action struct {
	Output Port `json:"output"`
}

// Output sends the packet to port.
func Output(p Port) Action { return Action{Output: p} }

func (a Action) String() string { return "output:" + a.Output.String() }

// Key identifies a rule within one switch's table.
type Key struct {
	Priority Priority
	Match    Match
}

// Rule is a prioritized match with its actions. No actions means drop.
type Rule struct {
	Priority Priority `json:"priority"`
	Match    Match    `json:"match"`
	Actions  []Action `json:"actions"`
}

// TableMiss is the lowest priority rule that punts every packet to the controller.
func TableMiss() Rule {
	return Rule{Priority: PriorityMiss, Match: MatchAll(), Actions: []Action{Output(PortController)}}
}

// Forward builds a rule that outputs matching packets to port.
func Forward(prio Priority, m Match, port Port) Rule {
	return Rule{Priority: prio, Match: m, Actions: []Action{Output(port)}}
}

// Drop builds a rule with no actions.
func Drop(prio Priority, m Match) Rule {
	return Rule{Priority: prio, Match: m, Actions: []Action{}}
}

func (r Rule) Key() Key { return Key{Priority: r.Priority, Match: r.Match} }

func (r Rule) IsDrop() bool { return len(r.Actions) == 0 }

// SameActions reports whether both rules carry the same action list.
func (r Rule) SameActions(other Rule) bool {
	if len(r.Actions) != len(other.Actions) {
		return false
	}
	for i := range r.Actions {
		if r.Actions[i] != other.Actions[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy that does not share the action slice.
func (r Rule) Clone() Rule {
	r.Actions = append([]Action{}, r.Actions...)
	return r
}

func (r Rule) String() string {
	acts := "drop"
	if !r.IsDrop() {
		s := make([]string, len(r.Actions))
		for i, a := range r.Actions {
			s[i] = a.String()
		}
		acts = strings.Join(s, ",")
	}
	return fmt.Sprintf("priority=%d,%s actions=%s", r.Priority, r.Match, acts)
}
