// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package flow

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	macA = MustParseMAC("00:00:00:00:00:01")
	macB = MustParseMAC("00:00:00:00:00:02")
)

func TestMatchMatches(t *testing.T) {
	pkt := Packet{InPort: 4, EthSrc: macA, EthDst: macB, EthType: EthTypeIPv4}

	tests := []struct {
		name  string
		match Match
		want  bool
	}{
		{"wildcard", MatchAll(), true},
		{"in_port", Match{InPort: 4}, true},
		{"wrong in_port", Match{InPort: 2}, false},
		{"src and dst", Match{EthSrc: macA, EthDst: macB}, true},
		{"swapped", Match{EthSrc: macB, EthDst: macA}, false},
		{"ipv4 on port", Match{InPort: 4, EthType: EthTypeIPv4}, true},
		{"arp on port", Match{InPort: 4, EthType: EthTypeARP}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.match.Matches(pkt))
		})
	}
}

func TestMatchCovers(t *testing.T) {
	learned := Match{InPort: 4, EthSrc: macA, EthDst: macB}
	block := Match{InPort: 4, EthType: EthTypeIPv4}

	assert.True(t, Match{InPort: 4}.Covers(learned))
	assert.True(t, Match{InPort: 4}.Covers(block))
	assert.False(t, Match{InPort: 2}.Covers(learned))
	assert.True(t, block.Covers(block))
	assert.False(t, block.Covers(learned), "learned rule has no eth_type")
	assert.False(t, learned.Covers(Match{InPort: 4}), "more specific never covers less specific")
	assert.True(t, MatchAll().Covers(learned))
}

func TestMatchOverlaps(t *testing.T) {
	block := Match{InPort: 4, EthType: EthTypeIPv4}
	assert.True(t, block.Overlaps(Match{EthDst: macB}))
	assert.True(t, block.Overlaps(Match{InPort: 4, EthSrc: macA}))
	assert.False(t, block.Overlaps(Match{InPort: 3}))
	assert.False(t, block.Overlaps(Match{EthType: EthTypeARP}))
}

func TestMACGroup(t *testing.T) {
	assert.True(t, Broadcast.IsGroup())
	assert.True(t, MustParseMAC("01:00:5e:00:00:fb").IsGroup())
	assert.True(t, MustParseMAC("33:33:00:00:00:01").IsGroup())
	assert.False(t, macA.IsGroup())
	assert.True(t, MAC{}.IsZero())

	_, err := ParseMAC("00:00:00:00:00:00:00:01")
	assert.Error(t, err)
}

func TestPortNames(t *testing.T) {
	assert.Equal(t, "FLOOD", PortFlood.String())
	assert.Equal(t, "4", Port(4).String())
	assert.True(t, PortController.Reserved())
	assert.False(t, Port(4).Reserved())
	assert.False(t, Port(0).Physical())

	p, err := ParsePort("controller")
	require.NoError(t, err)
	assert.Equal(t, PortController, p)
	p, err = ParsePort("12")
	require.NoError(t, err)
	assert.Equal(t, Port(12), p)
	_, err = ParsePort("eth0")
	assert.Error(t, err)
}

func TestParseEthType(t *testing.T) {
	for in, want := range map[string]EthType{
		"0x0800": EthTypeIPv4,
		"2048":   EthTypeIPv4,
		"ipv4":   EthTypeIPv4,
		"arp":    EthTypeARP,
		"0x88cc": EthTypeLLDP,
	} {
		got, err := ParseEthType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseEthType("0x10000")
	assert.Error(t, err)
	assert.True(t, EthTypeLLDP.Discovery())
	assert.True(t, EthTypeBDDP.Discovery())
	assert.False(t, EthTypeIPv4.Discovery())
}

func TestRuleJSON(t *testing.T) {
	r := Forward(PriorityLearned, Match{InPort: 1, EthSrc: macA, EthDst: macB}, 4)
	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"priority": 1,
		"match": {"in_port": 1, "eth_src": "00:00:00:00:00:01", "eth_dst": "00:00:00:00:00:02"},
		"actions": [{"output": 4}]
	}`, string(data))

	data, err = json.Marshal(TableMiss())
	require.NoError(t, err)
	assert.JSONEq(t, `{"priority":0,"match":{},"actions":[{"output":"CONTROLLER"}]}`, string(data))

	data, err = json.Marshal(Drop(PriorityBlock, Match{InPort: 4, EthType: EthTypeIPv4}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"priority":2,"match":{"in_port":4,"eth_type":"0x0800"},"actions":[]}`, string(data))
}

func TestRuleJSONDecode(t *testing.T) {
	var r Rule
	require.NoError(t, json.Unmarshal([]byte(`{"priority":2,"match":{"in_port":4,"eth_type":"0x0800"},"actions":[]}`), &r))
	assert.Equal(t, Drop(PriorityBlock, Match{InPort: 4, EthType: EthTypeIPv4}).Key(), r.Key())
	assert.True(t, r.IsDrop())

	require.NoError(t, json.Unmarshal([]byte(`{"priority":0,"match":{},"actions":[{"output":"CONTROLLER"}]}`), &r))
	assert.True(t, r.Match.IsWildcard(), "previous match fields are reset")
	assert.Equal(t, []Action{Output(PortController)}, r.Actions)

	var et EthType
	require.NoError(t, json.Unmarshal([]byte(`2054`), &et))
	assert.Equal(t, EthTypeARP, et)
	assert.Error(t, json.Unmarshal([]byte(`"ipx"`), &et))

	var p Port
	require.NoError(t, json.Unmarshal([]byte(`"FLOOD"`), &p))
	assert.Equal(t, PortFlood, p)
	assert.Error(t, json.Unmarshal([]byte(`true`), &p))
}

func TestRuleHelpers(t *testing.T) {
	drop := Drop(PriorityBlock, Match{InPort: 4})
	assert.True(t, drop.IsDrop())
	assert.Equal(t, "priority=2,in_port=4 actions=drop", drop.String())

	fwd := Forward(PriorityLearned, Match{EthDst: macB}, 2)
	assert.False(t, fwd.IsDrop())
	assert.True(t, fwd.SameActions(Forward(PriorityBlock, MatchAll(), 2)))
	assert.False(t, fwd.SameActions(drop))

	clone := fwd.Clone()
	clone.Actions[0] = Output(9)
	assert.Equal(t, Port(2), fwd.Actions[0].Output)
	assert.Equal(t, Key{Priority: PriorityLearned, Match: Match{EthDst: macB}}, fwd.Key())
}
