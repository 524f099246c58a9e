// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package flow

import (
	"encoding/json"
	"strings"
)

// Packet is the header metadata a rule is evaluated against.
type Packet struct {
	InPort  Port
	EthSrc  MAC
	EthDst  MAC
	EthType EthType
}

// Match is a conjunction of header predicates. A zero field is a wildcard.
// Match is comparable and can be used as a map key.
type Match struct {
	InPort  Port
	EthSrc  MAC
	EthDst  MAC
	EthType EthType
}

// MatchAll matches every packet.
func MatchAll() Match { return Match{} }

// IsWildcard reports whether no field is constrained.
func (m Match) IsWildcard() bool { return m == Match{} }

// Matches checks if a packet satisfies every constrained field.
func (m Match) Matches(pkt Packet) bool {
	// 1. Ingress port
	if m.InPort != 0 && m.InPort != pkt.InPort {
		return false
	}

	// 2. Source address
	if !m.EthSrc.IsZero() && m.EthSrc != pkt.EthSrc {
		return false
	}

	// 3. Destination address
	if !m.EthDst.IsZero() && m.EthDst != pkt.EthDst {
		return false
	}

	// 4. Frame type
	if m.EthType != 0 && m.EthType != pkt.EthType {
		return false
	}

	return true
}

// Covers reports whether every field constrained by m is constrained to the
// same value in other, i.e. other is at least as specific as m. This is the
// OpenFlow non-strict delete relation.
func (m Match) Covers(other Match) bool {
	if m.InPort != 0 && m.InPort != other.InPort {
		return false
	}
	if !m.EthSrc.IsZero() && m.EthSrc != other.EthSrc {
		return false
	}
	if !m.EthDst.IsZero() && m.EthDst != other.EthDst {
		return false
	}
	if m.EthType != 0 && m.EthType != other.EthType {
		return false
	}
	return true
}

// Overlaps reports whether some packet satisfies both m and other.
func (m Match) Overlaps(other Match) bool {
	if m.InPort != 0 && other.InPort != 0 && m.InPort != other.InPort {
		return false
	}
	if !m.EthSrc.IsZero() && !other.EthSrc.IsZero() && m.EthSrc != other.EthSrc {
		return false
	}
	if !m.EthDst.IsZero() && !other.EthDst.IsZero() && m.EthDst != other.EthDst {
		return false
	}
	if m.EthType != 0 && other.EthType != 0 && m.EthType != other.EthType {
		return false
	}
	return true
}

func (m Match) String() string {
	if m.IsWildcard() {
		return "*"
	}
	var parts []string
	if m.InPort != 0 {
		parts = append(parts, "in_port="+m.InPort.String())
	}
	if !m.EthSrc.IsZero() {
		parts = append(parts, "eth_src="+m.EthSrc.String())
	}
	if !m.EthDst.IsZero() {
		parts = append(parts, "eth_dst="+m.EthDst.String())
	}
	if m.EthType != 0 {
		parts = append(parts, "eth_type="+m.EthType.String())
	}
	return strings.Join(parts, ",")
}

type matchJSON struct {
	InPort  *Port    `json:"in_port,omitempty"`
	EthSrc  *MAC     `json:"eth_src,omitempty"`
	EthDst  *MAC     `json:"eth_dst,omitempty"`
	EthType *EthType `json:"eth_type,omitempty"`
}

// MarshalJSON omits wildcard fields.
func (m Match) MarshalJSON() ([]byte, error) {
	var out matchJSON
	if m.InPort != 0 {
		out.InPort = &m.InPort
	}
	if !m.EthSrc.IsZero() {
		out.EthSrc = &m.EthSrc
	}
	if !m.EthDst.IsZero() {
		out.EthDst = &m.EthDst
	}
	if m.EthType != 0 {
		out.EthType = &m.EthType
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON; absent fields are wildcards.
func (m *Match) UnmarshalJSON(b []byte) error {
	var in matchJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	*m = Match{}
	if in.InPort != nil {
		m.InPort = *in.InPort
	}
	if in.EthSrc != nil {
		m.EthSrc = *in.EthSrc
	}
	if in.EthDst != nil {
		m.EthDst = *in.EthDst
	}
	if in.EthType != nil {
		m.EthType = *in.EthType
	}
	return nil
}
