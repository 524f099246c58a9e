// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package config defines the controller configuration and its loaders.
package config

import (
	"time"

	"grimm.is/sdnlink/internal/flow"
)

// Config is the root configuration.
type Config struct {
	API      *APIConfig      `hcl:"api,block" json:"api,omitempty" yaml:"api,omitempty"`
	Logging  *LoggingConfig  `hcl:"logging,block" json:"logging,omitempty" yaml:"logging,omitempty"`
	Learning *LearningConfig `hcl:"learning,block" json:"learning,omitempty" yaml:"learning,omitempty"`
	Dispatch *DispatchConfig `hcl:"dispatch,block" json:"dispatch,omitempty" yaml:"dispatch,omitempty"`

	// DefaultLink is driven by POST /link/down and /link/up. Optional when
	// exactly one link is configured.
	DefaultLink string       `hcl:"default_link,optional" json:"default_link,omitempty" yaml:"default_link,omitempty"`
	Links       []LinkConfig `hcl:"link,block" json:"links,omitempty" yaml:"links,omitempty"`

	// Topology describes the simulated fabric used by serve --sim.
	Topology *TopologyConfig `hcl:"topology,block" json:"topology,omitempty" yaml:"topology,omitempty"`
}

// APIConfig configures the administrative HTTP listener.
type APIConfig struct {
	Listen string `hcl:"listen,optional" json:"listen,omitempty" yaml:"listen,omitempty"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level string `hcl:"level,optional" json:"level,omitempty" yaml:"level,omitempty"`
	JSON  bool   `hcl:"json,optional" json:"json,omitempty" yaml:"json,omitempty"`
	File  string `hcl:"file,optional" json:"file,omitempty" yaml:"file,omitempty"`
}

// LearningConfig configures the MAC learning table.
type LearningConfig struct {
	// MACTTL expires idle entries, e.g. "5m". Empty or "0" keeps entries for
	// the life of the process.
	MACTTL string `hcl:"mac_ttl,optional" json:"mac_ttl,omitempty" yaml:"mac_ttl,omitempty"`
	// FlushOnDisconnect clears a switch's entries when it disconnects.
	FlushOnDisconnect bool `hcl:"flush_on_disconnect,optional" json:"flush_on_disconnect,omitempty" yaml:"flush_on_disconnect,omitempty"`
}

// TTL returns the parsed MACTTL. Call after Validate.
func (l *LearningConfig) TTL() time.Duration {
	if l == nil || l.MACTTL == "" {
		return 0
	}
	d, err := time.ParseDuration(l.MACTTL)
	if err != nil {
		return 0
	}
	return d
}

// DispatchConfig configures event dispatch.
type DispatchConfig struct {
	QueueDepth int `hcl:"queue_depth,optional" json:"queue_depth,omitempty" yaml:"queue_depth,omitempty"`
}

// LinkConfig declares a managed inter-switch link.
type LinkConfig struct {
	ID      string `hcl:"id,label" json:"id" yaml:"id"`
	SwitchA uint64 `hcl:"switch_a" json:"switch_a" yaml:"switch_a"`
	PortA   uint32 `hcl:"port_a" json:"port_a" yaml:"port_a"`
	SwitchB uint64 `hcl:"switch_b" json:"switch_b" yaml:"switch_b"`
	PortB   uint32 `hcl:"port_b" json:"port_b" yaml:"port_b"`
	// EthType limits the block to one frame type; default "0x0800".
	EthType string `hcl:"ethertype,optional" json:"ethertype,omitempty" yaml:"ethertype,omitempty"`
}

// EtherType returns the parsed EthType. Call after Validate.
func (l LinkConfig) EtherType() flow.EthType {
	t, err := flow.ParseEthType(l.EthType)
	if err != nil || t == 0 {
		return flow.EthTypeIPv4
	}
	return t
}

// TopologyConfig declares simulated switches and hosts. Every configured
// link is also a wire between its two endpoints.
type TopologyConfig struct {
	Switches []SwitchConfig `hcl:"switch,block" json:"switches,omitempty" yaml:"switches,omitempty"`
	Hosts    []HostConfig   `hcl:"host,block" json:"hosts,omitempty" yaml:"hosts,omitempty"`
}

// SwitchConfig is a simulated switch.
type SwitchConfig struct {
	Name  string   `hcl:"name,label" json:"name" yaml:"name"`
	DPID  uint64   `hcl:"dpid" json:"dpid" yaml:"dpid"`
	Ports []uint32 `hcl:"ports" json:"ports" yaml:"ports"`
}

// HostConfig is a simulated host attached to one switch port.
type HostConfig struct {
	Name   string `hcl:"name,label" json:"name" yaml:"name"`
	MAC    string `hcl:"mac" json:"mac" yaml:"mac"`
	IP     string `hcl:"ip,optional" json:"ip,omitempty" yaml:"ip,omitempty"`
	Switch uint64 `hcl:"switch" json:"switch" yaml:"switch"`
	Port   uint32 `hcl:"port" json:"port" yaml:"port"`
}

const (
	DefaultListen   = ":8080"
	DefaultLinkID   = "s1-s2"
	DefaultLogLevel = "info"
)

// ApplyDefaults fills unset blocks and fields.
func (c *Config) ApplyDefaults() {
	if c.API == nil {
		c.API = &APIConfig{}
	}
	if c.API.Listen == "" {
		c.API.Listen = DefaultListen
	}
	if c.Logging == nil {
		c.Logging = &LoggingConfig{}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Learning == nil {
		c.Learning = &LearningConfig{}
	}
	if c.Dispatch == nil {
		c.Dispatch = &DispatchConfig{}
	}
	for i := range c.Links {
		if c.Links[i].EthType == "" {
			c.Links[i].EthType = flow.EthTypeIPv4.String()
		}
	}
	if c.DefaultLink == "" && len(c.Links) == 1 {
		c.DefaultLink = c.Links[0].ID
	}
}

// Default returns the two-switch deployment: hosts h1-h3 on s1 ports 1-3,
// h4 on s2 port 1, and the managed link s1:4 <-> s2:2.
func Default() *Config {
	c := &Config{
		Links: []LinkConfig{{
			ID:      DefaultLinkID,
			SwitchA: 1, PortA: 4,
			SwitchB: 2, PortB: 2,
		}},
		Topology: &TopologyConfig{
			Switches: []SwitchConfig{
				{Name: "s1", DPID: 1, Ports: []uint32{1, 2, 3, 4}},
				{Name: "s2", DPID: 2, Ports: []uint32{1, 2}},
			},
			Hosts: []HostConfig{
				{Name: "h1", MAC: "00:00:00:00:00:01", IP: "10.0.0.1", Switch: 1, Port: 1},
				{Name: "h2", MAC: "00:00:00:00:00:02", IP: "10.0.0.2", Switch: 1, Port: 2},
				{Name: "h3", MAC: "00:00:00:00:00:03", IP: "10.0.0.3", Switch: 1, Port: 3},
				{Name: "h4", MAC: "00:00:00:00:00:04", IP: "10.0.0.4", Switch: 2, Port: 1},
			},
		},
	}
	c.ApplyDefaults()
	return c
}
