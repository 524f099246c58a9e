// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"fmt"
	"net"
	"time"

	"grimm.is/sdnlink/internal/errors"
	"grimm.is/sdnlink/internal/flow"
	"grimm.is/sdnlink/internal/logging"
)

// ValidationErrors collects every problem found in a config.
type ValidationErrors []error

func (v ValidationErrors) Error() string {
	switch len(v) {
	case 0:
		return "no errors"
	case 1:
		return v[0].Error()
	}
	return fmt.Sprintf("%s (and %d more)", v[0].Error(), len(v)-1)
}

func (v ValidationErrors) Unwrap() []error { return v }

func invalid(field, format string, args ...any) error {
	return errors.Attr(errors.Errorf(errors.KindValidation, format, args...), "field", field)
}

// Validate checks the config for consistency. It returns a KindValidation
// error wrapping ValidationErrors.
func (c *Config) Validate() error {
	var errs ValidationErrors

	if c.Logging != nil {
		if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
			errs = append(errs, invalid("logging.level", "%v", err))
		}
	}
	if c.Learning != nil && c.Learning.MACTTL != "" {
		if d, err := time.ParseDuration(c.Learning.MACTTL); err != nil || d < 0 {
			errs = append(errs, invalid("learning.mac_ttl", "invalid duration %q", c.Learning.MACTTL))
		}
	}
	if c.Dispatch != nil && c.Dispatch.QueueDepth < 0 {
		errs = append(errs, invalid("dispatch.queue_depth", "must not be negative"))
	}

	errs = append(errs, c.validateLinks()...)
	errs = append(errs, c.validateTopology()...)

	if len(errs) == 0 {
		return nil
	}
	return errors.Wrap(errs, errors.KindValidation, "invalid configuration")
}

func (c *Config) validateLinks() []error {
	var errs []error
	seen := make(map[string]bool)
	for _, l := range c.Links {
		field := fmt.Sprintf("link.%s", l.ID)
		if l.ID == "" {
			errs = append(errs, invalid("link", "link id is required"))
			continue
		}
		if seen[l.ID] {
			errs = append(errs, invalid(field, "duplicate link %q", l.ID))
		}
		seen[l.ID] = true

		if l.SwitchA == 0 || l.SwitchB == 0 {
			errs = append(errs, invalid(field, "switch ids must be non-zero"))
		}
		if l.SwitchA == l.SwitchB {
			errs = append(errs, invalid(field, "endpoints must be on different switches"))
		}
		for _, p := range []uint32{l.PortA, l.PortB} {
			if !flow.Port(p).Physical() {
				errs = append(errs, invalid(field, "port %d is not a physical port", p))
			}
		}
		if l.EthType != "" {
			if _, err := flow.ParseEthType(l.EthType); err != nil {
				errs = append(errs, invalid(field+".ethertype", "%v", err))
			}
		}
	}

	if c.DefaultLink != "" && !seen[c.DefaultLink] {
		errs = append(errs, invalid("default_link", "link %q is not configured", c.DefaultLink))
	}
	return errs
}

func (c *Config) validateTopology() []error {
	t := c.Topology
	if t == nil {
		return nil
	}

	var errs []error
	ports := make(map[uint64]map[uint32]string)
	names := make(map[string]bool)

	for _, sw := range t.Switches {
		field := "topology.switch." + sw.Name
		if names[sw.Name] {
			errs = append(errs, invalid(field, "duplicate name %q", sw.Name))
		}
		names[sw.Name] = true
		if sw.DPID == 0 {
			errs = append(errs, invalid(field, "dpid must be non-zero"))
		}
		if _, dup := ports[sw.DPID]; dup {
			errs = append(errs, invalid(field, "duplicate dpid %d", sw.DPID))
		}
		ports[sw.DPID] = make(map[uint32]string)
		for _, p := range sw.Ports {
			if !flow.Port(p).Physical() {
				errs = append(errs, invalid(field, "port %d is not a physical port", p))
			}
			ports[sw.DPID][p] = ""
		}
	}

	attach := func(owner, field string, sw uint64, port uint32) {
		swPorts, ok := ports[sw]
		if !ok {
			errs = append(errs, invalid(field, "switch %d is not in the topology", sw))
			return
		}
		prev, ok := swPorts[port]
		if !ok {
			errs = append(errs, invalid(field, "switch %d has no port %d", sw, port))
			return
		}
		if prev != "" {
			errs = append(errs, invalid(field, "port %d:%d already used by %s", sw, port, prev))
			return
		}
		swPorts[port] = owner
	}

	macs := make(map[flow.MAC]string)
	for _, h := range t.Hosts {
		field := "topology.host." + h.Name
		if names[h.Name] {
			errs = append(errs, invalid(field, "duplicate name %q", h.Name))
		}
		names[h.Name] = true

		mac, err := flow.ParseMAC(h.MAC)
		switch {
		case err != nil:
			errs = append(errs, invalid(field, "invalid mac %q", h.MAC))
		case mac.IsGroup() || mac.IsZero():
			errs = append(errs, invalid(field, "mac %s must be unicast", mac))
		case macs[mac] != "":
			errs = append(errs, invalid(field, "mac %s already used by %s", mac, macs[mac]))
		default:
			macs[mac] = h.Name
		}
		if h.IP != "" && net.ParseIP(h.IP).To4() == nil {
			errs = append(errs, invalid(field, "invalid ipv4 address %q", h.IP))
		}
		attach(h.Name, field, h.Switch, h.Port)
	}

	for _, l := range c.Links {
		attach("link "+l.ID, "link."+l.ID, l.SwitchA, l.PortA)
		attach("link "+l.ID, "link."+l.ID, l.SwitchB, l.PortB)
	}
	return errs
}
