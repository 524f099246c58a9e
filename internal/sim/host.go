// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package sim

import (
	"context"
	"net"
	"sync"

	"grimm.is/sdnlink/internal/flow"
)

// Received is one frame a host accepted.
type Received struct {
	Seq     uint64       `json:"seq"`
	Src     flow.MAC     `json:"src"`
	Dst     flow.MAC     `json:"dst"`
	EthType flow.EthType `json:"ethertype"`
}

// Host is a simulated end station. It accepts frames addressed to its MAC
// and group frames; everything else is filtered like a real NIC would.
type Host struct {
	Name   string
	MAC    flow.MAC
	IP     net.IP
	Switch uint64
	Port   flow.Port

	mu     sync.Mutex
	inbox  []Received
	seqs   map[uint64]bool
	notify chan struct{}
}

func newHost(name string, mac flow.MAC, ip net.IP, sw uint64, port flow.Port) *Host {
	return &Host{
		Name:   name,
		MAC:    mac,
		IP:     ip,
		Switch: sw,
		Port:   port,
		seqs:   make(map[uint64]bool),
		notify: make(chan struct{}),
	}
}

func (h *Host) deliver(data []byte) {
	f, err := parseFrame(data)
	if err != nil {
		return
	}
	if f.Dst != h.MAC && !f.Dst.IsGroup() {
		return
	}

	h.mu.Lock()
	h.inbox = append(h.inbox, f)
	h.seqs[f.Seq] = true
	close(h.notify)
	h.notify = make(chan struct{})
	h.mu.Unlock()
}

// Received reports whether the frame with this sequence number arrived.
func (h *Host) Received(seq uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.seqs[seq]
}

// Inbox returns every accepted frame in arrival order.
func (h *Host) Inbox() []Received {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Received, len(h.inbox))
	copy(out, h.inbox)
	return out
}

// Await blocks until the frame with this sequence number arrives.
func (h *Host) Await(ctx context.Context, seq uint64) error {
	for {
		h.mu.Lock()
		if h.seqs[seq] {
			h.mu.Unlock()
			return nil
		}
		wait := h.notify
		h.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
