// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"grimm.is/sdnlink/internal/errors"
	"grimm.is/sdnlink/internal/flow"
	"grimm.is/sdnlink/internal/linkctl"
)

const (
	ErrInvalidBody  = "Invalid request body"
	ErrInvalidID    = "Invalid switch id"
	ErrLinkFailed   = "Link operation failed"
	ErrNotConnected = "Switch not connected"
)

// DefaultProbeTimeout bounds a simulated send when the request sets none.
const DefaultProbeTimeout = 500 * time.Millisecond

func (s *Server) handleDefaultDown(w http.ResponseWriter, r *http.Request) {
	s.applyLink(w, r, s.links.DefaultLink(), s.links.Block)
}

func (s *Server) handleDefaultUp(w http.ResponseWriter, r *http.Request) {
	s.applyLink(w, r, s.links.DefaultLink(), s.links.Unblock)
}

func (s *Server) handleLinkDown(w http.ResponseWriter, r *http.Request) {
	s.applyLink(w, r, mux.Vars(r)["id"], s.links.Block)
}

func (s *Server) handleLinkUp(w http.ResponseWriter, r *http.Request) {
	s.applyLink(w, r, mux.Vars(r)["id"], s.links.Unblock)
}

func (s *Server) applyLink(w http.ResponseWriter, r *http.Request, id string, op func(context.Context, string) (linkctl.Result, error)) {
	res, err := op(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), ErrLinkFailed, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListLinks(w http.ResponseWriter, _ *http.Request) {
	states := s.links.States()
	writeJSON(w, http.StatusOK, map[string]any{
		"default": s.links.DefaultLink(),
		"links":   states,
		"count":   len(states),
	})
}

func (s *Server) handleListSwitches(w http.ResponseWriter, _ *http.Request) {
	list := s.switches.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"switches": list,
		"count":    len(list),
	})
}

// switchID parses the {id} route variable, decimal or 0x-prefixed hex.
func switchID(r *http.Request) (uint64, error) {
	return strconv.ParseUint(mux.Vars(r)["id"], 0, 64)
}

func (s *Server) handleSwitchFlows(w http.ResponseWriter, r *http.Request) {
	id, err := switchID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrInvalidID, err)
		return
	}
	rules, err := s.flows.Rules(id)
	if err != nil {
		writeError(w, statusFor(err), ErrNotConnected, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"switch": id,
		"rules":  rules,
		"count":  len(rules),
	})
}

func (s *Server) handleSwitchMACs(w http.ResponseWriter, r *http.Request) {
	id, err := switchID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrInvalidID, err)
		return
	}
	if _, err := s.switches.Get(id); err != nil {
		writeError(w, statusFor(err), ErrNotConnected, err)
		return
	}
	entries := s.macs.Entries(id)
	writeJSON(w, http.StatusOK, map[string]any{
		"switch":  id,
		"entries": entries,
		"count":   len(entries),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"switches": len(s.switches.List()),
	})
}

// SendRequest is the body of POST /api/v1/sim/send.
type SendRequest struct {
	From      string `json:"from"`
	To        string `json:"to,omitempty"`
	EthType   string `json:"ethertype,omitempty"`
	TimeoutMS int    `json:"timeout_ms,omitempty"`
}

func (s *Server) handleSimSend(w http.ResponseWriter, r *http.Request) {
	if !isJSON(r) {
		writeError(w, http.StatusUnsupportedMediaType, "Expected application/json", nil)
		return
	}
	var req SendRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrInvalidBody, err)
		return
	}
	if req.From == "" {
		writeError(w, http.StatusBadRequest, "from is required", nil)
		return
	}

	ethType := flow.EthTypeIPv4
	if req.EthType != "" {
		t, err := flow.ParseEthType(req.EthType)
		if err != nil {
			writeError(w, http.StatusBadRequest, ErrInvalidBody, err)
			return
		}
		ethType = t
	}
	timeout := DefaultProbeTimeout
	if req.TimeoutMS > 0 {
		timeout = time.Duration(req.TimeoutMS) * time.Millisecond
	}

	tr, err := s.sim.Probe(r.Context(), req.From, req.To, ethType, timeout)
	if err != nil {
		writeError(w, statusFor(err), "Send failed", err)
		return
	}
	writeJSON(w, http.StatusOK, tr)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response
func writeError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]any{
		"error":  message,
		"status": status,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	writeJSON(w, status, response)
}

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) int {
	switch errors.GetKind(err) {
	case errors.KindNotFound:
		return http.StatusNotFound
	case errors.KindValidation:
		return http.StatusBadRequest
	case errors.KindConflict:
		return http.StatusConflict
	case errors.KindUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
