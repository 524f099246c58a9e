// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package errors

import (
	"errors"
	"testing"
)

func TestError(t *testing.T) {
	err := New(KindValidation, "invalid link")
	if err.Error() != "invalid link" {
		t.Errorf("expected 'invalid link', got '%s'", err.Error())
	}

	wrapped := Wrap(err, KindInternal, "failed to load")
	if wrapped.Error() != "failed to load: invalid link" {
		t.Errorf("expected 'failed to load: invalid link', got '%s'", wrapped.Error())
	}

	if Wrap(nil, KindInternal, "x") != nil {
		t.Errorf("expected nil when wrapping nil")
	}
}

func TestGetKind(t *testing.T) {
	err := New(KindValidation, "invalid input")
	if GetKind(err) != KindValidation {
		t.Errorf("expected KindValidation, got %v", GetKind(err))
	}

	wrapped := Wrap(err, KindTransport, "failed")
	if GetKind(wrapped) != KindTransport {
		t.Errorf("expected KindTransport, got %v", GetKind(wrapped))
	}

	if GetKind(errors.New("std error")) != KindUnknown {
		t.Errorf("expected KindUnknown, got %v", GetKind(errors.New("std error")))
	}
}

func TestSentinels(t *testing.T) {
	err := SwitchNotFound(7)
	if !Is(err, ErrSwitchNotFound) {
		t.Errorf("expected ErrSwitchNotFound in chain: %v", err)
	}
	if !IsKind(err, KindNotFound) {
		t.Errorf("expected KindNotFound, got %v", GetKind(err))
	}
	if GetAttributes(err)["switch"] != uint64(7) {
		t.Errorf("expected switch attribute, got %v", GetAttributes(err))
	}

	lerr := LinkNotFound("s1-s2")
	if !Is(lerr, ErrLinkNotFound) || Is(lerr, ErrSwitchNotFound) {
		t.Errorf("unexpected chain for %v", lerr)
	}

	terr := Transport(errors.New("broken pipe"), "install", 2)
	if GetKind(terr) != KindTransport {
		t.Errorf("expected KindTransport, got %v", GetKind(terr))
	}
	if terr.Error() != "install on switch 2: broken pipe" {
		t.Errorf("unexpected message %q", terr.Error())
	}
	if Transport(nil, "install", 2) != nil {
		t.Errorf("expected nil transport error")
	}
}

func TestAttributes(t *testing.T) {
	err := New(KindValidation, "invalid input")
	err = Attr(err, "field", "port_a")
	err = Attr(err, "value", 0)

	attrs := GetAttributes(err)
	if attrs["field"] != "port_a" {
		t.Errorf("expected port_a, got %v", attrs["field"])
	}
	if attrs["value"] != 0 {
		t.Errorf("expected 0, got %v", attrs["value"])
	}

	wrapped := Wrap(err, KindInternal, "failed")
	wrapped = Attr(wrapped, "operation", "block")

	allAttrs := GetAttributes(wrapped)
	if allAttrs["field"] != "port_a" || allAttrs["operation"] != "block" {
		t.Errorf("missing attributes: %v", allAttrs)
	}

	plain := Attr(errors.New("plain"), "k", "v")
	if GetKind(plain) != KindInternal {
		t.Errorf("expected plain errors to be wrapped as internal")
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindNotFound:  "not_found",
		KindTransport: "transport",
		KindMalformed: "malformed",
		Kind(99):      "unknown",
	}
	for k, want := range cases {
		if k.String() != want {
			t.Errorf("Kind(%d).String() = %q, want %q", int(k), k.String(), want)
		}
	}
}
