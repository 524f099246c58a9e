// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package errors provides the structured error type shared by the controller.
package errors

import (
	"errors"
	"fmt"
)

// Kind defines the category of error.
type Kind int

const (
	KindUnknown Kind = iota
	KindInternal
	KindValidation
	KindNotFound
	KindConflict
	KindUnavailable
	// KindTransport marks a command the switch transport failed to deliver.
	KindTransport
	// KindMalformed marks a frame that could not be decoded.
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindInternal:
		return "internal"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUnavailable:
		return "unavailable"
	case KindTransport:
		return "transport"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Sentinels matched with Is. Wrap them to add context.
var (
	ErrSwitchNotFound = New(KindNotFound, "switch not found")
	ErrLinkNotFound   = New(KindNotFound, "link not found")
	ErrMalformedFrame = New(KindMalformed, "malformed frame")
)

// Error is a categorized error with optional key/value context.
type Error struct {
	Kind       Kind
	Message    string
	Underlying error
	Attributes map[string]any
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Underlying)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Underlying
}

// New creates a new Error of the specified kind.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Message: msg}
}

// Errorf creates a new Error of the specified kind with a formatted message.
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps err as a new Error of the specified kind. Returns nil for a nil err.
func Wrap(err error, kind Kind, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: msg, Underlying: err}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, kind Kind, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Underlying: err}
}

// SwitchNotFound returns an error wrapping ErrSwitchNotFound for the given datapath id.
func SwitchNotFound(id uint64) error {
	return Attr(Wrapf(ErrSwitchNotFound, KindNotFound, "switch %d", id), "switch", id)
}

// LinkNotFound returns an error wrapping ErrLinkNotFound for the given link id.
func LinkNotFound(id string) error {
	return Attr(Wrapf(ErrLinkNotFound, KindNotFound, "link %q", id), "link", id)
}

// Transport wraps a failed switch command.
func Transport(err error, op string, sw uint64) error {
	if err == nil {
		return nil
	}
	e := Wrapf(err, KindTransport, "%s on switch %d", op, sw)
	return Attr(e, "switch", sw)
}

// Attr attaches an attribute to an error. Errors that are not *Error are wrapped as KindInternal.
func Attr(err error, key string, val any) error {
	if err == nil {
		return nil
	}

	var e *Error
	if !errors.As(err, &e) {
		e = &Error{
			Kind:       KindInternal,
			Message:    err.Error(),
			Underlying: err,
		}
	}

	if e.Attributes == nil {
		e.Attributes = make(map[string]any)
	}
	e.Attributes[key] = val
	return e
}

// GetKind returns the Kind of the outermost *Error in the chain, or KindUnknown.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether the outermost *Error in err's chain has the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && GetKind(err) == kind
}

// GetAttributes collects attributes along the chain. Outer values win.
func GetAttributes(err error) map[string]any {
	attrs := make(map[string]any)
	var e *Error

	cur := err
	for cur != nil {
		if !errors.As(cur, &e) {
			break
		}
		for k, v := range e.Attributes {
			if _, ok := attrs[k]; !ok {
				attrs[k] = v
			}
		}
		cur = e.Underlying
	}

	return attrs
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Unwrap returns the result of calling the Unwrap method on err.
func Unwrap(err error) error {
	return errors.Unwrap(err)
}

// Join joins errors, discarding nils.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
