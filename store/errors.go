// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package store

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrInvalidState  = errors.New("invalid state")
	ErrNotOpen       = errors.New("poll is not open")
	ErrNotAMember    = errors.New("not a member of this poll")
	ErrOutOfRange    = errors.New("option out of range")
	ErrNicknameTaken = errors.New("nickname taken")
	ErrRoomFull      = errors.New("room full")
	ErrInvalidInput  = errors.New("invalid input")
	ErrTransient     = errors.New("transient failure")
)

// kinds pairs every sentinel with the stable name transports expose
var kinds = []struct {
	err  error
	name string
}{
	{ErrNotFound, "not_found"},
	{ErrUnauthorized, "unauthorized"},
	{ErrInvalidState, "invalid_state"},
	{ErrNotOpen, "not_open"},
	{ErrNotAMember, "not_a_member"},
	{ErrOutOfRange, "out_of_range"},
	{ErrNicknameTaken, "nickname_taken"},
	{ErrRoomFull, "room_full"},
	{ErrInvalidInput, "invalid_input"},
	{ErrTransient, "transient"},
}

// Kind returns the machine-readable kind of err, or "internal" when err is
// outside the taxonomy
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "internal"
}

// Retryable reports whether the caller may retry the same request
func Retryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

// Transient wraps an I/O failure (driver error, deadline, cancellation) so
// that callers see ErrTransient. Errors already in the taxonomy pass through.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	if Kind(err) != "internal" {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrTransient, op, err)
}
