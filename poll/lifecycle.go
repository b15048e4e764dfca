// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package poll

import (
	"fmt"

	"github.com/danielhkuo/livepoll/auth"
	"github.com/danielhkuo/livepoll/models"
	"github.com/danielhkuo/livepoll/store"
)

// rank orders states; transitions may only increase it
var rank = map[models.PollState]int{
	models.StateWaiting: 0,
	models.StateOpen:    1,
	models.StateClosed:  2,
}

// ParseState converts a requested state name into a PollState
func ParseState(s string) (models.PollState, error) {
	state := models.PollState(s)
	if _, ok := rank[state]; !ok {
		return "", fmt.Errorf("%w: unknown state %q", store.ErrInvalidState, s)
	}
	return state, nil
}

// Transition checks that hostKey owns p and that moving p to requested is
// legal, then applies it. It returns the previous state.
func Transition(p *models.Poll, requested models.PollState, hostKey string) (models.PollState, error) {
	if err := auth.ValidateHostKey(p.HostKey, hostKey); err != nil {
		return "", fmt.Errorf("%w: only the host may change state", store.ErrUnauthorized)
	}

	to, ok := rank[requested]
	if !ok {
		return "", fmt.Errorf("%w: unknown state %q", store.ErrInvalidState, requested)
	}
	from := rank[p.State]
	if to == from {
		return "", fmt.Errorf("%w: poll is already %s", store.ErrInvalidState, p.State)
	}
	if to < from {
		return "", fmt.Errorf("%w: cannot go from %s to %s", store.ErrInvalidState, p.State, requested)
	}

	previous := p.State
	p.State = requested
	return previous, nil
}

// CheckOpen verifies that p accepts votes right now
func CheckOpen(p models.Poll) error {
	if p.State != models.StateOpen {
		return fmt.Errorf("%w: poll is %s", store.ErrNotOpen, p.State)
	}
	return nil
}

// CheckOption verifies that option indexes one of p's options
func CheckOption(p models.Poll, option int) error {
	if option < 0 || option >= len(p.Options) {
		return fmt.Errorf("%w: option %d not in [0, %d)", store.ErrOutOfRange, option, len(p.Options))
	}
	return nil
}
