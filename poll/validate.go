// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package poll

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/danielhkuo/livepoll/models"
	"github.com/danielhkuo/livepoll/store"
)

// Input limits
const (
	MaxQuestionLen = 200
	MaxOptionLen   = 100
	MaxNicknameLen = 30
)

// NormalizeNewPoll trims the question and options and checks their bounds
func NormalizeNewPoll(p store.NewPoll) (store.NewPoll, error) {
	p.Question = strings.TrimSpace(p.Question)
	if p.Question == "" {
		return p, fmt.Errorf("%w: question is required", store.ErrInvalidInput)
	}
	if utf8.RuneCountInString(p.Question) > MaxQuestionLen {
		return p, fmt.Errorf("%w: question longer than %d characters", store.ErrInvalidInput, MaxQuestionLen)
	}

	if len(p.Options) < models.MinOptions || len(p.Options) > models.MaxOptions {
		return p, fmt.Errorf("%w: need %d-%d options, got %d", store.ErrInvalidInput, models.MinOptions, models.MaxOptions, len(p.Options))
	}
	options := make([]string, len(p.Options))
	for i, o := range p.Options {
		o = strings.TrimSpace(o)
		if o == "" {
			return p, fmt.Errorf("%w: option %d is empty", store.ErrInvalidInput, i)
		}
		if utf8.RuneCountInString(o) > MaxOptionLen {
			return p, fmt.Errorf("%w: option %d longer than %d characters", store.ErrInvalidInput, i, MaxOptionLen)
		}
		options[i] = o
	}
	p.Options = options

	if p.HostKey == "" {
		return p, fmt.Errorf("%w: host identity is required", store.ErrInvalidInput)
	}
	return p, nil
}

// NormalizeNickname trims surrounding whitespace. Case is preserved;
// nicknames are case-sensitive.
func NormalizeNickname(nickname string) (string, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return "", fmt.Errorf("%w: nickname is required", store.ErrInvalidInput)
	}
	if utf8.RuneCountInString(nickname) > MaxNicknameLen {
		return "", fmt.Errorf("%w: nickname longer than %d characters", store.ErrInvalidInput, MaxNicknameLen)
	}
	return nickname, nil
}

// NormalizeRoomCode upper-cases user-typed codes
func NormalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
