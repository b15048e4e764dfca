// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrInvalidHostKey = errors.New("invalid host key")
)

// GenerateHostKey creates a random secret proving poll ownership
func GenerateHostKey() (string, error) {
	b := make([]byte, 24) // 24 bytes = 192 bits of entropy
	_, err := rand.Read(b)
	if err != nil {
		return "", fmt.Errorf("failed to generate host key: %w", err)
	}
	// URL-safe base64 without padding
	return strings.TrimRight(base64.URLEncoding.EncodeToString(b), "="), nil
}

// ValidateHostKey compares a presented host key against the stored one in
// constant time
func ValidateHostKey(stored, presented string) error {
	if stored == "" || !hmac.Equal([]byte(stored), []byte(presented)) {
		return ErrInvalidHostKey
	}
	return nil
}

// NewConnID returns an identifier for one live client connection
func NewConnID() string {
	return uuid.NewString()
}

// NewInstanceID returns an identifier for one running server process
func NewInstanceID() string {
	return uuid.NewString()
}
