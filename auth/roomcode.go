// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package auth

import (
	"crypto/rand"
	"fmt"
)

const (
	// RoomCodeLength is the fixed length of every room code
	RoomCodeLength = 6

	// RoomCodeAlphabet omits 0/O, 1/I/L and 5/S, 2/Z, 8/B lookalikes
	RoomCodeAlphabet = "34679ACDEFGHJKMNPQRTUVWXY"
)

// GenerateRoomCode draws RoomCodeLength characters uniformly from
// RoomCodeAlphabet. Uniqueness is the caller's job.
func GenerateRoomCode() (string, error) {
	const n = byte(len(RoomCodeAlphabet))
	// Reject bytes above the largest multiple of n to avoid modulo bias
	const limit = 256 - 256%int(n)

	code := make([]byte, 0, RoomCodeLength)
	buf := make([]byte, RoomCodeLength*2)
	for len(code) < RoomCodeLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to generate room code: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			code = append(code, RoomCodeAlphabet[b%n])
			if len(code) == RoomCodeLength {
				break
			}
		}
	}
	return string(code), nil
}

// ValidRoomCode reports whether code has the right length and alphabet.
// Lowercase input is not accepted; callers normalise first.
func ValidRoomCode(code string) bool {
	if len(code) != RoomCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if !inAlphabet(code[i]) {
			return false
		}
	}
	return true
}

func inAlphabet(c byte) bool {
	for i := 0; i < len(RoomCodeAlphabet); i++ {
		if RoomCodeAlphabet[i] == c {
			return true
		}
	}
	return false
}
