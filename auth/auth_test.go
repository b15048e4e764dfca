// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package auth

import (
	"strings"
	"testing"
)

func TestGenerateHostKey(t *testing.T) {
	key, err := GenerateHostKey()
	if err != nil {
		t.Fatalf("GenerateHostKey() error = %v", err)
	}
	if key == "" {
		t.Fatal("GenerateHostKey() returned empty string")
	}
	if strings.Contains(key, "=") {
		t.Error("GenerateHostKey() contains padding characters")
	}

	other, _ := GenerateHostKey()
	if key == other {
		t.Error("GenerateHostKey() produced duplicate keys (extremely unlikely)")
	}
}

func TestValidateHostKey(t *testing.T) {
	stored, _ := GenerateHostKey()

	tests := []struct {
		name      string
		stored    string
		presented string
		wantErr   bool
	}{
		{"valid key", stored, stored, false},
		{"wrong key", stored, "wrong-key", true},
		{"empty key", stored, "", true},
		{"nothing stored", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateHostKey(tt.stored, tt.presented)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateHostKey() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && err != ErrInvalidHostKey {
				t.Errorf("ValidateHostKey() error = %v, want %v", err, ErrInvalidHostKey)
			}
		})
	}
}

func TestGenerateRoomCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		code, err := GenerateRoomCode()
		if err != nil {
			t.Fatalf("GenerateRoomCode() error = %v", err)
		}
		if len(code) != RoomCodeLength {
			t.Fatalf("GenerateRoomCode() length = %d, want %d", len(code), RoomCodeLength)
		}
		if !ValidRoomCode(code) {
			t.Fatalf("GenerateRoomCode() produced %q outside the alphabet", code)
		}
		seen[code] = true
	}

	// 25^6 possible codes; 500 draws colliding more than a handful of times
	// means the generator is broken
	if len(seen) < 495 {
		t.Errorf("GenerateRoomCode() produced only %d distinct codes out of 500", len(seen))
	}
}

func TestRoomCodeAlphabetExcludesLookalikes(t *testing.T) {
	for _, c := range "0O1IL5S2Z8B" {
		if strings.ContainsRune(RoomCodeAlphabet, c) {
			t.Errorf("alphabet contains ambiguous character %q", c)
		}
	}
}

func TestValidRoomCode(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"ACDEFG", true},
		{"3467 9", false},
		{"ACDEF", false},
		{"ACDEFGH", false},
		{"acdefg", false},
		{"ACDEF0", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := ValidRoomCode(tt.code); got != tt.want {
				t.Errorf("ValidRoomCode(%q) = %v, want %v", tt.code, got, tt.want)
			}
		})
	}
}
