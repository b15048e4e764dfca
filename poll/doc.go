// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package poll holds the storage-independent rules both state stores apply
// under their per-poll exclusion: the lifecycle state machine
// (waiting → open → closed, never backwards), vote admission, the tally, and
// input normalisation.
package poll
