// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package engine

// SweepAndLog exposes one sweeper tick to tests
var SweepAndLog = (*Engine).sweepAndLog
