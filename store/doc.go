// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package store defines the authoritative state interface for polls,
participants, and votes, and the error taxonomy shared by every layer.

# Implementations

  - memstore: in-process maps with a mutex per poll
  - sqlstore: database/sql backed, for SQLite and PostgreSQL

Every implementation is checked by the suite in storetest.

# Errors

All failures wrap one of the sentinel errors in errors.go. Kind maps an error
to the stable string transports expose, and Retryable reports whether the
caller may try again.
*/
package store
