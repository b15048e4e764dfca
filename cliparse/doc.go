// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package cliparse resolves server configuration.

Sources, highest precedence first:

  - command-line flags
  - environment variables (upper-snake form of the flag: DATABASE_URL)
  - .env.local, then .env in the working directory
  - defaults

# Flags

	-p, --port              3318
	-t, --database-type     memory | sqlite | postgres
	-d, --database-url      connection URL, or file path for sqlite
	    --bus-type          local | postgres
	    --bus-url           defaults to the database URL for postgres
	    --instance-id       defaults to a random UUID
	    --max-participants  50
	    --stale-after       90s
	    --purge-after       30m
	    --sweep-interval    15s
	    --poll-ttl          24h
	    --op-timeout        300ms
	    --allowed-origins   comma-separated, empty allows all
	    --log-level         debug | info | warn | error
	    --log-format        text | json

Load returns an error from Validate when the combination cannot work, for
example a postgres bus with no postgres URL.
*/
package cliparse
