// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package router defines HTTP routes for the livepoll API.

# Route Registration

NewRouter creates a configured http.ServeMux with all endpoints:

	mux := router.NewRouter(e, cfg)

# Endpoints

Operations:

	GET /health  - Liveness
	GET /metrics - Prometheus metrics

Polls:

	POST /polls              - Create poll
	GET  /polls/{code}       - Current snapshot
	POST /polls/{code}/state - Change state (requires X-Host-Key)
	GET  /polls/{code}/ws    - Websocket for participants and the host

Poll routes are wrapped with middleware.WithLogging. CORS is applied
around the whole mux by the caller.
*/
package router
