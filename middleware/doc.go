// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package middleware provides HTTP middleware and helper functions.

# Request Logging

Wrap handlers with request logging:

	mux.HandleFunc("GET /health", middleware.WithLogging(handler))

Logs request start (method, path, client IP) and completion (duration_ms).

# CORS Middleware

Enable cross-origin requests for browser clients:

	server := http.Server{
		Handler: middleware.CORS(cfg.AllowedOrigins)(mux),
	}

An empty origin list reflects any origin. Allows methods GET, POST, OPTIONS
with headers Content-Type, X-Host-Key.

# JSON Helpers

Write JSON responses:

	middleware.JSONResponse(w, http.StatusOK, data)
	middleware.ErrorResponse(w, http.StatusBadRequest, "message")

Write a store or engine error with its status and kind:

	if err != nil {
		middleware.StoreError(w, err)
		return
	}

Status mapping:

	not_found                                        → 404
	unauthorized, not_a_member                       → 403
	invalid_state, not_open, nickname_taken, room_full → 409
	out_of_range, invalid_input                      → 400
	transient                                        → 503 (with Retry-After)

# Client IP Extraction

Get the original client IP (handles X-Forwarded-For, X-Real-IP):

	ip := middleware.GetClientIP(r)
*/
package middleware
