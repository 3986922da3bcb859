// Package backend is the HTTP/JSON client for the operations backend.
//
// Every call carries the operator's bearer token. A 401 answer, or a token
// whose exp claim has already passed, is reported as services.ErrUnauthorized
// so callers can force a logout; other failures are tagged with the matching
// services marker. Calls are never retried. Request counts and latency are
// recorded on a private Prometheus registry that the CLI can export as a
// textfile.
package backend
