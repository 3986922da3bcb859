// Package services defines shared utilities consumed by the workflow, the
// backend client, and the console.
//
// Key responsibilities:
//   - Context helpers that stamp session IDs, operation IDs, stage names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify failures into
//     the operator-facing notice kinds (transient, partial, auth, rejected).
//
// Use these helpers when wiring new workflow logic so error handling and
// observability stay uniform across stages.
package services
