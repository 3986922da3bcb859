// Package grouping shapes the backend's email-grouping preview for display
// and caches document binaries fetched for preview.
//
// BuildView joins each preview group with the reconciliation report of every
// document it carries. Cache keeps binaries for the lifetime of a session: an
// entry is fetched at most once, concurrent requests for the same key share a
// single fetch, and a per-session directory mirrors the entries so separate
// CLI invocations reuse earlier downloads.
package grouping
