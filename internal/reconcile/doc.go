// Package reconcile cross-validates a collection document against its paired
// fiscal note field by field.
//
// Reconcile is a pure function: no state, no I/O. Each report has one row per
// compared field (invoice number, amount, recipient name, tax id, email) or,
// when no note is paired, a single informational row. Name matching is lenient
// on purpose: substring containment or a token overlap of at least half earns
// a partial match. Pair joins document and note sets by invoice key and
// Summarize counts statuses for display.
package reconcile
