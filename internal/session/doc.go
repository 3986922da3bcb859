// Package session tracks the operator's open operations ("tabs").
//
// Registry holds the ordered sessions and the active pointer and enforces the
// capacity cap; running out of room is reported with an empty id or false,
// never an error. Store persists a Registry snapshot in SQLite so the console
// can pick up where the previous invocation left off.
package session
