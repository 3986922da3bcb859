// Package main hosts the boletodesk operator console and its command graph.
//
// Every invocation resolves configuration, opens the console (which takes the
// state lock and loads the persisted sessions), runs one command against the
// active or selected session and saves the registry on the way out. Session
// commands manage the open tabs; op commands drive the operation workflow from
// configure through upload, processing, review and sending.
//
// Keep this package lean: behaviour lives in internal/workflow and
// internal/console, and commands here only parse flags and render results.
package main
