// Package console owns one invocation of the operator console: the
// cross-process lock, the persisted session registry, the backend credential
// and the workflow of every session touched during the invocation.
//
// Open takes an exclusive file lock on the state directory, loads the
// registry snapshot and builds the backend client; Close settles background
// work, saves the snapshot, writes the metrics textfile and releases the
// lock. Any backend 401 passed through HandleError drops the stored
// credential so the next command asks the operator to log in again.
package console
