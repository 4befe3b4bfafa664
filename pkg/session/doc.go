// Package session persists conversation history as newline-delimited JSON
// under a single storage directory. One invocation at a time may hold the
// directory: an advisory file lock acquired on open guards the active-session
// pointer and the per-session message logs against concurrent processes.
package session
