// Package audit implements the append-only audit trail of worker commands.
//
// Every command the worker receives is recorded as one JSON line with the
// binding it came from, its outcome, a normalized result code and its
// latency, including commands rejected before execution.
package audit
