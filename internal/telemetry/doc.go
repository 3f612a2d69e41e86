// Package telemetry implements the in-process event hub for ranger.
//
// The hub fans out session lifecycle and fault events to subscribers and
// buffers the last N events per session so a subscriber can resume after a
// known event ID.
package telemetry
