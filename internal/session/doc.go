// Package session implements the client-facing session manager.
//
// A Manager connects to a scan worker through a bind handshake, hands it
// the staged discovery listener, and then posts ranging commands over the
// resulting channel. Its state is one tagged value (Disconnected,
// ConnectedIdle, ConnectedRanging) and every public operation is checked
// against a table of legal transitions. The state lock is never held across
// a channel send or the bind handshake.
package session
