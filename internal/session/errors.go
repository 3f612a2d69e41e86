package session

import "errors"

var (
	// ErrNilListener is returned by SetDiscoveryListener for a nil listener.
	ErrNilListener = errors.New("discovery listener cannot be nil")

	// ErrAlreadyConnected is returned by Connect while a binding is held or
	// being established.
	ErrAlreadyConnected = errors.New("already connected")

	// ErrNotConnected is returned by StopRanging while disconnected.
	ErrNotConnected = errors.New("not connected")

	// ErrBoundCallback wraps a failure returned by the connect callback. It is
	// passed to the fatal handler, never returned.
	ErrBoundCallback = errors.New("bound callback failed")
)
