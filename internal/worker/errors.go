package worker

import "errors"

var (
	// ErrBindRejected is returned when a bind request cannot be granted.
	ErrBindRejected = errors.New("bind rejected")

	// ErrUnsupportedCommand is passed to the fatal handler for unknown command kinds.
	ErrUnsupportedCommand = errors.New("unsupported command")

	// ErrConfigurationConsumed is returned by a second SetConfiguration on one binding.
	ErrConfigurationConsumed = errors.New("configuration already handed over")

	// ErrStaleBinding marks commands from a binding that is no longer active.
	ErrStaleBinding = errors.New("binding is not active")
)
