package channel

import "errors"

// ErrSendFailed wraps every failure to enqueue a command.
var ErrSendFailed = errors.New("channel send failed")

// Causes reported under ErrSendFailed.
var (
	ErrReleased     = errors.New("channel released")
	ErrQueueFull    = errors.New("worker queue full")
	ErrWorkerClosed = errors.New("worker closed")
)
