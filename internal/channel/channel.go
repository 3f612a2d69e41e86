package channel

import (
	"fmt"
	"sync"
	"time"
)

// Command is a message kind understood by the scan worker. The numeric codes
// are stable.
type Command int

const (
	StartRanging Command = 1
	StopRanging  Command = 2
	Disconnect   Command = 3
)

func (c Command) String() string {
	switch c {
	case StartRanging:
		return "StartRanging"
	case StopRanging:
		return "StopRanging"
	case Disconnect:
		return "Disconnect"
	default:
		return fmt.Sprintf("Command(%d)", int(c))
	}
}

// Valid reports whether c is a known command kind.
func (c Command) Valid() bool {
	return c >= StartRanging && c <= Disconnect
}

// Envelope is one queued command together with the credentials of the
// binding that sent it.
type Envelope struct {
	Command   Command
	BindingID string
	Token     string
	SentAt    time.Time
}

// Sink accepts envelopes for serial execution. Enqueue must not block; it
// returns ErrQueueFull or ErrWorkerClosed when the envelope is not accepted.
type Sink interface {
	Enqueue(env Envelope) error
}

// Channel is a bound command conduit. It is safe for concurrent use.
type Channel struct {
	bindingID string
	token     string
	sink      Sink
	onUnbind  func()

	mu       sync.Mutex
	released bool
}

// New creates a channel for a binding. onUnbind, if non-nil, runs once on
// the first Unbind.
func New(bindingID, token string, sink Sink, onUnbind func()) *Channel {
	return &Channel{
		bindingID: bindingID,
		token:     token,
		sink:      sink,
		onUnbind:  onUnbind,
	}
}

// BindingID returns the ID of the binding this channel belongs to.
func (c *Channel) BindingID() string {
	return c.bindingID
}

// Send enqueues cmd without waiting for it to execute. Failures wrap
// ErrSendFailed together with the cause.
func (c *Channel) Send(cmd Command) error {
	c.mu.Lock()
	released := c.released
	c.mu.Unlock()

	if released {
		return fmt.Errorf("%w: %s: %w", ErrSendFailed, cmd, ErrReleased)
	}

	env := Envelope{
		Command:   cmd,
		BindingID: c.bindingID,
		Token:     c.token,
		SentAt:    time.Now(),
	}
	if err := c.sink.Enqueue(env); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSendFailed, cmd, err)
	}
	return nil
}

// Released reports whether Unbind has been called.
func (c *Channel) Released() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released
}

// Unbind releases the channel. Later sends fail with ErrReleased. Calling
// Unbind more than once has no further effect.
func (c *Channel) Unbind() {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return
	}
	c.released = true
	c.mu.Unlock()

	if c.onUnbind != nil {
		c.onUnbind()
	}
}
