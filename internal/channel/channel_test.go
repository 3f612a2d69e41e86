package channel

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu   sync.Mutex
	envs []Envelope
	err  error
}

func (s *recordingSink) Enqueue(env Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.envs = append(s.envs, env)
	return nil
}

func (s *recordingSink) commands() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Command, 0, len(s.envs))
	for _, env := range s.envs {
		out = append(out, env.Command)
	}
	return out
}

func TestSendStampsCredentialsInOrder(t *testing.T) {
	sink := &recordingSink{}
	ch := New("binding-1", "token-1", sink, nil)

	require.NoError(t, ch.Send(StartRanging))
	require.NoError(t, ch.Send(StopRanging))
	require.NoError(t, ch.Send(Disconnect))

	assert.Equal(t, []Command{StartRanging, StopRanging, Disconnect}, sink.commands())
	for _, env := range sink.envs {
		assert.Equal(t, "binding-1", env.BindingID)
		assert.Equal(t, "token-1", env.Token)
		assert.False(t, env.SentAt.IsZero())
	}
	assert.Equal(t, "binding-1", ch.BindingID())
}

func TestSendFailures(t *testing.T) {
	tests := []struct {
		name  string
		cause error
	}{
		{"queue full", ErrQueueFull},
		{"worker closed", ErrWorkerClosed},
		{"other", errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := New("b", "t", &recordingSink{err: tt.cause}, nil)
			err := ch.Send(StartRanging)
			assert.ErrorIs(t, err, ErrSendFailed)
			assert.ErrorIs(t, err, tt.cause)
			assert.Contains(t, err.Error(), "StartRanging")
		})
	}
}

func TestUnbindIsIdempotent(t *testing.T) {
	sink := &recordingSink{}
	calls := 0
	ch := New("b", "t", sink, func() { calls++ })

	assert.False(t, ch.Released())
	ch.Unbind()
	ch.Unbind()
	assert.Equal(t, 1, calls)
	assert.True(t, ch.Released())

	err := ch.Send(StopRanging)
	assert.ErrorIs(t, err, ErrSendFailed)
	assert.ErrorIs(t, err, ErrReleased)
	assert.Empty(t, sink.commands())

	New("b", "t", sink, nil).Unbind()
}

func TestCommandCodes(t *testing.T) {
	assert.Equal(t, Command(1), StartRanging)
	assert.Equal(t, Command(2), StopRanging)
	assert.Equal(t, Command(3), Disconnect)

	for _, c := range []Command{StartRanging, StopRanging, Disconnect} {
		assert.True(t, c.Valid(), c.String())
	}
	assert.False(t, Command(0).Valid())
	assert.False(t, Command(4).Valid())
	assert.Equal(t, "Command(9)", Command(9).String())
}
