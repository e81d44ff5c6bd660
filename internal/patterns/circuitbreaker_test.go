package patterns

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_OpensAfterFailures(t *testing.T) {
	s := DefaultBreakerSettings()
	s.Timeout = time.Minute
	b := NewBreaker("test-open", s)
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		_, err := b.Execute(func() (any, error) { return nil, boom })
		require.ErrorIs(t, err, boom)
	}
	assert.Equal(t, "open", b.State())

	called := false
	_, err := b.Execute(func() (any, error) {
		called = true
		return nil, nil
	})
	assert.False(t, called)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestBreaker_IgnoresNonFailures(t *testing.T) {
	s := DefaultBreakerSettings()
	notMine := errors.New("client error")
	s.IsSuccessful = func(err error) bool { return err == nil || errors.Is(err, notMine) }
	b := NewBreaker("test-ignore", s)
	for i := 0; i < 5; i++ {
		_, err := b.Execute(func() (any, error) { return nil, notMine })
		require.ErrorIs(t, err, notMine)
	}
	assert.Equal(t, "closed", b.State())
}

func TestDetached_SurvivesParentCancel(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	ctx, done := Detached(parent, time.Second)
	defer done()
	cancel()
	assert.NoError(t, ctx.Err())
	_, ok := ctx.Deadline()
	assert.True(t, ok)
}
