package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"volumetracker/internal/quote"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubAuth struct {
	tokens []string
	errs   []error
	calls  int
}

func (s *stubAuth) AccessToken(ctx context.Context) (string, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.tokens) {
		return s.tokens[i], nil
	}
	return "", errors.New("no more tokens")
}

type blockingAuth struct{}

func (blockingAuth) AccessToken(ctx context.Context) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

// go test -v --run TestAcquireAndInvalidate
func TestAcquireAndInvalidate(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	s := New(&stubAuth{tokens: []string{"tok-1"}}, time.Second, zap.NewNop()).
		WithClock(func() time.Time { return at })

	_, ok := s.Current()
	assert.False(t, ok)

	cred, err := s.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Credential{Token: "tok-1", AcquiredAt: at}, cred)

	got, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, cred, got)

	s.Invalidate()
	_, ok = s.Current()
	assert.False(t, ok)
}

// go test -v --run TestAcquireFailureKeepsState
func TestAcquireFailureKeepsState(t *testing.T) {
	auth := &stubAuth{
		tokens: []string{"tok-1", ""},
		errs:   []error{nil, errors.New("invalid refresh token")},
	}
	s := New(auth, time.Second, zap.NewNop())

	_, err := s.Acquire(context.Background())
	require.NoError(t, err)

	_, err = s.Acquire(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, quote.ErrAuth))

	cred, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, "tok-1", cred.Token)
	assert.Equal(t, 2, auth.calls, "no internal retry")
}

// go test -v --run TestAcquireTimeout
func TestAcquireTimeout(t *testing.T) {
	s := New(blockingAuth{}, 20*time.Millisecond, zap.NewNop())

	start := time.Now()
	_, err := s.Acquire(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, quote.ErrAuth))
	assert.Less(t, time.Since(start), time.Second)

	_, ok := s.Current()
	assert.False(t, ok)
}

// go test -v --run TestAcquireEmptyToken
func TestAcquireEmptyToken(t *testing.T) {
	s := New(&stubAuth{tokens: []string{""}}, time.Second, zap.NewNop())

	_, err := s.Acquire(context.Background())
	assert.True(t, errors.Is(err, quote.ErrAuth))
}
