package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"volumetracker/internal/quote"

	"go.uber.org/zap"
)

// Credential is an access token issued by the quote source.
type Credential struct {
	Token      string
	AcquiredAt time.Time
}

// Authenticator exchanges the long-lived broker secrets for an access token.
type Authenticator interface {
	AccessToken(ctx context.Context) (string, error)
}

// Session holds at most one credential. It never retries on its own; the
// scheduler decides when to call Acquire again.
type Session struct {
	auth    Authenticator
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time

	mu   sync.RWMutex
	cred *Credential
}

func New(auth Authenticator, timeout time.Duration, logger *zap.Logger) *Session {
	return &Session{
		auth:    auth,
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
	}
}

// WithClock replaces the time source used for AcquiredAt.
func (s *Session) WithClock(now func() time.Time) *Session {
	s.now = now
	return s
}

// Acquire performs one token exchange. On failure the stored credential, if
// any, is left as it was.
func (s *Session) Acquire(ctx context.Context) (Credential, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	token, err := s.auth.AccessToken(ctx)
	if err != nil {
		s.logger.Warn("access token exchange failed", zap.Error(err))
		return Credential{}, fmt.Errorf("%w: %v", quote.ErrAuth, err)
	}
	if token == "" {
		return Credential{}, fmt.Errorf("%w: empty access token", quote.ErrAuth)
	}

	cred := Credential{Token: token, AcquiredAt: s.now()}

	s.mu.Lock()
	s.cred = &cred
	s.mu.Unlock()

	s.logger.Info("access token acquired")
	return cred, nil
}

// Invalidate drops the stored credential.
func (s *Session) Invalidate() {
	s.mu.Lock()
	s.cred = nil
	s.mu.Unlock()
}

// Current returns the stored credential.
func (s *Session) Current() (Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cred == nil {
		return Credential{}, false
	}
	return *s.cred, true
}
