// Package session manages the short-lived state one valid submission
// needs: a cookie jar, an anti-forgery token, and the captured challenge
// text. A session context is exclusive to the attempt in flight; it is
// never shared between two concurrent attempts.
package session

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"sync"

	"github.com/google/uuid"
)

// Context carries the credentials for one submission attempt.
type Context struct {
	ID            string
	RecordID      string
	Jar           http.CookieJar
	Token         string
	ChallengeText string
	UserAgent     string
}

// TokenFetcher obtains a fresh anti-forgery token (and any challenge text
// presented alongside it) bound to the given cookie jar.
type TokenFetcher interface {
	FetchToken(ctx context.Context, jar http.CookieJar) (token, challenge string, err error)
}

// Manager produces session contexts. In fresh mode every acquisition
// builds a pristine jar and fetches a new token. In pooled mode contexts
// are cached per record identifier in a bounded LRU and revalidated on
// reuse only when marked expired.
type Manager struct {
	fetcher   TokenFetcher
	userAgent string
	fresh     bool

	mu   sync.Mutex
	pool *lruCache
}

// Config for a Manager.
type Config struct {
	// FreshPerRecord disables the pool: every record gets a pristine
	// session. This is the default mode; it avoids cross-record token
	// leakage at the cost of one extra page fetch per record.
	FreshPerRecord bool

	// PoolCapacity bounds the session pool in pooled mode.
	PoolCapacity int

	// UserAgent is stamped on every session context.
	UserAgent string
}

// NewManager creates a session manager.
func NewManager(fetcher TokenFetcher, cfg Config) *Manager {
	capacity := cfg.PoolCapacity
	if capacity < 1 {
		capacity = 50
	}
	return &Manager{
		fetcher:   fetcher,
		userAgent: cfg.UserAgent,
		fresh:     cfg.FreshPerRecord,
		pool:      newLRUCache(capacity),
	}
}

// Acquire returns a session context valid for one attempt of the given
// record. Pooled mode returns the cached context for the record when one
// exists; otherwise a new one is built and, in pooled mode, cached.
func (m *Manager) Acquire(ctx context.Context, recordID string) (*Context, error) {
	if !m.fresh {
		m.mu.Lock()
		cached, ok := m.pool.get(recordID)
		m.mu.Unlock()
		if ok {
			return cached, nil
		}
	}

	sess, err := m.build(ctx, recordID)
	if err != nil {
		return nil, err
	}

	if !m.fresh {
		m.mu.Lock()
		m.pool.put(recordID, sess)
		m.mu.Unlock()
	}
	return sess, nil
}

// Refresh replaces the token on an existing session after the remote
// reported it stale. The cookie jar is kept: the new token must be bound
// to the same cookies.
func (m *Manager) Refresh(ctx context.Context, sess *Context) error {
	token, challenge, err := m.fetcher.FetchToken(ctx, sess.Jar)
	if err != nil {
		return fmt.Errorf("failed to refresh token: %w", err)
	}
	sess.Token = token
	sess.ChallengeText = challenge
	return nil
}

// Invalidate drops any pooled session for the record. Call after an
// attempt sequence ends or when a pooled session proves unusable.
func (m *Manager) Invalidate(recordID string) {
	m.mu.Lock()
	m.pool.remove(recordID)
	m.mu.Unlock()
}

// PoolLen returns the number of pooled sessions.
func (m *Manager) PoolLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pool.len()
}

func (m *Manager) build(ctx context.Context, recordID string) (*Context, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	token, challenge, err := m.fetcher.FetchToken(ctx, jar)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch token: %w", err)
	}
	return &Context{
		ID:            uuid.NewString(),
		RecordID:      recordID,
		Jar:           jar,
		Token:         token,
		ChallengeText: challenge,
		UserAgent:     m.userAgent,
	}, nil
}
