package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

// mockTokenFetcher implements TokenFetcher for testing.
type mockTokenFetcher struct {
	calls    int
	fetchErr error
}

func (m *mockTokenFetcher) FetchToken(ctx context.Context, jar http.CookieJar) (string, string, error) {
	if m.fetchErr != nil {
		return "", "", m.fetchErr
	}
	m.calls++
	return fmt.Sprintf("token-%d", m.calls), "A7X9", nil
}

func TestAcquireFreshMode(t *testing.T) {
	fetcher := &mockTokenFetcher{}
	mgr := NewManager(fetcher, Config{FreshPerRecord: true, UserAgent: "test-agent"})

	s1, err := mgr.Acquire(context.Background(), "123456")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	s2, err := mgr.Acquire(context.Background(), "123456")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	if s1.Token == s2.Token {
		t.Error("fresh mode must fetch a new token per acquisition")
	}
	if s1.ID == s2.ID {
		t.Error("fresh sessions must have distinct IDs")
	}
	if mgr.PoolLen() != 0 {
		t.Errorf("fresh mode must not pool, PoolLen = %d", mgr.PoolLen())
	}
	if s1.UserAgent != "test-agent" {
		t.Errorf("UserAgent = %q, want %q", s1.UserAgent, "test-agent")
	}
	if s1.ChallengeText != "A7X9" {
		t.Errorf("ChallengeText = %q, want %q", s1.ChallengeText, "A7X9")
	}
}

func TestAcquirePooledModeReusesPerRecord(t *testing.T) {
	fetcher := &mockTokenFetcher{}
	mgr := NewManager(fetcher, Config{PoolCapacity: 10})

	s1, _ := mgr.Acquire(context.Background(), "123456")
	s2, _ := mgr.Acquire(context.Background(), "123456")
	if s1 != s2 {
		t.Error("pooled mode should reuse the cached session for a record")
	}
	if fetcher.calls != 1 {
		t.Errorf("token fetches = %d, want 1", fetcher.calls)
	}

	s3, _ := mgr.Acquire(context.Background(), "789012")
	if s3 == s1 {
		t.Error("distinct records must not share a session")
	}
	if mgr.PoolLen() != 2 {
		t.Errorf("PoolLen = %d, want 2", mgr.PoolLen())
	}
}

func TestPoolEvictsLeastRecentlyUsed(t *testing.T) {
	fetcher := &mockTokenFetcher{}
	mgr := NewManager(fetcher, Config{PoolCapacity: 2})

	mgr.Acquire(context.Background(), "a")
	mgr.Acquire(context.Background(), "b")
	mgr.Acquire(context.Background(), "a") // refresh recency of a
	mgr.Acquire(context.Background(), "c") // evicts b

	if mgr.PoolLen() != 2 {
		t.Fatalf("PoolLen = %d, want 2", mgr.PoolLen())
	}
	before := fetcher.calls
	mgr.Acquire(context.Background(), "a")
	if fetcher.calls != before {
		t.Error("a should still be pooled")
	}
	mgr.Acquire(context.Background(), "b")
	if fetcher.calls != before+1 {
		t.Error("b should have been evicted and rebuilt")
	}
}

func TestRefreshKeepsJar(t *testing.T) {
	fetcher := &mockTokenFetcher{}
	mgr := NewManager(fetcher, Config{FreshPerRecord: true})

	sess, _ := mgr.Acquire(context.Background(), "123456")
	jar := sess.Jar
	oldToken := sess.Token

	if err := mgr.Refresh(context.Background(), sess); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if sess.Token == oldToken {
		t.Error("Refresh should replace the token")
	}
	if sess.Jar != jar {
		t.Error("Refresh must keep the cookie jar")
	}
}

func TestInvalidateDropsPooledSession(t *testing.T) {
	fetcher := &mockTokenFetcher{}
	mgr := NewManager(fetcher, Config{PoolCapacity: 10})

	mgr.Acquire(context.Background(), "123456")
	mgr.Invalidate("123456")
	if mgr.PoolLen() != 0 {
		t.Errorf("PoolLen = %d after invalidate, want 0", mgr.PoolLen())
	}
}

func TestAcquirePropagatesFetchError(t *testing.T) {
	fetcher := &mockTokenFetcher{fetchErr: errors.New("boom")}
	mgr := NewManager(fetcher, Config{FreshPerRecord: true})

	if _, err := mgr.Acquire(context.Background(), "123456"); err == nil {
		t.Error("Acquire should propagate token fetch errors")
	}
}
