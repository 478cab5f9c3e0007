package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/devricklin/discord-relay/internal/biz/domain"
)

type mockJournalRepo struct {
	cutoffs []time.Time
	err     error
	mu      sync.Mutex
}

func (m *mockJournalRepo) Append(ctx context.Context, rec *domain.ReplyRecord) error {
	return nil
}

func (m *mockJournalRepo) Recent(ctx context.Context, limit int) ([]*domain.ReplyRecord, error) {
	return nil, nil
}

func (m *mockJournalRepo) Prune(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cutoffs = append(m.cutoffs, before)
	if m.err != nil {
		return 0, m.err
	}
	return 3, nil
}

func (m *mockJournalRepo) Close() error {
	return nil
}

func (m *mockJournalRepo) Calls() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Time(nil), m.cutoffs...)
}

func TestJournalJanitor_PrunesOnStartAndInterval(t *testing.T) {
	journal := &mockJournalRepo{}
	j := NewJournalJanitor(journal, 24*time.Hour, 20*time.Millisecond)
	fixed := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	j.now = func() time.Time { return fixed }

	j.Start(context.Background())
	deadline := time.Now().Add(2 * time.Second)
	for len(journal.Calls()) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	j.Stop()

	calls := journal.Calls()
	if len(calls) < 2 {
		t.Fatalf("Expected at least 2 prune calls, got %d", len(calls))
	}
	want := fixed.Add(-24 * time.Hour)
	if !calls[0].Equal(want) {
		t.Errorf("Expected cutoff %v, got %v", want, calls[0])
	}
}

func TestJournalJanitor_ErrorDoesNotStopLoop(t *testing.T) {
	journal := &mockJournalRepo{err: errors.New("database is locked")}
	j := NewJournalJanitor(journal, time.Hour, 10*time.Millisecond)

	j.Start(context.Background())
	deadline := time.Now().Add(2 * time.Second)
	for len(journal.Calls()) < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	j.Stop()

	if len(journal.Calls()) < 3 {
		t.Errorf("Expected the loop to keep running after errors, got %d calls", len(journal.Calls()))
	}
}

func TestJournalJanitor_DefaultInterval(t *testing.T) {
	j := NewJournalJanitor(&mockJournalRepo{}, time.Hour, 0)
	if j.interval != DefaultJanitorInterval {
		t.Errorf("Expected default interval %v, got %v", DefaultJanitorInterval, j.interval)
	}
	// Stop before Start is a no-op
	j.Stop()
}
