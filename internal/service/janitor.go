package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/devricklin/discord-relay/internal/biz/repo"
)

// DefaultJanitorInterval is how often the journal is pruned
const DefaultJanitorInterval = 6 * time.Hour

// JournalJanitor periodically deletes journal records past their retention
type JournalJanitor struct {
	journal   repo.JournalRepo
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	logger    *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewJournalJanitor creates a new journal janitor
func NewJournalJanitor(journal repo.JournalRepo, retention, interval time.Duration) *JournalJanitor {
	if interval <= 0 {
		interval = DefaultJanitorInterval
	}
	return &JournalJanitor{
		journal:   journal,
		retention: retention,
		interval:  interval,
		now:       time.Now,
		logger:    slog.With("component", "janitor"),
	}
}

// Start prunes once and then on every interval until Stop
func (j *JournalJanitor) Start(ctx context.Context) {
	ctx, j.cancel = context.WithCancel(ctx)

	j.wg.Add(1)
	go j.cleanupLoop(ctx)

	j.logger.Info("journal janitor started", "retention", j.retention.String(), "interval", j.interval.String())
}

// Stop stops the janitor
func (j *JournalJanitor) Stop() {
	if j.cancel != nil {
		j.cancel()
	}
	j.wg.Wait()
}

func (j *JournalJanitor) cleanupLoop(ctx context.Context) {
	defer j.wg.Done()

	j.cleanup(ctx)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.cleanup(ctx)
		}
	}
}

// cleanup deletes records older than the retention window
func (j *JournalJanitor) cleanup(ctx context.Context) {
	count, err := j.journal.Prune(ctx, j.now().Add(-j.retention))
	if err != nil {
		j.logger.Warn("journal cleanup failed", "err", err)
		return
	}

	if count > 0 {
		j.logger.Info("pruned old journal records", "count", count)
	}
}
