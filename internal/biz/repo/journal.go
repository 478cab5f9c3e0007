package repo

import (
	"context"
	"time"

	"github.com/devricklin/discord-relay/internal/biz/domain"
)

// JournalRepo is the reply journal interface
// Records are write-only for the relay; nothing reads them back into the gate
type JournalRepo interface {
	// Append stores a reply attempt
	Append(ctx context.Context, rec *domain.ReplyRecord) error

	// Recent lists the newest records first
	Recent(ctx context.Context, limit int) ([]*domain.ReplyRecord, error)

	// Prune deletes records completed before the cutoff
	Prune(ctx context.Context, before time.Time) (int64, error)

	Close() error
}
