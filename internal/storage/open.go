// Package storage keeps an append-only journal of action outcomes.
//
// The journal is for inspection only; nothing reads it back into the
// quota tracker.
package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "karmabot/pkg/logx"
)

// Store is the persistence API used by the bot.
type Store interface {
	AppendActivity(ctx context.Context, rec ActivityRecord) error
	// RecentActivity returns records at or after since, oldest first,
	// keeping at most limit of the newest (limit <= 0 means all).
	RecentActivity(ctx context.Context, since time.Time, limit int) ([]ActivityRecord, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

func keepNewest(recs []ActivityRecord, limit int) []ActivityRecord {
	if limit > 0 && len(recs) > limit {
		return recs[len(recs)-limit:]
	}
	return recs
}
