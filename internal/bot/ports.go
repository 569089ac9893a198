// Package bot selects, dispatches and paces the bot's actions.
package bot

import (
	"context"
	"time"

	"karmabot/internal/domain"
	"karmabot/internal/pacing"
)

// Platform is the subset of the community platform API the bot uses.
// Implementations classify failures as *domain.RemoteError or wrap
// domain.ErrAuthentication.
type Platform interface {
	FetchRecent(ctx context.Context, community string, limit int) ([]domain.Post, error)
	FindByURL(ctx context.Context, community, url string) (bool, error)
	SubmitPost(ctx context.Context, community, title, url string) (string, error)
	ReplyTo(ctx context.Context, postID, text string) (string, error)
}

// ReplyGenerator writes reply text for a post.
type ReplyGenerator interface {
	GenerateReply(ctx context.Context, seed, community string) (string, error)
}

// Gate grants or refuses an action attempt.
type Gate interface {
	TryConsume(now time.Time) bool
}

// Pacer computes the pause before the next cycle.
type Pacer interface {
	Next(now time.Time) pacing.Delay
}

// Clock reads the current time.
type Clock interface {
	Now() time.Time
}

// Random picks indexes; *math/rand.Rand satisfies it.
type Random interface {
	Intn(n int) int
}

// SleepFunc suspends for d, returning early with ctx.Err() on cancellation.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Recorder receives every cycle outcome.
type Recorder interface {
	RecordOutcome(ctx context.Context, o domain.Outcome)
}

// DelayObserver is optionally implemented by recorders interested in pacing.
type DelayObserver interface {
	ObserveDelay(d pacing.Delay)
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

// SleepContext is the real SleepFunc.
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
