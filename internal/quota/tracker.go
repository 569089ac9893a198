// Package quota gates how many actions the bot may attempt per calendar day.
package quota

import (
	"sync/atomic"
	"time"
)

// Tracker counts granted action attempts for the current day.
//
// TryConsume must be called from a single goroutine (the run loop).
// Snapshot may be called concurrently from anywhere; its view is eventually consistent.
type Tracker struct {
	max int
	loc *time.Location

	count    atomic.Int64
	lastDate atomic.Int64 // days since the Unix epoch, in loc
}

// Snapshot is a read-only view of the tracker.
type Snapshot struct {
	DailyCount      int       `json:"daily_actions"`
	MaxDailyActions int       `json:"max_daily_actions"`
	LastActionDate  time.Time `json:"last_action_date"`
}

// New creates a tracker allowing max actions per day. start fixes the initial
// date; loc decides where a day begins (nil means start's location).
func New(max int, start time.Time, loc *time.Location) *Tracker {
	if loc == nil {
		loc = start.Location()
	}
	t := &Tracker{max: max, loc: loc}
	t.lastDate.Store(dayNumber(start, loc))
	return t
}

// TryConsume grants one action attempt at now, or reports that today's quota
// is used up. A new calendar date resets the counter before the limit check.
func (t *Tracker) TryConsume(now time.Time) bool {
	day := dayNumber(now, t.loc)
	if day > t.lastDate.Load() {
		t.count.Store(0)
		t.lastDate.Store(day)
	}
	if t.count.Load() >= int64(t.max) {
		return false
	}
	t.count.Add(1)
	t.lastDate.Store(day)
	return true
}

func (t *Tracker) Max() int { return t.max }

func (t *Tracker) Snapshot() Snapshot {
	return Snapshot{
		DailyCount:      int(t.count.Load()),
		MaxDailyActions: t.max,
		LastActionDate:  dateOf(t.lastDate.Load(), t.loc),
	}
}

func dayNumber(ts time.Time, loc *time.Location) int64 {
	y, m, d := ts.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
}

func dateOf(day int64, loc *time.Location) time.Time {
	u := time.Unix(day*86400, 0).UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, loc)
}
