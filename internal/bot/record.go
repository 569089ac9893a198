package bot

import (
	"context"

	"github.com/google/uuid"

	"karmabot/internal/domain"
	"karmabot/internal/eventbus"
	"karmabot/internal/pacing"
	"karmabot/internal/storage"
	logx "karmabot/pkg/logx"
)

// JournalRecorder appends outcomes to the activity journal. A comment
// cycle produces one record per community.
type JournalRecorder struct {
	Store storage.Store
	Log   logx.Logger
}

func (j JournalRecorder) RecordOutcome(ctx context.Context, o domain.Outcome) {
	if j.Store == nil {
		return
	}
	for _, rec := range ActivityRecords(o) {
		if err := j.Store.AppendActivity(ctx, rec); err != nil && !j.Log.IsZero() {
			j.Log.Warn("activity journal write failed", logx.Err(err))
		}
	}
}

// ActivityRecords flattens an outcome into journal records.
func ActivityRecords(o domain.Outcome) []storage.ActivityRecord {
	if len(o.Children) == 0 {
		return []storage.ActivityRecord{activityRecord(o)}
	}
	out := make([]storage.ActivityRecord, 0, len(o.Children))
	for _, c := range o.Children {
		if c.At.IsZero() {
			c.At = o.At
		}
		if c.Kind == "" {
			c.Kind = o.Kind
		}
		out = append(out, activityRecord(c))
	}
	return out
}

func activityRecord(o domain.Outcome) storage.ActivityRecord {
	return storage.ActivityRecord{
		ID:        uuid.NewString(),
		At:        o.At,
		Kind:      string(o.Kind),
		Status:    string(o.Status),
		Reason:    string(o.Reason),
		Community: o.Community,
		Target:    o.Target,
		PostID:    o.PostID,
		ResultID:  o.ResultID,
		Detail:    o.Detail,
		Error:     o.ErrString(),
	}
}

// BusRecorder publishes outcomes and pacing decisions on the event bus.
type BusRecorder struct {
	Bus eventbus.Bus
}

func (b BusRecorder) RecordOutcome(_ context.Context, o domain.Outcome) {
	if b.Bus == nil {
		return
	}
	b.Bus.Publish(eventbus.Event{Type: eventbus.TypeCycleOutcome, Time: o.At, Data: o})
}

func (b BusRecorder) ObserveDelay(d pacing.Delay) {
	if b.Bus == nil {
		return
	}
	b.Bus.Publish(eventbus.Event{Type: eventbus.TypeDelayChosen, Data: d})
}
