package report

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"karmabot/internal/domain"
	"karmabot/internal/eventbus"
	"karmabot/internal/quota"
	logx "karmabot/pkg/logx"
)

type recordingSender struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (r *recordingSender) SendText(_ context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
	return r.err
}

type fixedQuota quota.Snapshot

func (f fixedQuota) Snapshot() quota.Snapshot { return quota.Snapshot(f) }

func commentCycle() domain.Outcome {
	return domain.Outcome{
		Kind:   domain.ActionComment,
		Status: domain.StatusDispatched,
		Children: []domain.Outcome{
			{Kind: domain.ActionComment, Status: domain.StatusDispatched, Community: "a"},
			{Kind: domain.ActionComment, Status: domain.StatusFailed, Community: "b", Err: errors.New("503")},
			{Kind: domain.ActionComment, Status: domain.StatusSkipped, Reason: domain.SkipNoContent, Community: "c"},
		},
	}
}

func TestTallyAndFormat(t *testing.T) {
	t.Parallel()
	s := New(Config{Location: time.UTC}, eventbus.New(), nil, nil, logx.Nop())
	s.Observe(commentCycle())
	s.Observe(domain.Dispatched(domain.ActionRepost))
	s.Observe(domain.Skipped("", domain.SkipQuotaExhausted))

	tally := s.Snapshot()
	if tally.Cycles != 3 {
		t.Fatalf("cycles = %d", tally.Cycles)
	}
	if tally.Dispatched[domain.ActionComment] != 1 || tally.Dispatched[domain.ActionRepost] != 1 {
		t.Fatalf("dispatched = %v", tally.Dispatched)
	}
	if tally.Failed[domain.ActionComment] != 1 || tally.Skipped[domain.SkipQuotaExhausted] != 1 || tally.Skipped[domain.SkipNoContent] != 1 {
		t.Fatalf("tally = %+v", tally)
	}

	q := quota.Snapshot{DailyCount: 4, MaxDailyActions: 50}
	got := Format(tally, &q, time.Date(2024, 3, 6, 23, 55, 0, 0, time.UTC))
	want := strings.Join([]string{
		"Daily digest 2024-03-06",
		"quota: 4/50",
		"cycles: 3",
		"dispatched: comment=1 repost=1",
		"skipped: no_content=1 quota_exhausted=1",
		"failed: comment=1",
	}, "\n")
	if got != want {
		t.Fatalf("Format =\n%s\nwant\n%s", got, want)
	}
}

func TestFlushSendsAndResets(t *testing.T) {
	t.Parallel()
	sender := &recordingSender{err: errors.New("telegram down")}
	s := New(Config{Location: time.UTC}, eventbus.New(), fixedQuota{DailyCount: 2, MaxDailyActions: 5}, sender, logx.Nop())
	s.Observe(domain.Dispatched(domain.ActionRepost))

	s.Flush(context.Background())
	if len(sender.texts) != 1 || !strings.Contains(sender.texts[0], "quota: 2/5") || !strings.Contains(sender.texts[0], "repost=1") {
		t.Fatalf("sent = %q", sender.texts)
	}
	if got := s.Snapshot(); got.Cycles != 0 || len(got.Dispatched) != 0 {
		t.Fatalf("tally not reset: %+v", got)
	}

	s.Flush(context.Background())
	if !strings.Contains(sender.texts[1], "dispatched: 0") {
		t.Fatalf("empty digest = %q", sender.texts[1])
	}
}

func TestRunConsumesBusEvents(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	s := New(Config{Location: time.UTC}, bus, nil, nil, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for s.Snapshot().Cycles == 0 {
		if time.Now().After(deadline) {
			t.Fatal("outcome event was not tallied")
		}
		// Publish until the subscription is in place.
		bus.Publish(eventbus.Event{Type: eventbus.TypeDelayChosen, Data: time.Second})
		bus.Publish(eventbus.Event{Type: eventbus.TypeCycleOutcome, Data: domain.Dispatched(domain.ActionComment)})
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestRunRejectsBadSchedule(t *testing.T) {
	t.Parallel()
	s := New(Config{Schedule: "whenever"}, eventbus.New(), nil, nil, logx.Nop())
	if err := s.Run(context.Background()); err == nil {
		t.Fatal("expected schedule error")
	}
}
