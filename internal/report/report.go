// Package report tallies cycle outcomes and emits a daily digest on a
// cron schedule.
package report

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"karmabot/internal/domain"
	"karmabot/internal/eventbus"
	"karmabot/internal/quota"
	logx "karmabot/pkg/logx"
)

const DefaultSchedule = "55 23 * * *"

type Config struct {
	Schedule string // standard 5-field cron
	Location *time.Location
}

// QuotaSource exposes the current quota state for the digest header.
type QuotaSource interface {
	Snapshot() quota.Snapshot
}

// Tally counts actions since the last digest. Comment cycles count once
// per community.
type Tally struct {
	Since      time.Time
	Cycles     int
	Dispatched map[domain.ActionKind]int
	Skipped    map[domain.SkipReason]int
	Failed     map[domain.ActionKind]int
}

func newTally(since time.Time) Tally {
	return Tally{
		Since:      since,
		Dispatched: map[domain.ActionKind]int{},
		Skipped:    map[domain.SkipReason]int{},
		Failed:     map[domain.ActionKind]int{},
	}
}

func (t *Tally) add(o domain.Outcome) {
	t.Cycles++
	units := o.Children
	if len(units) == 0 {
		units = []domain.Outcome{o}
	}
	for _, u := range units {
		kind := u.Kind
		if kind == "" {
			kind = o.Kind
		}
		switch u.Status {
		case domain.StatusDispatched:
			t.Dispatched[kind]++
		case domain.StatusSkipped:
			t.Skipped[u.Reason]++
		case domain.StatusFailed:
			t.Failed[kind]++
		}
	}
}

type Service struct {
	cfg    Config
	bus    eventbus.Bus
	quota  QuotaSource
	sender logx.Sender
	log    logx.Logger
	now    func() time.Time

	mu    sync.Mutex
	tally Tally
}

// New builds a digest service. sender and quota may be nil.
func New(cfg Config, bus eventbus.Bus, q QuotaSource, sender logx.Sender, log logx.Logger) *Service {
	if strings.TrimSpace(cfg.Schedule) == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{cfg: cfg, bus: bus, quota: q, sender: sender, log: log, now: time.Now}
	s.tally = newTally(s.now())
	return s
}

// Run consumes outcome events and fires the digest on schedule until ctx
// is canceled.
func (s *Service) Run(ctx context.Context) error {
	sched, err := cron.ParseStandard(s.cfg.Schedule)
	if err != nil {
		return fmt.Errorf("report schedule %q: %w", s.cfg.Schedule, err)
	}

	events, unsubscribe := s.bus.Subscribe(64)
	defer unsubscribe()

	c := cron.New(cron.WithLocation(s.cfg.Location))
	c.Schedule(sched, cron.FuncJob(func() { s.Flush(ctx) }))
	c.Start()
	defer func() { <-c.Stop().Done() }()

	s.log.Info("daily digest scheduled", logx.String("schedule", s.cfg.Schedule), logx.String("tz", s.cfg.Location.String()))
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			if o, isOutcome := e.Data.(domain.Outcome); isOutcome && e.Type == eventbus.TypeCycleOutcome {
				s.Observe(o)
			}
		}
	}
}

// Observe adds one cycle outcome to the running tally.
func (s *Service) Observe(o domain.Outcome) {
	s.mu.Lock()
	s.tally.add(o)
	s.mu.Unlock()
}

// Snapshot returns a copy of the running tally.
func (s *Service) Snapshot() Tally {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := newTally(s.tally.Since)
	cp.Cycles = s.tally.Cycles
	for k, v := range s.tally.Dispatched {
		cp.Dispatched[k] = v
	}
	for k, v := range s.tally.Skipped {
		cp.Skipped[k] = v
	}
	for k, v := range s.tally.Failed {
		cp.Failed[k] = v
	}
	return cp
}

// Flush logs and sends the digest, then resets the tally.
func (s *Service) Flush(ctx context.Context) {
	now := s.now()
	s.mu.Lock()
	t := s.tally
	s.tally = newTally(now)
	s.mu.Unlock()

	var q *quota.Snapshot
	if s.quota != nil {
		snap := s.quota.Snapshot()
		q = &snap
	}
	text := Format(t, q, now.In(s.cfg.Location))

	s.log.Info("daily digest",
		logx.Int("cycles", t.Cycles),
		logx.Int("dispatched", sum(t.Dispatched)),
		logx.Int("skipped", sum(t.Skipped)),
		logx.Int("failed", sum(t.Failed)),
	)
	if s.sender == nil {
		return
	}
	if err := s.sender.SendText(ctx, text); err != nil {
		s.log.Warn("digest delivery failed", logx.Err(err))
	}
}

// Format renders a digest as plain text.
func Format(t Tally, q *quota.Snapshot, at time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Daily digest %s\n", at.Format("2006-01-02"))
	if q != nil {
		fmt.Fprintf(&b, "quota: %d/%d\n", q.DailyCount, q.MaxDailyActions)
	}
	fmt.Fprintf(&b, "cycles: %d\n", t.Cycles)
	fmt.Fprintf(&b, "dispatched: %s\n", counts(t.Dispatched))
	fmt.Fprintf(&b, "skipped: %s\n", counts(t.Skipped))
	fmt.Fprintf(&b, "failed: %s", counts(t.Failed))
	return b.String()
}

func counts[K ~string](m map[K]int) string {
	if len(m) == 0 {
		return "0"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		name := k
		if name == "" {
			name = "none"
		}
		parts = append(parts, fmt.Sprintf("%s=%d", name, m[K(k)]))
	}
	return strings.Join(parts, " ")
}

func sum[K comparable](m map[K]int) int {
	n := 0
	for _, v := range m {
		n += v
	}
	return n
}
