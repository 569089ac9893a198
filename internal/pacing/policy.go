// Package pacing decides how long the bot waits between cycles.
package pacing

import (
	"errors"
	"fmt"
	"time"
)

// Dormant bounds apply outside active hours regardless of weekday.
const (
	DormantMinSeconds = 4 * 60 * 60
	DormantMaxSeconds = 8 * 60 * 60
)

// Config holds the human-simulation settings. Immutable after startup.
type Config struct {
	MinDelaySeconds          int
	MaxDelaySeconds          int
	ActiveHoursStart         int
	// ActiveHoursEnd is exclusive. 24 is accepted so that 0..24 means
	// always active and the bot never enters the dormant regime.
	ActiveHoursEnd           int
	WeekendActivityReduction float64
}

// DefaultConfig mirrors the defaults of the human_simulation block.
func DefaultConfig() Config {
	return Config{
		MinDelaySeconds:          300,
		MaxDelaySeconds:          1800,
		ActiveHoursStart:         9,
		ActiveHoursEnd:           23,
		WeekendActivityReduction: 0.7,
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.MinDelaySeconds <= 0 {
		errs = append(errs, fmt.Errorf("min_delay_between_actions must be > 0 (got %d)", c.MinDelaySeconds))
	}
	if c.MaxDelaySeconds < c.MinDelaySeconds {
		errs = append(errs, fmt.Errorf("max_delay_between_actions (%d) must be >= min_delay_between_actions (%d)", c.MaxDelaySeconds, c.MinDelaySeconds))
	}
	if c.ActiveHoursStart < 0 || c.ActiveHoursStart > 23 {
		errs = append(errs, fmt.Errorf("active_hours_start must be in [0,23] (got %d)", c.ActiveHoursStart))
	}
	if c.ActiveHoursEnd <= c.ActiveHoursStart || c.ActiveHoursEnd > 24 {
		errs = append(errs, fmt.Errorf("active_hours_end must be in (active_hours_start,24] (got %d)", c.ActiveHoursEnd))
	}
	if c.WeekendActivityReduction <= 0 || c.WeekendActivityReduction > 1 {
		errs = append(errs, fmt.Errorf("weekend_activity_reduction must be in (0,1] (got %g)", c.WeekendActivityReduction))
	}
	return errors.Join(errs...)
}

// Regime names the rule that produced a delay.
type Regime string

const (
	RegimeActive  Regime = "active"
	RegimeWeekend Regime = "weekend"
	RegimeDormant Regime = "dormant"
)

// Delay is a computed pause together with the bounds it was drawn from.
type Delay struct {
	Duration   time.Duration
	Regime     Regime
	MinSeconds int
	MaxSeconds int
}

// IsWeekend reports whether ts falls on Saturday or Sunday.
func IsWeekend(ts time.Time) bool {
	wd := ts.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// WeekendMaxSeconds is the upper delay bound on weekends.
func (c Config) WeekendMaxSeconds() int {
	return int(float64(c.MaxDelaySeconds) / c.WeekendActivityReduction)
}

// InActiveHours reports whether hour is inside [ActiveHoursStart, ActiveHoursEnd).
func (c Config) InActiveHours(hour int) bool {
	return hour >= c.ActiveHoursStart && hour < c.ActiveHoursEnd
}

// ComputeDelay returns how long to wait before the next cycle at now.
// It is a pure computation; the caller sleeps.
func ComputeDelay(now time.Time, cfg Config, j Jitter) Delay {
	lo, hi := cfg.MinDelaySeconds, cfg.MaxDelaySeconds
	regime := RegimeActive
	if IsWeekend(now) {
		hi = cfg.WeekendMaxSeconds()
		regime = RegimeWeekend
	}

	if !cfg.InActiveHours(now.Hour()) {
		lo, hi = DormantMinSeconds, DormantMaxSeconds
		regime = RegimeDormant
	}

	if lo < 1 {
		lo = 1
	}
	if hi < lo {
		hi = lo
	}
	secs := j.Seconds(lo, hi)
	return Delay{
		Duration:   time.Duration(secs) * time.Second,
		Regime:     regime,
		MinSeconds: lo,
		MaxSeconds: hi,
	}
}

// Policy binds a Config to a jitter source and the timezone used to judge
// weekdays and hours.
type Policy struct {
	cfg    Config
	jitter Jitter
	loc    *time.Location
}

func NewPolicy(cfg Config, j Jitter, loc *time.Location) *Policy {
	if j == nil {
		j = NewTimeJitter()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Policy{cfg: cfg, jitter: j, loc: loc}
}

func (p *Policy) Config() Config { return p.cfg }

func (p *Policy) Next(now time.Time) Delay {
	return ComputeDelay(now.In(p.loc), p.cfg, p.jitter)
}
