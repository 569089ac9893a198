package bot

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"karmabot/internal/domain"
	logx "karmabot/pkg/logx"
)

// Cycler runs one cycle; *Dispatcher implements it.
type Cycler interface {
	RunCycle(ctx context.Context) (domain.Outcome, error)
}

// RunnerDeps are the collaborators of a Runner.
type RunnerDeps struct {
	Cycler    Cycler
	Pacer     Pacer
	Clock     Clock
	Sleep     SleepFunc
	Recorders []Recorder
	Logger    logx.Logger
}

// Runner drives cycles forever: one immediately, then pace, sleep, cycle.
type Runner struct {
	cycler    Cycler
	pacer     Pacer
	clk       Clock
	sleep     SleepFunc
	recorders []Recorder
	log       logx.Logger
}

func NewRunner(deps RunnerDeps) *Runner {
	if deps.Clock == nil {
		deps.Clock = SystemClock()
	}
	if deps.Sleep == nil {
		deps.Sleep = SleepContext
	}
	if deps.Logger.IsZero() {
		deps.Logger = logx.Nop()
	}
	return &Runner{
		cycler:    deps.Cycler,
		pacer:     deps.Pacer,
		clk:       deps.Clock,
		sleep:     deps.Sleep,
		recorders: deps.Recorders,
		log:       deps.Logger,
	}
}

// Run blocks until ctx is canceled (returns nil) or a cycle fails fatally
// (returns the error).
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("run loop started")
	if err := r.cycle(ctx); err != nil {
		return err
	}
	for {
		if ctx.Err() != nil {
			r.log.Info("run loop stopped")
			return nil
		}

		d := r.pacer.Next(r.clk.Now())
		for _, rec := range r.recorders {
			if o, ok := rec.(DelayObserver); ok {
				o.ObserveDelay(d)
			}
		}
		r.log.Info("waiting to appear human-like",
			logx.Duration("delay", d.Duration),
			logx.String("regime", string(d.Regime)),
			logx.Int("min_s", d.MinSeconds),
			logx.Int("max_s", d.MaxSeconds),
		)
		if err := r.sleep(ctx, d.Duration); err != nil {
			r.log.Info("run loop stopped", logx.String("during", "sleep"))
			return nil
		}

		if err := r.cycle(ctx); err != nil {
			return err
		}
	}
}

func (r *Runner) cycle(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("cycle panicked: %v", p)
			r.log.Error("fatal error in run loop", logx.Any("panic", p), logx.String("stack", string(debug.Stack())))
		}
	}()

	o, err := r.cycler.RunCycle(ctx)
	r.record(ctx, o)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return nil
		}
		r.log.Error("fatal error in run loop", logx.Err(err))
		return err
	}
	return nil
}

func (r *Runner) record(ctx context.Context, o domain.Outcome) {
	fields := []logx.Field{
		logx.String("kind", string(o.Kind)),
		logx.String("status", string(o.Status)),
	}
	if o.Reason != "" {
		fields = append(fields, logx.String("reason", string(o.Reason)))
	}
	if o.Community != "" {
		fields = append(fields, logx.String("community", o.Community))
	}
	if o.Target != "" {
		fields = append(fields, logx.String("target", o.Target))
	}
	if len(o.Children) > 0 {
		fields = append(fields, logx.Int("communities", len(o.Children)))
	}
	if o.Err != nil {
		fields = append(fields, logx.Err(o.Err))
	}
	if o.Status == domain.StatusFailed {
		r.log.Warn("cycle finished", fields...)
	} else {
		r.log.Info("cycle finished", fields...)
	}

	for _, rec := range r.recorders {
		rec.RecordOutcome(ctx, o)
	}
}
