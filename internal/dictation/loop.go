// Package dictation drives a dictation exercise page: fill every blank from
// the answer hidden in its markup, advance to the next exercise, repeat.
package dictation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/dictafill/internal/browser/dom"
)

// State is the phase the loop is in.
type State int

const (
	StateFilling State = iota
	StateAdvancing
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateFilling:
		return "FILLING"
	case StateAdvancing:
		return "ADVANCING"
	case StateStopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Transition is reported to the Observer whenever the loop schedules work
// or stops. Delay is the wait before the next phase runs.
type Transition struct {
	From   State
	To     State
	Delay  time.Duration
	Reason string
}

// Observer receives every transition, synchronously, on the loop goroutine.
type Observer func(Transition)

// Summary describes a finished run.
type Summary struct {
	RunID            string        `json:"run_id"`
	Cycles           int           `json:"cycles"`
	Filled           int           `json:"filled"`
	Skipped          int           `json:"skipped"`
	ContainerRetries int           `json:"container_retries"`
	Advances         int           `json:"advances"`
	State            State         `json:"-"`
	StopReason       string        `json:"stop_reason"`
	Elapsed          time.Duration `json:"elapsed"`
}

// Loop is the fill-then-advance control loop. It is single threaded: every
// phase runs to completion before the next one is scheduled, and nothing
// else touches the page while Run is active.
type Loop struct {
	page     dom.Page
	opts     Options
	logger   *zap.Logger
	clock    Clock
	observer Observer
	runID    string
}

// Option customizes a Loop.
type Option func(*Loop)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c Clock) Option { return func(l *Loop) { l.clock = c } }

// WithObserver registers a transition callback.
func WithObserver(o Observer) Option { return func(l *Loop) { l.observer = o } }

// WithRunID fixes the run id instead of generating one.
func WithRunID(id string) Option { return func(l *Loop) { l.runID = id } }

// New builds a loop over page.
func New(page dom.Page, opts Options, logger *zap.Logger, options ...Option) (*Loop, error) {
	if page == nil {
		return nil, fmt.Errorf("page is required")
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid loop options: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Loop{
		page:  page,
		opts:  opts,
		clock: wallClock{},
	}
	for _, o := range options {
		o(l)
	}
	if l.runID == "" {
		l.runID = uuid.New().String()
	}
	l.logger = logger.Named("loop").With(zap.String("run_id", l.runID))
	return l, nil
}

// Run drives the loop until no navigation control can be found
// (ErrNoNavigationControl), a configured container ceiling is hit
// (ErrContainerTimeout), a click fails, or ctx is done.
func (l *Loop) Run(ctx context.Context) (Summary, error) {
	started := time.Now()
	sum := Summary{RunID: l.runID, State: StateFilling}
	misses := 0
	var delay time.Duration

	stop := func(reason string, err error) (Summary, error) {
		l.transition(sum.State, StateStopped, 0, reason)
		sum.State = StateStopped
		sum.StopReason = reason
		sum.Elapsed = time.Since(started)
		return sum, err
	}

	l.logger.Info("Starting auto-fill loop.")
	for {
		if err := l.wait(ctx, delay); err != nil {
			return stop("context done", err)
		}

		switch sum.State {
		case StateFilling:
			res, err := l.AttemptFill(ctx)
			if errors.Is(err, ErrContainerMissing) {
				misses++
				sum.ContainerRetries++
				if l.opts.Retry.Exhausted(misses) {
					l.logger.Warn("Container never appeared. Giving up.", zap.Int("attempts", misses))
					return stop("container missing", fmt.Errorf("%w after %d attempts", ErrContainerTimeout, misses))
				}
				delay = l.opts.Retry.Next(misses)
				l.logger.Info("Container not found. Retrying.", zap.Duration("delay", delay), zap.Int("attempt", misses), zap.NamedError("cause", err))
				l.transition(StateFilling, StateFilling, delay, "container missing")
				continue
			}
			if err != nil {
				return stop("fill failed", err)
			}

			misses = 0
			sum.Cycles++
			sum.Filled += res.Filled
			sum.Skipped += res.Skipped
			if res.Filled > 0 {
				l.logger.Info("Filled blanks. Waiting before jumping to the next sentence.",
					zap.Int("filled", res.Filled), zap.Duration("delay", l.opts.AdvanceDelay))
			} else {
				l.logger.Info("No blanks were filled. Moving to the next sentence anyway.",
					zap.Duration("delay", l.opts.AdvanceDelay))
			}
			delay = l.opts.AdvanceDelay
			l.transition(StateFilling, StateAdvancing, delay, "fill cycle complete")
			sum.State = StateAdvancing

		case StateAdvancing:
			advanced, err := l.Advance(ctx)
			if err != nil {
				return stop("advance failed", err)
			}
			if !advanced {
				l.logger.Warn("Could not find the 'Next' control. Loop stopped. Please click 'Next' manually.")
				return stop("navigation control not found", ErrNoNavigationControl)
			}
			sum.Advances++
			delay = l.opts.RenderDelay
			l.logger.Info("Waiting for the next exercise to render.", zap.Duration("delay", delay))
			l.transition(StateAdvancing, StateFilling, delay, "navigated")
			sum.State = StateFilling
		}
	}
}

// Inspection is a read-only pass over the current page.
type Inspection struct {
	Fill               FillResult `json:"fill"`
	NavigationStrategy string     `json:"navigation_strategy,omitempty"`
	NavigationControl  string     `json:"navigation_control,omitempty"`
}

// Inspect extracts answers and locates the navigation control without
// writing, notifying or clicking anything.
func (l *Loop) Inspect(ctx context.Context) (Inspection, error) {
	var out Inspection
	res, err := l.fill(ctx, false)
	if err != nil {
		return out, err
	}
	out.Fill = res

	match, ok, err := l.FindNavigation(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return out, ctxErr
		}
		l.logger.Debug("Navigation probes reported errors.", zap.Error(err))
	}
	if ok {
		out.NavigationStrategy = match.Source
		out.NavigationControl = dom.Describe(match.Value)
	}
	return out, nil
}

func (l *Loop) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.clock.After(d):
		return nil
	}
}

func (l *Loop) transition(from, to State, delay time.Duration, reason string) {
	l.logger.Debug("State transition.", zap.Stringer("from", from), zap.Stringer("to", to), zap.Duration("delay", delay), zap.String("reason", reason))
	if l.observer != nil {
		l.observer(Transition{From: from, To: to, Delay: delay, Reason: reason})
	}
}
