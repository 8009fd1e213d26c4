// Package runner drives reconciliation passes on a poll interval and on demand.
package runner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nholik/openstack-service-checks/internal/config"
	"github.com/nholik/openstack-service-checks/internal/reconcile"
)

// Ticker is the minimal interface needed for driving the runner loop.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	ticker *time.Ticker
}

func (t timeTicker) C() <-chan time.Time {
	return t.ticker.C
}

func (t timeTicker) Stop() {
	t.ticker.Stop()
}

// Source supplies the inputs of a pass.
type Source interface {
	Load(ctx context.Context) (reconcile.Inputs, error)
}

// Handler runs one reconciliation pass.
type Handler interface {
	Reconcile(ctx context.Context, in reconcile.Inputs, triggers ...reconcile.Trigger) error
}

// FileSource reads the options and relations files on every pass.
type FileSource struct {
	OptionsPath   string
	RelationsPath string
}

// Load implements Source.
func (s FileSource) Load(context.Context) (reconcile.Inputs, error) {
	opts, optionFingerprints, err := config.LoadOptions(s.OptionsPath)
	if err != nil {
		return reconcile.Inputs{}, inputError("load options", s.OptionsPath, err)
	}
	relations, relationFingerprints, err := config.LoadRelations(s.RelationsPath)
	if err != nil {
		return reconcile.Inputs{}, inputError("load relations", s.RelationsPath, err)
	}
	return reconcile.Inputs{
		Options:              opts,
		Relations:            relations,
		OptionFingerprints:   optionFingerprints,
		RelationFingerprints: relationFingerprints,
	}, nil
}

// Runner orchestrates the main execution loop.
type Runner struct {
	logger        zerolog.Logger
	pollInterval  time.Duration
	tickerFactory func(time.Duration) Ticker
	runOnce       func(context.Context) error
	source        Source
	handler       Handler

	mu      sync.Mutex
	pending []reconcile.Trigger
	wake    chan struct{}
}

// Option customizes runner behavior.
type Option func(*Runner)

// WithTickerFactory overrides how tickers are created.
func WithTickerFactory(factory func(time.Duration) Ticker) Option {
	return func(r *Runner) {
		r.tickerFactory = factory
	}
}

// WithRunOnce overrides the single-pass execution step.
func WithRunOnce(runOnce func(context.Context) error) Option {
	return func(r *Runner) {
		r.runOnce = runOnce
	}
}

// WithSource sets where the default RunOnce reads its inputs.
func WithSource(source Source) Option {
	return func(r *Runner) {
		r.source = source
	}
}

// WithHandler sets the pass handler used by the default RunOnce.
func WithHandler(handler Handler) Option {
	return func(r *Runner) {
		r.handler = handler
	}
}

// New constructs a Runner with the given logger and poll interval.
func New(logger zerolog.Logger, pollInterval time.Duration, opts ...Option) *Runner {
	r := &Runner{
		logger:       logger,
		pollInterval: pollInterval,
		tickerFactory: func(d time.Duration) Ticker {
			return timeTicker{ticker: time.NewTicker(d)}
		},
		wake: make(chan struct{}, 1),
	}
	r.runOnce = r.defaultRunOnce

	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Enqueue schedules an explicit trigger for the next pass and wakes the loop.
func (r *Runner) Enqueue(trigger reconcile.Trigger) {
	r.mu.Lock()
	r.pending = append(r.pending, trigger)
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Run starts the main loop and blocks until the context is canceled.
func (r *Runner) Run(ctx context.Context) error {
	if r.pollInterval <= 0 {
		return errors.New("poll interval must be greater than zero")
	}

	// Run immediately on startup
	r.runLogged(ctx, "initial pass failed")

	ticker := r.tickerFactory(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("runner stopped")
			return nil
		case <-ticker.C():
			r.runLogged(ctx, "pass failed")
		case <-r.wake:
			r.runLogged(ctx, "triggered pass failed")
		}
	}
}

func (r *Runner) runLogged(ctx context.Context, msg string) {
	err := r.RunOnce(ctx)
	if err == nil {
		return
	}
	var runtimeErr *RuntimeError
	if errors.As(err, &runtimeErr) {
		r.logger.Warn().Err(err).Msg(msg)
		return
	}
	r.logger.Error().Err(err).Msg(msg)
}

// RunOnce executes a single pass.
func (r *Runner) RunOnce(ctx context.Context) error {
	return r.runOnce(ctx)
}

func (r *Runner) defaultRunOnce(ctx context.Context) error {
	if r.source == nil || r.handler == nil {
		return errors.New("runner has no input source or handler")
	}

	triggers := r.drain()
	in, err := r.source.Load(ctx)
	if err != nil {
		r.requeue(triggers)
		return err
	}

	if err := r.handler.Reconcile(ctx, in, triggers...); err != nil {
		r.requeue(triggers)
		return err
	}
	return nil
}

func (r *Runner) drain() []reconcile.Trigger {
	r.mu.Lock()
	defer r.mu.Unlock()
	triggers := r.pending
	r.pending = nil
	return triggers
}

func (r *Runner) requeue(triggers []reconcile.Trigger) {
	if len(triggers) == 0 {
		return
	}
	r.mu.Lock()
	r.pending = append(triggers, r.pending...)
	r.mu.Unlock()
}
