// Package agent ties reconciliation passes to notifications, metrics and health tracking.
package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nholik/openstack-service-checks/internal/healthcheck"
	"github.com/nholik/openstack-service-checks/internal/metrics"
	"github.com/nholik/openstack-service-checks/internal/notify"
	"github.com/nholik/openstack-service-checks/internal/reconcile"
	"github.com/nholik/openstack-service-checks/internal/state"
	"github.com/nholik/openstack-service-checks/internal/status"
	"github.com/nholik/openstack-service-checks/internal/transition"
)

// PassHandler runs one reconciliation pass.
type PassHandler interface {
	Handle(ctx context.Context, in reconcile.Inputs, triggers ...reconcile.Trigger) (reconcile.Result, error)
}

// Agent reports the outcome of every pass.
type Agent struct {
	logger   zerolog.Logger
	unit     string
	driver   PassHandler
	notifier notify.Notifier
	metrics  *metrics.Metrics
	tracker  *healthcheck.Tracker
	now      func() time.Time

	mu   sync.RWMutex
	last *reconcile.Result
}

// New constructs an Agent. notifier, collector and tracker may be nil.
func New(logger zerolog.Logger, unit string, driver PassHandler, notifier notify.Notifier, collector *metrics.Metrics, tracker *healthcheck.Tracker) *Agent {
	if notifier == nil {
		notifier = notify.NewNoop(logger, "")
	}
	return &Agent{
		logger:   logger,
		unit:     unit,
		driver:   driver,
		notifier: notifier,
		metrics:  collector,
		tracker:  tracker,
		now:      time.Now,
	}
}

// Reconcile implements runner.Handler.
func (a *Agent) Reconcile(ctx context.Context, in reconcile.Inputs, triggers ...reconcile.Trigger) error {
	_, err := a.Pass(ctx, in, triggers...)
	return err
}

// Pass runs one reconciliation pass and reports its outcome.
func (a *Agent) Pass(ctx context.Context, in reconcile.Inputs, triggers ...reconcile.Trigger) (reconcile.Result, error) {
	start := a.now()
	result, err := a.driver.Handle(ctx, in, triggers...)
	if err != nil {
		return reconcile.Result{}, err
	}
	duration := a.now().Sub(start)

	previous := result.Previous
	transitions := transition.DetectStageTransitions(&previous, result.Status)
	for _, change := range transitions {
		a.logTransition(change)
		a.metrics.IncTransition(change.Stage, string(change.CurrentLevel))
	}

	counts := make(map[string]int, len(result.Registered))
	registered := 0
	for family, specs := range result.Registered {
		counts[string(family)] = len(specs)
		registered += len(specs)
	}
	conditions := make(map[string]string, len(result.Status.Conditions))
	for _, condition := range result.Status.Conditions {
		conditions[condition.Stage] = string(condition.Level)
	}

	a.metrics.ObservePass(duration, string(result.Status.Level), a.now())
	a.metrics.AddRegistryChanges(len(result.Added), len(result.Removed))
	a.metrics.SetRegisteredChecks(counts)
	a.metrics.SetStageConditions(conditions)
	if result.Reloaded {
		a.metrics.IncReloads()
	}
	a.tracker.RecordPass(duration, registered, string(result.Status.Level), result.Status.Message)

	a.mu.Lock()
	a.last = &result
	a.mu.Unlock()

	if len(transitions) > 0 {
		if err := a.notifier.Notify(ctx, a.unit, transitions); err != nil {
			a.logger.Error().Err(err).Int("transitions", len(transitions)).Msg("notification failed")
		}
	}

	return result, nil
}

func (a *Agent) logTransition(change transition.StageTransition) {
	event := a.logger.Info()
	switch change.CurrentLevel {
	case status.LevelBlocked:
		event = a.logger.Error()
	case status.LevelWaiting, status.LevelMaintenance:
		event = a.logger.Warn()
	}
	event.
		Str("stage", change.Stage).
		Str("previous_level", string(change.PreviousLevel)).
		Str("current_level", string(change.CurrentLevel)).
		Str("message", change.CurrentMessage).
		Msg("stage transition detected")
}

// Last returns the most recent pass result.
func (a *Agent) Last() (reconcile.Result, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.last == nil {
		return reconcile.Result{}, false
	}
	return *a.last, true
}

// StatusHandler serves the most recent workload status as JSON.
func (a *Agent) StatusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		result, ok := a.Last()
		w.Header().Set("Content-Type", "application/json")
		if !ok {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "no pass completed yet"})
			return
		}
		_ = json.NewEncoder(w).Encode(struct {
			Status     status.WorkloadStatus `json:"status"`
			Flags      state.Flags           `json:"flags"`
			Registered []string              `json:"registered"`
		}{
			Status:     result.Status,
			Flags:      result.Flags,
			Registered: result.Registered.Names(),
		})
	})
}
