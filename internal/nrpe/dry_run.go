package nrpe

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/nholik/openstack-service-checks/internal/checks"
)

// DryRunRegistry logs what would change without touching disk or the daemon.
// It remembers definitions in memory so idempotence holds within a process.
type DryRunRegistry struct {
	logger zerolog.Logger

	mu      sync.Mutex
	entries map[string]string
}

// NewDryRunRegistry constructs a DryRunRegistry.
func NewDryRunRegistry(logger zerolog.Logger) *DryRunRegistry {
	return &DryRunRegistry{logger: logger, entries: make(map[string]string)}
}

// Available always reports true.
func (r *DryRunRegistry) Available() bool {
	return true
}

// Add records spec and logs the would-be definition.
func (r *DryRunRegistry) Add(_ context.Context, spec checks.CheckSpec) (bool, error) {
	content := string(Render(spec))
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries[spec.Name] == content {
		return false, nil
	}
	r.entries[spec.Name] = content
	r.logger.Info().
		Str("check", spec.Name).
		Str("command", spec.Command).
		Msg("[DRY-RUN] Would write nrpe check")
	return true, nil
}

// Remove forgets name and logs the would-be removal.
func (r *DryRunRegistry) Remove(_ context.Context, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[name]; !ok {
		return false, nil
	}
	delete(r.entries, name)
	r.logger.Info().Str("check", name).Msg("[DRY-RUN] Would remove nrpe check")
	return true, nil
}

// Reload logs the would-be reload.
func (r *DryRunRegistry) Reload(_ context.Context) error {
	r.logger.Info().Msg("[DRY-RUN] Would reload nrpe")
	return nil
}
