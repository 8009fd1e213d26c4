package notify

import (
	"context"

	"github.com/hashicorp/go-multierror"

	"github.com/nholik/openstack-service-checks/internal/transition"
)

// MultiNotifier fans out notifications to multiple notifiers.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a notifier that dispatches to all provided notifiers.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	filtered := make([]Notifier, 0, len(notifiers))
	for _, notifier := range notifiers {
		if notifier == nil {
			continue
		}
		filtered = append(filtered, notifier)
	}
	return &MultiNotifier{notifiers: filtered}
}

// Notify implements Notifier. Every notifier is tried; failures are combined.
func (m *MultiNotifier) Notify(ctx context.Context, unit string, transitions []transition.StageTransition) error {
	var result *multierror.Error
	for _, notifier := range m.notifiers {
		if err := notifier.Notify(ctx, unit, transitions); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
