package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/nholik/openstack-service-checks/internal/transition"
)

// DryRunNotifier logs transitions without sending notifications.
type DryRunNotifier struct {
	logger zerolog.Logger
	inner  Notifier
}

// NewDryRunNotifier returns a notifier that suppresses delivery and logs instead.
func NewDryRunNotifier(logger zerolog.Logger, inner Notifier) *DryRunNotifier {
	return &DryRunNotifier{logger: logger, inner: inner}
}

// Notify implements Notifier.
func (n *DryRunNotifier) Notify(_ context.Context, unit string, transitions []transition.StageTransition) error {
	for _, change := range transitions {
		n.logger.Info().
			Str("unit", unitName(unit)).
			Str("stage", change.Stage).
			Str("previous_level", string(change.PreviousLevel)).
			Str("current_level", string(change.CurrentLevel)).
			Str("message", change.CurrentMessage).
			Msg("[DRY-RUN] Would notify")
	}
	return nil
}
