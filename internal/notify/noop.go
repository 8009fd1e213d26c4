package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/nholik/openstack-service-checks/internal/transition"
)

// NoopNotifier is used when no notification target is configured. Transitions
// are only logged at debug level for the unit that produced them.
type NoopNotifier struct {
	logger zerolog.Logger
}

// NewNoop returns a NoopNotifier. A non-empty reason is logged once.
func NewNoop(logger zerolog.Logger, reason string) *NoopNotifier {
	if reason != "" {
		logger.Info().Msg(reason)
	}
	return &NoopNotifier{logger: logger}
}

// Notify implements Notifier.
func (n *NoopNotifier) Notify(_ context.Context, unit string, transitions []transition.StageTransition) error {
	if len(transitions) == 0 {
		return nil
	}
	stages := make([]string, 0, len(transitions))
	for _, change := range transitions {
		stages = append(stages, change.Stage)
	}
	n.logger.Debug().
		Str("unit", unitName(unit)).
		Strs("stages", stages).
		Int("transitions", len(transitions)).
		Msg("no notification target, transitions dropped")
	return nil
}
