// Package notify delivers stage transition alerts for a unit.
package notify

import (
	"context"

	"github.com/nholik/openstack-service-checks/internal/transition"
)

// Notifier delivers transition alerts to external systems.
type Notifier interface {
	Notify(ctx context.Context, unit string, transitions []transition.StageTransition) error
}

func unitName(unit string) string {
	if unit == "" {
		return "openstack-service-checks"
	}
	return unit
}
