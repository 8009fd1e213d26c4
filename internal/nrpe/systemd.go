package nrpe

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-systemd/v22/dbus"
)

const reloadMode = "replace"

// SystemdReloader reloads (or restarts) a unit through the systemd D-Bus API.
type SystemdReloader struct {
	Unit string
}

// NewSystemdReloader returns a reloader for unit.
func NewSystemdReloader(unit string) (*SystemdReloader, error) {
	if unit == "" {
		return nil, errors.New("unit must not be empty")
	}
	return &SystemdReloader{Unit: unit}, nil
}

// Reload issues ReloadOrRestartUnit and waits for the job to finish.
func (r *SystemdReloader) Reload(ctx context.Context) error {
	conn, err := dbus.NewWithContext(ctx)
	if err != nil {
		return fmt.Errorf("connect to systemd: %w", err)
	}
	defer conn.Close()

	done := make(chan string, 1)
	if _, err := conn.ReloadOrRestartUnitContext(ctx, r.Unit, reloadMode, done); err != nil {
		return fmt.Errorf("reload %s: %w", r.Unit, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case result := <-done:
		if result != "done" {
			return fmt.Errorf("reload %s: job %s", r.Unit, result)
		}
		return nil
	}
}
