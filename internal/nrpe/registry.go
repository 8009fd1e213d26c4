// Package nrpe maintains NRPE check definitions on disk and reloads the NRPE daemon.
package nrpe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/nholik/openstack-service-checks/internal/checks"
	"github.com/nholik/openstack-service-checks/internal/fsutil"
)

// ErrUnavailable is returned when the NRPE configuration directory does not exist.
var ErrUnavailable = errors.New("nrpe is not available")

// Registry is the check-registry collaborator. Add and Remove are idempotent and
// report whether anything changed.
type Registry interface {
	Available() bool
	Add(ctx context.Context, spec checks.CheckSpec) (bool, error)
	Remove(ctx context.Context, name string) (bool, error)
	Reload(ctx context.Context) error
}

// Reloader makes the NRPE daemon pick up new definitions.
type Reloader interface {
	Reload(ctx context.Context) error
}

// RegistryError wraps a failed registry operation.
type RegistryError struct {
	Op   string
	Name string
	Err  error
}

func (e *RegistryError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("nrpe %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("nrpe %s %s: %v", e.Op, e.Name, e.Err)
}

func (e *RegistryError) Unwrap() error {
	return e.Err
}

// FileRegistry keeps one check_<name>.cfg file per check in the nrpe.d directory.
type FileRegistry struct {
	dir      string
	reloader Reloader
	logger   zerolog.Logger
}

// NewFileRegistry constructs a FileRegistry over dir.
func NewFileRegistry(dir string, reloader Reloader, logger zerolog.Logger) (*FileRegistry, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("nrpe directory must not be empty")
	}
	if reloader == nil {
		return nil, errors.New("reloader must not be nil")
	}
	return &FileRegistry{dir: dir, reloader: reloader, logger: logger}, nil
}

// Available reports whether the nrpe.d directory exists.
func (r *FileRegistry) Available() bool {
	info, err := os.Stat(r.dir)
	return err == nil && info.IsDir()
}

// Path returns the definition file for a check.
func (r *FileRegistry) Path(name string) string {
	return filepath.Join(r.dir, "check_"+name+".cfg")
}

// Add writes the definition for spec.
func (r *FileRegistry) Add(_ context.Context, spec checks.CheckSpec) (bool, error) {
	if !r.Available() {
		return false, &RegistryError{Op: "add", Name: spec.Name, Err: ErrUnavailable}
	}
	changed, err := fsutil.WriteFileAtomic(r.Path(spec.Name), Render(spec), 0o644)
	if err != nil {
		return false, &RegistryError{Op: "add", Name: spec.Name, Err: err}
	}
	if changed {
		r.logger.Info().Str("check", spec.Name).Msg("nrpe check written")
	}
	return changed, nil
}

// Remove deletes the definition for name, if present.
func (r *FileRegistry) Remove(_ context.Context, name string) (bool, error) {
	removed, err := fsutil.RemoveIfExists(r.Path(name))
	if err != nil {
		return false, &RegistryError{Op: "remove", Name: name, Err: err}
	}
	if removed {
		r.logger.Info().Str("check", name).Msg("nrpe check removed")
	}
	return removed, nil
}

// Reload asks the daemon to re-read its configuration.
func (r *FileRegistry) Reload(ctx context.Context) error {
	if err := r.reloader.Reload(ctx); err != nil {
		return &RegistryError{Op: "reload", Err: err}
	}
	return nil
}

// Render produces the nrpe.d file content for spec.
func Render(spec checks.CheckSpec) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# check %s\n", spec.Name)
	if spec.Description != "" {
		fmt.Fprintf(&b, "# %s\n", strings.ReplaceAll(spec.Description, "\n", " "))
	}
	fmt.Fprintf(&b, "command[check_%s]=%s\n", spec.Name, spec.Command)
	return []byte(b.String())
}
