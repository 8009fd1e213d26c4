// Package trust installs the operator supplied CA bundle into the system trust store.
package trust

import (
	"bytes"
	"context"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/nholik/openstack-service-checks/internal/fsutil"
)

// ErrInvalidBundle is returned when trusted_ssl_ca holds no usable certificate.
var ErrInvalidBundle = errors.New("invalid trusted CA bundle")

// CommandError reports a failed trust store refresh.
type CommandError struct {
	Command string
	Output  string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("%s: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Command, e.Err, e.Output)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Runner executes a command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Installer writes the bundle to the local CA directory and refreshes the store.
type Installer struct {
	path     string
	command  []string
	runner   Runner
	logger   zerolog.Logger
	onChange func(pemData []byte) error

	mu      sync.Mutex
	applied bool
	last    []byte
}

// Option customizes an Installer.
type Option func(*Installer)

// WithRunner replaces the command runner (primarily for testing).
func WithRunner(runner Runner) Option {
	return func(i *Installer) {
		i.runner = runner
	}
}

// WithOnChange registers a callback receiving the PEM bundle whenever it differs
// from the last one delivered. An empty bundle means "system roots only".
func WithOnChange(fn func(pemData []byte) error) Option {
	return func(i *Installer) {
		i.onChange = fn
	}
}

// NewInstaller constructs an Installer writing to path and running command after changes.
func NewInstaller(path string, command []string, logger zerolog.Logger, opts ...Option) (*Installer, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("ca certificate path must not be empty")
	}
	installer := &Installer{
		path:    path,
		command: append([]string(nil), command...),
		runner:  ExecRunner,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(installer)
	}
	return installer, nil
}

// Apply installs the bundle encoded in value (base64 or raw PEM). An empty value
// removes a previously installed bundle. It reports whether the trust store changed.
func (i *Installer) Apply(ctx context.Context, value string) (bool, error) {
	pemData, err := Decode(value)
	if err != nil {
		return false, err
	}

	var changed bool
	if len(pemData) == 0 {
		changed, err = fsutil.RemoveIfExists(i.path)
	} else {
		changed, err = fsutil.WriteFileAtomic(i.path, pemData, 0o644)
	}
	if err != nil {
		return false, fmt.Errorf("install ca bundle: %w", err)
	}

	if changed {
		if err := i.refresh(ctx); err != nil {
			return true, err
		}
		i.logger.Info().Str("path", i.path).Msg("trusted ca bundle updated")
	}

	if err := i.notify(pemData); err != nil {
		return changed, err
	}
	return changed, nil
}

// LoadInstalled delivers a bundle installed by an earlier process to the
// change callback, so the catalog client trusts it before any stage runs.
// A missing file is not an error.
func (i *Installer) LoadInstalled() error {
	data, err := os.ReadFile(i.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read installed ca bundle: %w", err)
	}
	pemData, err := Decode(string(data))
	if err != nil {
		return err
	}
	return i.notify(pemData)
}

func (i *Installer) refresh(ctx context.Context) error {
	if len(i.command) == 0 {
		return nil
	}
	output, err := i.runner(ctx, i.command[0], i.command[1:]...)
	if err != nil {
		return &CommandError{
			Command: strings.Join(i.command, " "),
			Output:  strings.TrimSpace(string(output)),
			Err:     err,
		}
	}
	return nil
}

func (i *Installer) notify(pemData []byte) error {
	if i.onChange == nil {
		return nil
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.applied && bytes.Equal(i.last, pemData) {
		return nil
	}
	if err := i.onChange(pemData); err != nil {
		return err
	}
	i.applied = true
	i.last = append([]byte(nil), pemData...)
	return nil
}

// Decode turns the option value into a validated PEM bundle.
func Decode(value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}

	data := []byte(value)
	if !strings.Contains(value, "-----BEGIN") {
		decoded, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(value), ""))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidBundle, err)
		}
		data = decoded
	}

	var bundle bytes.Buffer
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		if _, err := x509.ParseCertificate(block.Bytes); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidBundle, err)
		}
		if err := pem.Encode(&bundle, block); err != nil {
			return nil, err
		}
	}
	if bundle.Len() == 0 {
		return nil, fmt.Errorf("%w: no certificates found", ErrInvalidBundle)
	}
	return bundle.Bytes(), nil
}
