// Package reconcile drives the check registry towards the state implied by the
// unit's options, relations and the identity catalog.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nholik/openstack-service-checks/internal/checks"
	"github.com/nholik/openstack-service-checks/internal/credentials"
	"github.com/nholik/openstack-service-checks/internal/keystone"
	"github.com/nholik/openstack-service-checks/internal/nrpe"
	"github.com/nholik/openstack-service-checks/internal/state"
	"github.com/nholik/openstack-service-checks/internal/status"
	"github.com/nholik/openstack-service-checks/internal/trust"
)

// Operator-facing status messages.
const (
	MessageMissingRegistry  = "Missing relations: nrpe"
	MessageMissingCreds     = "Missing os-credentials vars: %s"
	MessageRegistryError    = "Failed to update nrpe checks, check logs"
	MessageTrustCommand     = "update-ca-certificates error. check logs"
	MessageTrustInvalid     = "Invalid trusted_ssl_ca value, check logs"
	MessageNovarcError      = "Failed to write novarc file, check logs"
	MessageConfiguringState = "Configuring checks"
)

// TrustInstaller installs the trusted CA bundle from the trusted_ssl_ca option.
type TrustInstaller interface {
	Apply(ctx context.Context, value string) (bool, error)
}

// Result describes what a pass did.
type Result struct {
	Triggers []Trigger
	Flags    state.Flags
	Previous status.WorkloadStatus
	Status   status.WorkloadStatus
	Added    []string
	Removed  []string
	Reloaded bool
	Warnings []string
	// Registered is the ledger after the pass.
	Registered state.Registered
}

// Changed reports whether the pass touched the registry.
func (r Result) Changed() bool {
	return len(r.Added) > 0 || len(r.Removed) > 0 || r.Reloaded
}

// Driver runs reconciliation passes. Passes are serialized.
type Driver struct {
	store      state.Store
	registry   nrpe.Registry
	catalog    keystone.Client
	synth      checks.Synthesizer
	trust      TrustInstaller
	novarcPath string
	logger     zerolog.Logger
	now        func() time.Time

	mu sync.Mutex
}

// Option customizes a Driver.
type Option func(*Driver)

// WithTrust installs the trusted CA bundle during the configured stage.
func WithTrust(installer TrustInstaller) Option {
	return func(d *Driver) {
		d.trust = installer
	}
}

// WithNovarc writes the resolved credential to path for the check plugins.
func WithNovarc(path string) Option {
	return func(d *Driver) {
		d.novarcPath = path
	}
}

// WithClock overrides the time source (primarily for testing).
func WithClock(now func() time.Time) Option {
	return func(d *Driver) {
		d.now = now
	}
}

// NewDriver wires a Driver.
func NewDriver(store state.Store, registry nrpe.Registry, catalog keystone.Client, synth checks.Synthesizer, logger zerolog.Logger, opts ...Option) (*Driver, error) {
	if store == nil {
		return nil, errors.New("state store must not be nil")
	}
	if registry == nil {
		return nil, errors.New("registry must not be nil")
	}
	if catalog == nil {
		return nil, errors.New("catalog client must not be nil")
	}
	d := &Driver{
		store:    store,
		registry: registry,
		catalog:  catalog,
		synth:    synth,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// pass holds the mutable data of one Handle call.
type pass struct {
	in         Inputs
	st         *state.State
	result     *Result
	conditions []status.Condition
	logger     zerolog.Logger

	credDone bool
	cred     credentials.Credential
	credOK   bool

	// dirty is set once any registration changed on disk this pass.
	dirty bool
}

func (p *pass) raise(stage string, level status.Level, message string) {
	p.conditions = append(p.conditions, status.Condition{Stage: stage, Level: level, Message: message})
}

// Handle runs one pass. Triggers are derived from input fingerprint changes and
// extended with explicit ones. Only state store failures are returned as errors;
// everything else is reported through the resulting status.
func (d *Driver) Handle(ctx context.Context, in Inputs, explicit ...Trigger) (Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	st, err := d.store.Load(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load state: %w", err)
	}
	if st.Registered == nil {
		st.Registered = state.Registered{}
	}

	triggers := append(DetectTriggers(st.Fingerprints, in), explicit...)
	result := Result{Triggers: triggers, Previous: st.Status}
	p := &pass{
		in:     in,
		st:     &st,
		result: &result,
		logger: d.logger.With().Str("triggers", describeTriggers(triggers)).Logger(),
	}

	for _, trigger := range triggers {
		if trigger.Event == EventUpgrade {
			st, _ = state.Upgrade(st)
		}
		if cleared := invalidate(&st.Flags, trigger); len(cleared) > 0 {
			p.logger.Debug().Str("event", trigger.Event.String()).Strs("cleared", cleared).Msg("stages invalidated")
		}
	}

	d.storeRelationCredentials(p)
	d.runLadder(ctx, p)

	st.Fingerprints = in.fingerprints()
	st.Status = status.Aggregate(p.conditions)
	st.UpdatedAt = d.now()
	if err := d.store.Save(ctx, st); err != nil {
		return Result{}, fmt.Errorf("save state: %w", err)
	}

	result.Flags = st.Flags
	result.Status = st.Status
	result.Registered = st.Registered
	p.logger.Info().
		Str("status", string(st.Status.Level)).
		Str("message", st.Status.Message).
		Int("added", len(result.Added)).
		Int("removed", len(result.Removed)).
		Bool("reloaded", result.Reloaded).
		Msg("reconciliation pass complete")
	return result, nil
}

// storeRelationCredentials flattens relation credentials into state once per relation update.
func (d *Driver) storeRelationCredentials(p *pass) {
	rel := p.in.Relations.IdentityCredentials
	if rel == nil || p.st.Flags.StoredCreds || !rel.Complete() {
		return
	}
	cred, err := credentials.FromRelation(*rel)
	if err != nil {
		p.logger.Warn().Err(err).Msg("identity-credentials relation data incomplete")
		return
	}
	p.st.Credentials = &cred
	p.st.Flags.StoredCreds = true
	p.st.Flags.Configured = false
	p.st.Flags.EndpointsConfigured = false
	p.logger.Info().Str("username", cred.Username).Int("api_version", cred.APIVersion).Msg("stored relation credentials")
}

func (d *Driver) runLadder(ctx context.Context, p *pass) {
	flags := &p.st.Flags

	if !d.ensureInstalled(p) {
		return
	}
	d.configureHorizon(ctx, p)

	if !flags.Configured && !d.configure(ctx, p) {
		d.reloadPending(ctx, p)
		return
	}
	if !flags.EndpointsConfigured {
		d.configureEndpoints(ctx, p)
	}
	if !flags.Started {
		d.start(ctx, p)
	}

	if len(p.conditions) == 0 && !(flags.Configured && flags.EndpointsConfigured && flags.Started) {
		p.raise(StageStarted, status.LevelMaintenance, MessageConfiguringState)
	}
}

func (d *Driver) ensureInstalled(p *pass) bool {
	flags := &p.st.Flags
	if !d.registry.Available() {
		if flags.Installed {
			p.logger.Info().Msg("nrpe not available, clearing flags")
		}
		flags.Installed = false
		flags.Configured = false
		flags.EndpointsConfigured = false
		flags.Started = false
		// Registrations went away with the registry.
		p.st.Registered = state.Registered{}
		p.raise(StageInstalled, status.LevelBlocked, MessageMissingRegistry)
		return false
	}
	if !flags.Installed {
		flags.Installed = true
		flags.Configured = false
	}
	return true
}

func (d *Driver) credential(p *pass) (credentials.Credential, bool) {
	if p.credDone {
		return p.cred, p.credOK
	}
	p.credDone = true

	cred, err := credentials.Resolve(p.in.Options.OSCredentials, p.st.Credentials)
	if err != nil {
		p.logger.Info().Err(err).Msg("no usable credentials yet, skipping")
		p.raise(StageConfigured, status.LevelWaiting, fmt.Sprintf(MessageMissingCreds, err.Error()))
		return credentials.Credential{}, false
	}
	p.cred = cred
	p.credOK = true
	return cred, true
}

func (d *Driver) configure(ctx context.Context, p *pass) bool {
	flags := &p.st.Flags
	opts := p.in.Options

	cred, ok := d.credential(p)
	if !ok {
		flags.EndpointsConfigured = false
		flags.Started = false
		return false
	}

	if d.trust != nil {
		if _, err := d.trust.Apply(ctx, opts.TrustedSSLCA); err != nil {
			p.logger.Error().Err(err).Msg("trusted ca bundle install failed")
			message := MessageTrustCommand
			if errors.Is(err, trust.ErrInvalidBundle) {
				message = MessageTrustInvalid
			}
			p.raise(StageConfigured, status.LevelBlocked, message)
			return false
		}
	}

	if d.novarcPath != "" {
		if cred.Source == credentials.SourceRelation && cred.VolumeAPIVersion == "" {
			cred.VolumeAPIVersion = p.st.VolumeAPIVersion
		}
		if _, err := credentials.WriteNovarc(d.novarcPath, cred); err != nil {
			p.logger.Error().Err(err).Str("path", d.novarcPath).Msg("novarc write failed")
			p.raise(StageConfigured, status.LevelBlocked, MessageNovarcError)
			return false
		}
	}

	p.logger.Info().Str("username", cred.Username).Str("source", cred.Source).Msg("got credentials")

	plan := d.synth.BaseChecks(opts)
	for _, warning := range plan.Warnings {
		p.logger.Warn().Msg(warning)
	}
	p.result.Warnings = append(p.result.Warnings, plan.Warnings...)

	if len(plan.Errors) > 0 {
		// Nothing from a plan with errors is written; every family keeps its checks.
		for _, planErr := range plan.Errors {
			p.logger.Error().Err(planErr).Msg("wrong configuration")
			p.raise(StageConfigured, status.LevelBlocked, workloadMessage(planErr))
		}
		return false
	}

	changed, err := d.applyPlan(ctx, p, plan)
	if changed {
		flags.Started = false
	}
	if err != nil {
		p.logger.Error().Err(err).Msg("registry update failed")
		p.raise(StageConfigured, status.LevelBlocked, MessageRegistryError)
		return false
	}

	flags.Configured = true
	return true
}

func (d *Driver) configureEndpoints(ctx context.Context, p *pass) {
	flags := &p.st.Flags

	cred, ok := d.credential(p)
	if !ok {
		return
	}

	endpoints, err := d.catalog.ListEndpoints(ctx, cred)
	if err != nil {
		var catalogErr *keystone.CatalogError
		switch {
		case errors.As(err, &catalogErr):
			p.logger.Error().
				Err(err).
				Str("kind", catalogErr.Kind.String()).
				Bool("retryable", catalogErr.Retryable()).
				Msg("failed to create endpoint checks due to issue communicating with keystone")
			p.raise(StageEndpointsConfigured, status.LevelBlocked, catalogErr.WorkloadStatus())
		case errors.Is(err, credentials.ErrMissingCredentials):
			p.raise(StageEndpointsConfigured, status.LevelWaiting, fmt.Sprintf(MessageMissingCreds, err.Error()))
		default:
			p.logger.Error().Err(err).Msg("failed to list keystone endpoints")
			p.raise(StageEndpointsConfigured, status.LevelBlocked, (&keystone.CatalogError{Kind: keystone.KindServer}).WorkloadStatus())
		}
		return
	}

	if !d.detectVolumeAPIVersion(p, cred, endpoints) {
		return
	}

	specs, err := d.synth.EndpointChecks(p.in.Options, endpoints)
	if err != nil {
		// The family keeps whatever was registered before.
		p.logger.Error().Err(err).Msg("wrong configuration")
		p.raise(StageEndpointsConfigured, status.LevelBlocked, workloadMessage(err))
		return
	}

	changed, err := d.applyFamily(ctx, p, checks.FamilyEndpoints, specs)
	allocations := []checks.CheckSpec{}
	if spec, ok := d.synth.AllocationsCheck(p.in.Options, endpoints); ok {
		allocations = append(allocations, spec)
	} else if p.in.Options.CheckAllocations {
		warning := "allocations check requested but the catalog has no placement service"
		p.logger.Warn().Msg(warning)
		p.result.Warnings = append(p.result.Warnings, warning)
	}
	allocChanged, allocErr := d.applyFamily(ctx, p, checks.FamilyAllocations, allocations)
	if changed || allocChanged {
		flags.Started = false
	}
	if err == nil {
		err = allocErr
	}
	if err != nil {
		p.logger.Error().Err(err).Msg("registry update failed")
		p.raise(StageEndpointsConfigured, status.LevelBlocked, MessageRegistryError)
		return
	}
	p.logger.Info().Int("endpoints", len(endpoints)).Int("checks", len(specs)).Msg("endpoint checks configured")
	flags.EndpointsConfigured = true
}

// detectVolumeAPIVersion records the cinder API version for relation
// credentials, which carry none, and rewrites the novarc when it moves.
// It returns false only when the novarc could not be written.
func (d *Driver) detectVolumeAPIVersion(p *pass, cred credentials.Credential, endpoints []keystone.Endpoint) bool {
	if d.novarcPath == "" || cred.Source != credentials.SourceRelation || cred.VolumeAPIVersion != "" {
		return true
	}
	version, err := keystone.VolumeAPIVersion(endpoints)
	if err != nil {
		if errors.Is(err, keystone.ErrNoVolumeService) {
			p.logger.Warn().Msg("missing cinder service, volume api version not set")
		} else {
			p.logger.Warn().Err(err).Msg("volume api version not detected")
		}
		return true
	}
	if version == p.st.VolumeAPIVersion {
		return true
	}

	cred.VolumeAPIVersion = version
	if _, err := credentials.WriteNovarc(d.novarcPath, cred); err != nil {
		p.logger.Error().Err(err).Str("path", d.novarcPath).Msg("novarc write failed")
		p.raise(StageEndpointsConfigured, status.LevelBlocked, MessageNovarcError)
		return false
	}
	p.st.VolumeAPIVersion = version
	p.logger.Info().Str("version", version).Msg("volume api version detected")
	return true
}

func (d *Driver) configureHorizon(ctx context.Context, p *pass) {
	specs, err := d.synth.HorizonChecks(p.in.Options, p.in.Relations.Website)
	if specs != nil {
		changed, applyErr := d.applyFamily(ctx, p, checks.FamilyHorizon, specs)
		if changed {
			p.st.Flags.Started = false
		}
		if applyErr != nil {
			p.logger.Error().Err(applyErr).Msg("registry update failed")
			p.raise(StageHorizon, status.LevelBlocked, MessageRegistryError)
			return
		}
	}
	if err != nil {
		p.logger.Warn().Err(err).Msg("horizon checks not configured")
		p.raise(StageHorizon, status.LevelBlocked, workloadMessage(err))
	}
}

func (d *Driver) start(ctx context.Context, p *pass) {
	flags := &p.st.Flags
	if !flags.Configured {
		return
	}
	if err := d.registry.Reload(ctx); err != nil {
		p.logger.Error().Err(err).Msg("nrpe reload failed")
		p.raise(StageStarted, status.LevelBlocked, MessageRegistryError)
		return
	}
	p.logger.Info().Msg("nrpe reloaded")
	flags.Started = true
	p.result.Reloaded = true
}

// reloadPending reloads NRPE when the ladder stalls before the started stage
// but this pass already rewrote registrations. Started stays unset.
func (d *Driver) reloadPending(ctx context.Context, p *pass) {
	if !p.dirty {
		return
	}
	if err := d.registry.Reload(ctx); err != nil {
		p.logger.Error().Err(err).Msg("nrpe reload failed")
		p.raise(StageStarted, status.LevelBlocked, MessageRegistryError)
		return
	}
	p.logger.Info().Msg("nrpe reloaded with pending changes")
	p.result.Reloaded = true
}

func workloadMessage(err error) string {
	var configErr *checks.ConfigError
	if errors.As(err, &configErr) {
		return configErr.WorkloadStatus()
	}
	return err.Error()
}
