package agent

import (
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"github.com/nholik/openstack-service-checks/internal/checks"
	"github.com/nholik/openstack-service-checks/internal/config"
	"github.com/nholik/openstack-service-checks/internal/healthcheck"
	"github.com/nholik/openstack-service-checks/internal/keystone"
	"github.com/nholik/openstack-service-checks/internal/metrics"
	"github.com/nholik/openstack-service-checks/internal/notify"
	"github.com/nholik/openstack-service-checks/internal/nrpe"
	"github.com/nholik/openstack-service-checks/internal/reconcile"
	"github.com/nholik/openstack-service-checks/internal/state"
	"github.com/nholik/openstack-service-checks/internal/trust"
)

// Components is the wired agent.
type Components struct {
	Agent   *Agent
	Driver  *reconcile.Driver
	Store   state.Store
	Metrics *metrics.Metrics
	Tracker *healthcheck.Tracker

	closers []func() error
}

// Close releases the state store.
func (c *Components) Close() error {
	var result *multierror.Error
	for _, closeFn := range c.closers {
		if err := closeFn(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// OpenStore opens the configured state backend. The returned func closes it.
func OpenStore(cfg config.Config, logger zerolog.Logger) (state.Store, func() error, error) {
	if cfg.StateBackend == config.BackendBolt {
		store, err := state.OpenBoltStore(cfg.StatePath, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	}
	return state.NewFileStore(cfg.StatePath, logger), func() error { return nil }, nil
}

// Build wires every component from cfg. Dry-run mode swaps the registry and
// notifier for logging variants and leaves the trust store and novarc alone.
func Build(cfg config.Config, logger zerolog.Logger) (*Components, error) {
	store, closeStore, err := OpenStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	components := &Components{Store: store, closers: []func() error{closeStore}}

	catalog, err := keystone.NewHTTPClient(logger.With().Str("collaborator", "keystone").Logger(), cfg.KeystoneTimeout)
	if err != nil {
		_ = components.Close()
		return nil, err
	}

	installer, err := trust.NewInstaller(cfg.CACertPath, cfg.CAUpdateCommand, logger, trust.WithOnChange(catalog.TrustBundle))
	if err != nil {
		_ = components.Close()
		return nil, err
	}
	// Passes that skip the configured stage still need the operator's CA.
	if err := installer.LoadInstalled(); err != nil {
		logger.Warn().Err(err).Str("path", cfg.CACertPath).Msg("installed ca bundle not loaded, using system roots")
	}

	var registry nrpe.Registry
	driverOpts := make([]reconcile.Option, 0, 2)
	if cfg.DryRun {
		registry = nrpe.NewDryRunRegistry(logger)
	} else {
		reloader, err := nrpe.NewSystemdReloader(cfg.NRPEUnit)
		if err != nil {
			_ = components.Close()
			return nil, err
		}
		fileRegistry, err := nrpe.NewFileRegistry(cfg.NRPEDir, reloader, logger)
		if err != nil {
			_ = components.Close()
			return nil, err
		}
		registry = fileRegistry

		driverOpts = append(driverOpts, reconcile.WithTrust(installer), reconcile.WithNovarc(cfg.NovarcPath))
	}

	driver, err := reconcile.NewDriver(store, registry, catalog, checks.New(cfg.PluginsDir, cfg.NovarcPath), logger, driverOpts...)
	if err != nil {
		_ = components.Close()
		return nil, err
	}

	notifier, err := buildNotifier(cfg, logger)
	if err != nil {
		_ = components.Close()
		return nil, err
	}

	components.Driver = driver
	components.Metrics = metrics.New()
	components.Tracker = healthcheck.NewTracker()
	components.Agent = New(logger, cfg.UnitName, driver, notifier, components.Metrics, components.Tracker)
	return components, nil
}

func buildNotifier(cfg config.Config, logger zerolog.Logger) (notify.Notifier, error) {
	notifiers := make([]notify.Notifier, 0, 2)
	if cfg.SlackWebhookURL != "" {
		notifiers = append(notifiers, notify.NewSlackNotifier(logger, cfg.SlackWebhookURL))
	}
	webhook, err := notify.NewWebhookNotifier(logger, cfg.WebhookURL, cfg.WebhookTemplate)
	if err != nil {
		return nil, err
	}
	if webhook != nil {
		notifiers = append(notifiers, webhook)
	}

	var notifier notify.Notifier
	if len(notifiers) == 0 {
		notifier = notify.NewNoop(logger, "no notification targets configured")
	} else {
		notifier = notify.NewMultiNotifier(notifiers...)
	}
	if cfg.DryRun {
		notifier = notify.NewDryRunNotifier(logger, notifier)
	}
	return notifier, nil
}
