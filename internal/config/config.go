package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	envPollInterval    = "OSC_POLL_INTERVAL"
	envStatePath       = "OSC_STATE_PATH"
	envStateBackend    = "OSC_STATE_BACKEND"
	envOptionsFile     = "OSC_OPTIONS_FILE"
	envRelationsFile   = "OSC_RELATIONS_FILE"
	envNRPEDir         = "OSC_NRPE_DIR"
	envPluginsDir      = "OSC_PLUGINS_DIR"
	envNovarcPath      = "OSC_NOVARC_PATH"
	envCACertPath      = "OSC_CA_CERT_PATH"
	envCAUpdateCommand = "OSC_CA_UPDATE_COMMAND"
	envNRPEUnit        = "OSC_NRPE_UNIT"
	envKeystoneTimeout = "OSC_KEYSTONE_TIMEOUT"
	envHealthPort      = "OSC_HEALTH_PORT"
	envMetricsPort     = "OSC_METRICS_PORT"
	envSlackWebhookURL = "OSC_SLACK_WEBHOOK_URL"
	envWebhookURL      = "OSC_WEBHOOK_URL"
	envWebhookTemplate = "OSC_WEBHOOK_TEMPLATE"
	envDryRun          = "OSC_DRY_RUN"
	envLogLevel        = "OSC_LOG_LEVEL"
	envUnitName        = "OSC_UNIT_NAME"
)

const (
	defaultPollInterval    = 5 * time.Minute
	defaultStatePath       = "/var/lib/openstack-service-checks/state.json"
	defaultOptionsFile     = "/etc/openstack-service-checks/options.yaml"
	defaultRelationsFile   = "/etc/openstack-service-checks/relations.yaml"
	defaultNRPEDir         = "/etc/nagios/nrpe.d"
	defaultPluginsDir      = "/usr/local/lib/nagios/plugins"
	defaultNovarcPath      = "/var/lib/nagios/nagios.novarc"
	defaultCACertPath      = "/usr/local/share/ca-certificates/openstack-service-checks.crt"
	defaultCAUpdateCommand = "/usr/sbin/update-ca-certificates --fresh"
	defaultNRPEUnit        = "nagios-nrpe-server.service"
	defaultKeystoneTimeout = 10 * time.Second
	defaultLogLevel        = "info"
	defaultUnitName        = "openstack-service-checks"
)

// State store backends.
const (
	BackendFile = "file"
	BackendBolt = "bolt"
)

// Config describes runtime configuration loaded from the environment.
type Config struct {
	PollInterval    time.Duration
	StatePath       string
	StateBackend    string
	OptionsFile     string
	RelationsFile   string
	NRPEDir         string
	PluginsDir      string
	NovarcPath      string
	CACertPath      string
	CAUpdateCommand []string
	NRPEUnit        string
	KeystoneTimeout time.Duration
	HealthPort      int
	MetricsPort     int
	SlackWebhookURL string
	WebhookURL      string
	WebhookTemplate string
	DryRun          bool
	LogLevel        string
	UnitName        string
}

// Load reads configuration from environment variables and a local .env file if present.
// Existing environment variables take precedence over values in .env.
func Load() (Config, error) {
	if err := loadDotEnvIfPresent(".env"); err != nil {
		return Config{}, err
	}

	cfg := Config{
		PollInterval:    defaultPollInterval,
		StatePath:       defaultStatePath,
		StateBackend:    BackendFile,
		OptionsFile:     defaultOptionsFile,
		RelationsFile:   defaultRelationsFile,
		NRPEDir:         defaultNRPEDir,
		PluginsDir:      defaultPluginsDir,
		NovarcPath:      defaultNovarcPath,
		CACertPath:      defaultCACertPath,
		CAUpdateCommand: strings.Fields(defaultCAUpdateCommand),
		NRPEUnit:        defaultNRPEUnit,
		KeystoneTimeout: defaultKeystoneTimeout,
		LogLevel:        defaultLogLevel,
		UnitName:        defaultUnitName,
	}

	var err error
	if cfg.PollInterval, err = lookupDuration(envPollInterval, cfg.PollInterval); err != nil {
		return Config{}, err
	}
	if cfg.KeystoneTimeout, err = lookupDuration(envKeystoneTimeout, cfg.KeystoneTimeout); err != nil {
		return Config{}, err
	}
	if cfg.HealthPort, err = lookupPort(envHealthPort); err != nil {
		return Config{}, err
	}
	if cfg.MetricsPort, err = lookupPort(envMetricsPort); err != nil {
		return Config{}, err
	}

	lookupString(envStatePath, &cfg.StatePath)
	lookupString(envOptionsFile, &cfg.OptionsFile)
	lookupString(envRelationsFile, &cfg.RelationsFile)
	lookupString(envNRPEDir, &cfg.NRPEDir)
	lookupString(envPluginsDir, &cfg.PluginsDir)
	lookupString(envNovarcPath, &cfg.NovarcPath)
	lookupString(envCACertPath, &cfg.CACertPath)
	lookupString(envNRPEUnit, &cfg.NRPEUnit)
	lookupString(envSlackWebhookURL, &cfg.SlackWebhookURL)
	lookupString(envWebhookURL, &cfg.WebhookURL)
	lookupString(envWebhookTemplate, &cfg.WebhookTemplate)
	lookupString(envLogLevel, &cfg.LogLevel)
	lookupString(envUnitName, &cfg.UnitName)

	if value, ok := lookupTrimmed(envCAUpdateCommand); ok {
		cfg.CAUpdateCommand = strings.Fields(value)
	}

	if value, ok := lookupTrimmed(envStateBackend); ok && value != "" {
		backend := strings.ToLower(value)
		if backend != BackendFile && backend != BackendBolt {
			return Config{}, fmt.Errorf("invalid %s: %q (want %q or %q)", envStateBackend, value, BackendFile, BackendBolt)
		}
		cfg.StateBackend = backend
	}

	if value, ok := lookupTrimmed(envDryRun); ok && value != "" {
		dryRun, err := strconv.ParseBool(value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envDryRun, err)
		}
		cfg.DryRun = dryRun
	}

	if cfg.StatePath == "" {
		return Config{}, errors.New("OSC_STATE_PATH must not be empty")
	}
	if cfg.NRPEDir == "" {
		return Config{}, errors.New("OSC_NRPE_DIR must not be empty")
	}

	if cfg.SlackWebhookURL != "" {
		if err := validateURL(cfg.SlackWebhookURL, envSlackWebhookURL); err != nil {
			return Config{}, err
		}
	}
	if cfg.WebhookURL != "" {
		if err := validateURL(cfg.WebhookURL, envWebhookURL); err != nil {
			return Config{}, err
		}
	}

	return cfg, nil
}

func lookupTrimmed(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(value), true
}

func lookupString(key string, target *string) {
	if value, ok := lookupTrimmed(key); ok && value != "" {
		*target = value
	}
}

func lookupDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, ok := lookupTrimmed(key)
	if !ok || value == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be greater than zero", key)
	}
	return parsed, nil
}

func lookupPort(key string) (int, error) {
	value, ok := lookupTrimmed(key)
	if !ok || value == "" {
		return 0, nil
	}
	port, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if port < 0 || port > 65535 {
		return 0, fmt.Errorf("%s must be between 0 and 65535", key)
	}
	return port, nil
}

func loadDotEnvIfPresent(path string) error {
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) && errors.Is(pathErr.Err, os.ErrNotExist) {
		return nil
	}

	return err
}

func validateURL(value, name string) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("invalid %s: must include scheme and host", name)
	}
	return nil
}
