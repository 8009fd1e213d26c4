package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Option keys that drive flag invalidation in the reconciler.
const (
	KeyOSCredentials     = "os-credentials"
	KeyCheckAdminURLs    = "check_admin_urls"
	KeyCheckInternalURLs = "check_internal_urls"
	KeyCheckPublicURLs   = "check_public_urls"
	KeyTrustedSSLCA      = "trusted_ssl_ca"
	KeyCheckHorizon      = "check-horizon"
	KeyCheckAllocations  = "check-allocations"
)

const (
	defaultTLSWarnDays = 30
	defaultTLSCritDays = 14
	defaultNovaWarn    = 2
	defaultNovaCrit    = 1
)

// Options is the operator-facing configuration surface, read from a YAML file.
// Resource selections (check-<kind>, skip-<kind>) land in Extra.
type Options struct {
	OSCredentials          string         `yaml:"os-credentials"`
	CheckAdminURLs         bool           `yaml:"check_admin_urls"`
	CheckInternalURLs      bool           `yaml:"check_internal_urls"`
	CheckPublicURLs        bool           `yaml:"check_public_urls"`
	SSLCertIgnoreOCSP      bool           `yaml:"check_ssl_cert_ignore_ocsp"`
	SSLCertMaximumValidity *int           `yaml:"check-ssl-cert-maximum-validity"`
	TLSWarnDays            int            `yaml:"tls_warn_days"`
	TLSCritDays            int            `yaml:"tls_crit_days"`
	TrustedSSLCA           string         `yaml:"trusted_ssl_ca"`
	CheckHorizon           bool           `yaml:"check-horizon"`
	CheckNeutronAgents     bool           `yaml:"check-neutron-agents"`
	CheckAllocations       bool           `yaml:"check-allocations"`
	SkipAggregates         string         `yaml:"skip-aggregates"`
	SkipDisabled           bool           `yaml:"skip-disabled"`
	NovaWarn               int            `yaml:"nova_warn"`
	NovaCrit               int            `yaml:"nova_crit"`
	Extra                  map[string]any `yaml:",inline"`
}

// DefaultOptions returns the options used when a key is absent.
func DefaultOptions() Options {
	return Options{
		CheckAdminURLs:     true,
		CheckInternalURLs:  true,
		CheckPublicURLs:    true,
		TLSWarnDays:        defaultTLSWarnDays,
		TLSCritDays:        defaultTLSCritDays,
		CheckNeutronAgents: true,
		NovaWarn:           defaultNovaWarn,
		NovaCrit:           defaultNovaCrit,
	}
}

// Lookup returns a free-form option as a trimmed string.
func (o Options) Lookup(key string) string {
	if o.Extra == nil {
		return ""
	}
	value, ok := o.Extra[key]
	if !ok || value == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

// CheckInterfaceURLs reports whether connectivity checks are enabled for an interface.
func (o Options) CheckInterfaceURLs(iface string) bool {
	switch iface {
	case "admin":
		return o.CheckAdminURLs
	case "internal":
		return o.CheckInternalURLs
	case "public":
		return o.CheckPublicURLs
	default:
		return false
	}
}

// LoadOptions parses the options file and returns per-key fingerprints for change detection.
// A missing file yields defaults and no fingerprints.
func LoadOptions(path string) (Options, map[string]string, error) {
	opts := DefaultOptions()
	if path == "" {
		return opts, map[string]string{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return opts, map[string]string{}, nil
		}
		return Options{}, nil, fmt.Errorf("read options file: %w", err)
	}

	opts, fingerprints, err := ParseOptions(data)
	if err != nil {
		return Options{}, nil, err
	}
	return opts, fingerprints, nil
}

// ParseOptions decodes options YAML on top of the defaults.
func ParseOptions(data []byte) (Options, map[string]string, error) {
	opts := DefaultOptions()
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return Options{}, nil, fmt.Errorf("parse options file: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Options{}, nil, fmt.Errorf("parse options file: %w", err)
	}
	fingerprints, err := FingerprintValues(raw)
	if err != nil {
		return Options{}, nil, err
	}

	if err := validateOptions(opts); err != nil {
		return Options{}, nil, err
	}
	return opts, fingerprints, nil
}

func validateOptions(opts Options) error {
	if opts.TLSWarnDays < 0 || opts.TLSCritDays < 0 {
		return errors.New("tls_warn_days and tls_crit_days cannot be negative")
	}
	if opts.NovaWarn < 0 || opts.NovaCrit < 0 {
		return errors.New("nova_warn and nova_crit cannot be negative")
	}
	return nil
}
