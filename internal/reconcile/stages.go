package reconcile

import (
	"strings"

	"github.com/nholik/openstack-service-checks/internal/config"
	"github.com/nholik/openstack-service-checks/internal/state"
)

// Stage names, also used as status condition keys.
const (
	StageInstalled           = "installed"
	StageConfigured          = "configured"
	StageEndpointsConfigured = "endpoints-configured"
	StageStarted             = "started"
	StageHorizon             = "horizon"
)

// stage is one rung of the ladder: the flag it owns and the events that clear it.
type stage struct {
	name          string
	flag          func(*state.Flags) *bool
	invalidatedBy func(Trigger) bool
}

// Options whose change alters endpoint check commands or how the catalog is read.
var endpointOptionKeys = map[string]bool{
	config.KeyCheckAdminURLs:          true,
	config.KeyCheckInternalURLs:       true,
	config.KeyCheckPublicURLs:         true,
	config.KeyOSCredentials:           true,
	config.KeyTrustedSSLCA:            true,
	config.KeyCheckAllocations:        true,
	"check_ssl_cert_ignore_ocsp":      true,
	"check-ssl-cert-maximum-validity": true,
	"tls_warn_days":                   true,
	"tls_crit_days":                   true,
}

// Options that only toggle connectivity checks; they leave the base checks alone.
var interfaceOptionKeys = map[string]bool{
	config.KeyCheckAdminURLs:    true,
	config.KeyCheckInternalURLs: true,
	config.KeyCheckPublicURLs:   true,
}

var ladder = []stage{
	{
		name: StageInstalled,
		flag: func(f *state.Flags) *bool { return &f.Installed },
		// Only registry availability moves this flag.
		invalidatedBy: func(Trigger) bool { return false },
	},
	{
		name: StageConfigured,
		flag: func(f *state.Flags) *bool { return &f.Configured },
		invalidatedBy: func(t Trigger) bool {
			switch t.Event {
			case EventInstall, EventCredentialsChanged, EventCatalogChanged, EventUpgrade:
				return true
			case EventConfigChanged:
				for _, key := range t.Keys {
					if !interfaceOptionKeys[key] {
						return true
					}
				}
			}
			return false
		},
	},
	{
		name: StageEndpointsConfigured,
		flag: func(f *state.Flags) *bool { return &f.EndpointsConfigured },
		invalidatedBy: func(t Trigger) bool {
			switch t.Event {
			case EventCredentialsChanged, EventCatalogChanged, EventRefreshEndpoints:
				return true
			case EventConfigChanged:
				for _, key := range t.Keys {
					if endpointOptionKeys[key] {
						return true
					}
				}
			}
			return false
		},
	},
	{
		name: StageStarted,
		flag: func(f *state.Flags) *bool { return &f.Started },
		// Cleared by the driver only when the registry content changes.
		invalidatedBy: func(Trigger) bool { return false },
	},
}

// invalidate clears every flag the trigger invalidates and returns the stage names cleared.
func invalidate(flags *state.Flags, trigger Trigger) []string {
	cleared := make([]string, 0)
	for _, s := range ladder {
		if !s.invalidatedBy(trigger) {
			continue
		}
		flag := s.flag(flags)
		if *flag {
			cleared = append(cleared, s.name)
		}
		*flag = false
	}
	switch trigger.Event {
	case EventCredentialsChanged, EventCredentialsDeparted:
		// Lets the next relation record overwrite the stored credential.
		flags.StoredCreds = false
	}
	return cleared
}

func describeTriggers(triggers []Trigger) string {
	names := make([]string, 0, len(triggers))
	for _, trigger := range triggers {
		name := trigger.Event.String()
		if len(trigger.Keys) > 0 {
			name += "(" + strings.Join(trigger.Keys, ",") + ")"
		}
		names = append(names, name)
	}
	return strings.Join(names, " ")
}
