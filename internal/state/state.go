package state

import (
	"context"
	"sort"
	"time"

	"github.com/nholik/openstack-service-checks/internal/checks"
	"github.com/nholik/openstack-service-checks/internal/credentials"
	"github.com/nholik/openstack-service-checks/internal/status"
)

// SchemaVersion is the version written by this build.
const SchemaVersion = 2

// Flags is the reconciliation ladder. Each flag gates the next.
type Flags struct {
	Installed           bool `json:"installed"`
	Configured          bool `json:"configured"`
	EndpointsConfigured bool `json:"endpoints_configured"`
	Started             bool `json:"started"`
	StoredCreds         bool `json:"stored_creds"`
}

// LegacyCredentials is the relation record written by schema version 1.
type LegacyCredentials struct {
	Username      string `json:"credentials_username"`
	Password      string `json:"credentials_password"`
	Project       string `json:"credentials_project"`
	UserDomain    string `json:"credentials_user_domain,omitempty"`
	ProjectDomain string `json:"credentials_project_domain,omitempty"`
}

// Registered maps family to check name to the spec last applied.
type Registered map[checks.Family]map[string]checks.CheckSpec

// Names returns every registered check name across families.
func (r Registered) Names() []string {
	names := make([]string, 0)
	for _, specs := range r {
		for name := range specs {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// State is everything the agent persists between passes.
type State struct {
	Version           int                     `json:"version"`
	Flags             Flags                   `json:"flags"`
	Credentials       *credentials.Credential `json:"keystonecreds,omitempty"`
	LegacyCredentials *LegacyCredentials      `json:"keystone-relation-creds,omitempty"`
	Registered        Registered              `json:"registered"`
	Fingerprints      map[string]string       `json:"fingerprints"`
	VolumeAPIVersion  string                  `json:"volume_api_version,omitempty"`
	Status            status.WorkloadStatus   `json:"status"`
	UpdatedAt         time.Time               `json:"updated_at"`
}

// New returns an empty state at the current schema version.
func New() State {
	return State{
		Version:      SchemaVersion,
		Registered:   Registered{},
		Fingerprints: map[string]string{},
	}
}

// Store defines the interface for persisting state.
type Store interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, state State) error
}
