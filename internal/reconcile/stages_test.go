package reconcile

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nholik/openstack-service-checks/internal/state"
)

func TestInvalidate(t *testing.T) {
	full := state.Flags{Installed: true, Configured: true, EndpointsConfigured: true, Started: true, StoredCreds: true}

	tests := []struct {
		name    string
		trigger Trigger
		want    state.Flags
	}{
		{name: "update status", trigger: Trigger{Event: EventUpdateStatus}, want: full},
		{name: "website", trigger: Trigger{Event: EventWebsiteChanged}, want: full},
		{name: "registry departed", trigger: Trigger{Event: EventRegistryDeparted}, want: full},
		{
			name:    "install",
			trigger: Trigger{Event: EventInstall},
			want:    state.Flags{Installed: true, EndpointsConfigured: true, Started: true, StoredCreds: true},
		},
		{
			name:    "upgrade",
			trigger: Trigger{Event: EventUpgrade},
			want:    state.Flags{Installed: true, EndpointsConfigured: true, Started: true, StoredCreds: true},
		},
		{
			name:    "credentials changed",
			trigger: Trigger{Event: EventCredentialsChanged},
			want:    state.Flags{Installed: true, Started: true},
		},
		{
			name:    "credentials departed",
			trigger: Trigger{Event: EventCredentialsDeparted},
			want:    state.Flags{Installed: true, Configured: true, EndpointsConfigured: true, Started: true},
		},
		{
			name:    "catalog changed",
			trigger: Trigger{Event: EventCatalogChanged},
			want:    state.Flags{Installed: true, Started: true, StoredCreds: true},
		},
		{
			name:    "refresh endpoints",
			trigger: Trigger{Event: EventRefreshEndpoints},
			want:    state.Flags{Installed: true, Configured: true, Started: true, StoredCreds: true},
		},
		{
			name:    "interface toggle",
			trigger: Trigger{Event: EventConfigChanged, Keys: []string{"check_admin_urls"}},
			want:    state.Flags{Installed: true, Configured: true, Started: true, StoredCreds: true},
		},
		{
			name:    "resource selection",
			trigger: Trigger{Event: EventConfigChanged, Keys: []string{"check-servers"}},
			want:    state.Flags{Installed: true, EndpointsConfigured: true, Started: true, StoredCreds: true},
		},
		{
			name:    "tls thresholds",
			trigger: Trigger{Event: EventConfigChanged, Keys: []string{"tls_warn_days"}},
			want:    state.Flags{Installed: true, Started: true, StoredCreds: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags := full
			invalidate(&flags, tt.trigger)
			if diff := cmp.Diff(tt.want, flags); diff != "" {
				t.Fatalf("unexpected flags (-want +got):\n%s", diff)
			}
		})
	}
}

func TestInvalidate_ReportsClearedStages(t *testing.T) {
	flags := state.Flags{Installed: true, Configured: true}
	cleared := invalidate(&flags, Trigger{Event: EventCatalogChanged})
	if diff := cmp.Diff([]string{StageConfigured}, cleared); diff != "" {
		t.Fatalf("unexpected cleared stages (-want +got):\n%s", diff)
	}
}
