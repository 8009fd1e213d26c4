package checks

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nholik/openstack-service-checks/internal/config"
	"github.com/nholik/openstack-service-checks/internal/keystone"
)

const testPlugins = "/usr/local/lib/nagios/plugins"

func mustOptions(t *testing.T, doc string) config.Options {
	t.Helper()
	opts, _, err := config.ParseOptions([]byte(doc))
	if err != nil {
		t.Fatalf("parse options: %v", err)
	}
	return opts
}

func intPtr(v int) *int { return &v }

func TestSSLCertOptions(t *testing.T) {
	tests := []struct {
		name        string
		ignoreOCSP  bool
		maxValidity *int
		want        string
	}{
		{name: "defaults", want: "--ignore-sct"},
		{name: "ignore ocsp", ignoreOCSP: true, want: "--ignore-sct --ignore-ocsp"},
		{name: "zero validity", maxValidity: intPtr(0), want: "--ignore-sct --maximum-validity 0"},
		{name: "ignore validity", maxValidity: intPtr(-1), want: "--ignore-sct --ignore-maximum-validity"},
		{name: "validity", maxValidity: intPtr(10), want: "--ignore-sct --maximum-validity 10"},
		{name: "ocsp and validity", ignoreOCSP: true, maxValidity: intPtr(10), want: "--ignore-sct --ignore-ocsp --maximum-validity 10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := config.DefaultOptions()
			opts.SSLCertIgnoreOCSP = tt.ignoreOCSP
			opts.SSLCertMaximumValidity = tt.maxValidity
			got, err := SSLCertOptions(opts)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestSSLCertOptions_RejectsBelowMinusOne(t *testing.T) {
	for _, value := range []int{-2, -3, -100} {
		opts := config.DefaultOptions()
		opts.SSLCertMaximumValidity = intPtr(value)
		_, err := SSLCertOptions(opts)
		var configErr *ConfigError
		if !errors.As(err, &configErr) {
			t.Fatalf("value %d: expected ConfigError, got %v", value, err)
		}
	}

	opts := config.DefaultOptions()
	opts.SSLCertMaximumValidity = intPtr(-2)
	_, err := SSLCertOptions(opts)
	if err.Error() != "check_ssl_cert_maximum_validity does not support value `-2`" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func httpsEndpoint(iface string, enabled bool) keystone.Endpoint {
	return keystone.Endpoint{
		Interface:   iface,
		Scheme:      "https",
		Host:        "keystone.example.com",
		Port:        5000,
		Path:        "/v3",
		ServiceID:   "s1",
		ServiceName: "keystone",
		Enabled:     enabled,
	}
}

func TestEndpointChecks_HTTPSAdminDefaults(t *testing.T) {
	s := New(testPlugins, "")
	opts := config.DefaultOptions()

	specs, err := s.EndpointChecks(opts, []keystone.Endpoint{httpsEndpoint("admin", true)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []CheckSpec{
		{
			Name:        "keystone_admin",
			Command:     "/usr/lib/nagios/plugins/check_http -H keystone.example.com -p 5000 -u /v3 -S --sni",
			Description: "Endpoint url check for keystone admin",
			Enabled:     true,
			Family:      FamilyEndpoints,
		},
		{
			Name:        "keystone_admin_cert",
			Command:     testPlugins + "/check_ssl_cert -H keystone.example.com -p 5000 -u /v3 -c 14 -w 30 --ignore-sct",
			Description: "Certificate expiry check for keystone admin",
			Enabled:     true,
			Family:      FamilyEndpoints,
		},
	}
	if diff := cmp.Diff(want, specs); diff != "" {
		t.Fatalf("unexpected specs (-want +got):\n%s", diff)
	}
}

func TestEndpointChecks_InterfaceFlags(t *testing.T) {
	s := New(testPlugins, "")
	opts := mustOptions(t, "check_public_urls: false\n")

	endpoints := []keystone.Endpoint{
		{Interface: "public", Scheme: "http", Host: "h", Port: 80, Path: "/", ServiceName: "glance", Enabled: true},
		{Interface: "internal", Scheme: "http", Host: "h", Port: 9292, Path: "/", ServiceName: "glance", Enabled: true},
	}
	specs, err := s.EndpointChecks(opts, endpoints)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(specs) != 1 || specs[0].Name != "glance_internal" {
		t.Fatalf("expected only the internal check, got %+v", specs)
	}
	if specs[0].Command != "/usr/lib/nagios/plugins/check_http -H h -p 9292 -u /" {
		t.Fatalf("unexpected command: %q", specs[0].Command)
	}
}

func TestEndpointChecks_CertIgnoresInterfaceFlags(t *testing.T) {
	s := New(testPlugins, "")
	opts := mustOptions(t, "check_admin_urls: false\n")

	specs, err := s.EndpointChecks(opts, []keystone.Endpoint{httpsEndpoint("admin", true)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(specs) != 1 || specs[0].Name != "keystone_admin_cert" {
		t.Fatalf("expected only the cert check, got %+v", specs)
	}
}

func TestEndpointChecks_DisabledEndpointKeepsCommand(t *testing.T) {
	s := New(testPlugins, "")
	opts := config.DefaultOptions()
	opts.SSLCertMaximumValidity = intPtr(-1)

	specs, err := s.EndpointChecks(opts, []keystone.Endpoint{httpsEndpoint("public", false)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, spec := range specs {
		if spec.Enabled {
			t.Fatalf("expected %s to be disabled", spec.Name)
		}
		if spec.Command == "" {
			t.Fatalf("expected %s to keep its command", spec.Name)
		}
	}
	if !strings.HasSuffix(specs[1].Command, "--ignore-sct --ignore-maximum-validity") {
		t.Fatalf("unexpected cert command: %q", specs[1].Command)
	}
}

func TestEndpointChecks_ConfigErrorProducesNothing(t *testing.T) {
	s := New(testPlugins, "")
	opts := config.DefaultOptions()
	opts.SSLCertMaximumValidity = intPtr(-2)

	specs, err := s.EndpointChecks(opts, []keystone.Endpoint{
		httpsEndpoint("admin", true),
		{Interface: "public", Scheme: "http", Host: "h", Port: 80, Path: "/", ServiceName: "nova", Enabled: true},
	})
	var configErr *ConfigError
	if !errors.As(err, &configErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if specs != nil {
		t.Fatalf("expected no specs, got %+v", specs)
	}
}

func TestEndpointChecks_Deterministic(t *testing.T) {
	s := New(testPlugins, "")
	opts := config.DefaultOptions()
	endpoints := []keystone.Endpoint{
		httpsEndpoint("public", true),
		{Interface: "admin", Scheme: "http", Host: "10.0.0.1", Port: 8774, Path: "/v2.1", ServiceName: "nova", Enabled: true},
		httpsEndpoint("internal", true),
		{Interface: "admin", Scheme: "http", Host: "10.0.0.1", Port: 35357, Path: "/v3", ServiceName: "keystone", Enabled: true},
	}
	reversed := make([]keystone.Endpoint, len(endpoints))
	for i, endpoint := range endpoints {
		reversed[len(endpoints)-1-i] = endpoint
	}

	first, err := s.EndpointChecks(opts, endpoints)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := s.EndpointChecks(opts, reversed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("synthesis is order dependent (-first +second):\n%s", diff)
	}
}

func TestEndpointChecks_DuplicatePrefersEnabled(t *testing.T) {
	s := New(testPlugins, "")
	opts := config.DefaultOptions()
	disabled := httpsEndpoint("public", false)
	enabled := httpsEndpoint("public", true)
	enabled.Host = "other.example.com"

	specs, err := s.EndpointChecks(opts, []keystone.Endpoint{disabled, enabled})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("expected 2 specs, got %d", len(specs))
	}
	for _, spec := range specs {
		if !spec.Enabled || !strings.Contains(spec.Command, "other.example.com") {
			t.Fatalf("expected the enabled endpoint to win, got %+v", spec)
		}
	}
}

func TestShortnameSanitizes(t *testing.T) {
	if got := shortname("object store", "public", "cert"); got != "object_store_public_cert" {
		t.Fatalf("unexpected shortname: %q", got)
	}
}

func TestParseIDs(t *testing.T) {
	tests := []struct {
		value string
		want  []string
	}{
		{value: "1,2,3,,4", want: []string{"1", "2", "3", "4"}},
		{value: "", want: []string{}},
		{value: "all", want: []string{"all"}},
		{value: " a , b ", want: []string{"a", "b"}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, ParseIDs(tt.value)); diff != "" {
			t.Fatalf("ParseIDs(%q) (-want +got):\n%s", tt.value, diff)
		}
	}
}
