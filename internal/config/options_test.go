package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOptions_MissingFileUsesDefaults(t *testing.T) {
	opts, fingerprints, err := LoadOptions(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !opts.CheckAdminURLs || !opts.CheckInternalURLs || !opts.CheckPublicURLs {
		t.Fatalf("expected interface checks enabled by default: %+v", opts)
	}
	if opts.TLSWarnDays != 30 || opts.TLSCritDays != 14 {
		t.Fatalf("unexpected tls defaults: warn=%d crit=%d", opts.TLSWarnDays, opts.TLSCritDays)
	}
	if opts.SSLCertMaximumValidity != nil {
		t.Fatalf("expected maximum validity unset")
	}
	if len(fingerprints) != 0 {
		t.Fatalf("expected no fingerprints, got %v", fingerprints)
	}
}

func TestParseOptions_ValuesAndExtra(t *testing.T) {
	data := []byte(`
os-credentials: username=nagios, password=secret
check_public_urls: false
check_ssl_cert_ignore_ocsp: true
check-ssl-cert-maximum-validity: -1
check-servers: all
skip-servers: 1,2
check-networks: 7
nova_warn: 5
`)

	opts, fingerprints, err := ParseOptions(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if opts.CheckPublicURLs {
		t.Fatalf("expected public url checks disabled")
	}
	if !opts.CheckAdminURLs {
		t.Fatalf("expected admin default to survive")
	}
	if !opts.SSLCertIgnoreOCSP {
		t.Fatalf("expected ignore ocsp")
	}
	if opts.SSLCertMaximumValidity == nil || *opts.SSLCertMaximumValidity != -1 {
		t.Fatalf("unexpected maximum validity: %v", opts.SSLCertMaximumValidity)
	}
	if got := opts.Lookup("check-servers"); got != "all" {
		t.Fatalf("unexpected check-servers: %q", got)
	}
	if got := opts.Lookup("skip-servers"); got != "1,2" {
		t.Fatalf("unexpected skip-servers: %q", got)
	}
	if got := opts.Lookup("check-networks"); got != "7" {
		t.Fatalf("unexpected check-networks: %q", got)
	}
	if got := opts.Lookup("check-ports"); got != "" {
		t.Fatalf("expected empty check-ports, got %q", got)
	}
	if opts.NovaWarn != 5 || opts.NovaCrit != 1 {
		t.Fatalf("unexpected nova thresholds: %d/%d", opts.NovaWarn, opts.NovaCrit)
	}
	if _, ok := fingerprints[KeyOSCredentials]; !ok {
		t.Fatalf("expected fingerprint for %s", KeyOSCredentials)
	}
	if len(fingerprints) != 8 {
		t.Fatalf("expected 8 fingerprints, got %d", len(fingerprints))
	}
}

func TestParseOptions_NullMaximumValidity(t *testing.T) {
	opts, _, err := ParseOptions([]byte("check-ssl-cert-maximum-validity: null\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.SSLCertMaximumValidity != nil {
		t.Fatalf("expected nil maximum validity")
	}
}

func TestParseOptions_RejectsNegativeThresholds(t *testing.T) {
	if _, _, err := ParseOptions([]byte("tls_warn_days: -3\n")); err == nil {
		t.Fatal("expected error for negative tls_warn_days")
	}
}

func TestLoadOptions_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "options.yaml")
	if err := os.WriteFile(path, []byte("check-servers: ["), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	if _, _, err := LoadOptions(path); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestCheckInterfaceURLs(t *testing.T) {
	opts := DefaultOptions()
	opts.CheckInternalURLs = false

	if !opts.CheckInterfaceURLs("admin") {
		t.Fatalf("expected admin enabled")
	}
	if opts.CheckInterfaceURLs("internal") {
		t.Fatalf("expected internal disabled")
	}
	if opts.CheckInterfaceURLs("bogus") {
		t.Fatalf("expected unknown interface disabled")
	}
}
