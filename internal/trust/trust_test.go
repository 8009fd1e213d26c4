package trust

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testCertificatePEM(t *testing.T) []byte {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test-ca"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

type recordingRunner struct {
	calls [][]string
	err   error
}

func (r *recordingRunner) run(_ context.Context, name string, args ...string) ([]byte, error) {
	r.calls = append(r.calls, append([]string{name}, args...))
	if r.err != nil {
		return []byte("permission denied"), r.err
	}
	return nil, nil
}

func TestDecode(t *testing.T) {
	certPEM := testCertificatePEM(t)

	tests := []struct {
		name    string
		value   string
		wantErr bool
		empty   bool
	}{
		{name: "empty", value: "  ", empty: true},
		{name: "raw pem", value: string(certPEM)},
		{name: "base64 pem", value: base64.StdEncoding.EncodeToString(certPEM)},
		{name: "not base64", value: "%%%", wantErr: true},
		{name: "base64 garbage", value: base64.StdEncoding.EncodeToString([]byte("hello")), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.value)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidBundle) {
					t.Fatalf("expected ErrInvalidBundle, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.empty != (len(got) == 0) {
				t.Fatalf("unexpected bundle length %d", len(got))
			}
		})
	}
}

func TestInstaller_ApplyLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ca", "osc.crt")
	runner := &recordingRunner{}
	var delivered [][]byte
	installer, err := NewInstaller(path, []string{"/usr/sbin/update-ca-certificates", "--fresh"}, zerolog.Nop(),
		WithRunner(runner.run),
		WithOnChange(func(pemData []byte) error {
			delivered = append(delivered, pemData)
			return nil
		}),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	certPEM := testCertificatePEM(t)
	value := base64.StdEncoding.EncodeToString(certPEM)

	changed, err := installer.Apply(context.Background(), value)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !changed {
		t.Fatalf("expected first apply to change the store")
	}
	if len(runner.calls) != 1 || runner.calls[0][1] != "--fresh" {
		t.Fatalf("unexpected command calls: %v", runner.calls)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read bundle: %v", err)
	}
	if string(data) != string(certPEM) {
		t.Fatalf("unexpected bundle content")
	}

	changed, err = installer.Apply(context.Background(), value)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if changed || len(runner.calls) != 1 || len(delivered) != 1 {
		t.Fatalf("expected repeat apply to be a no-op, changed=%v calls=%d delivered=%d", changed, len(runner.calls), len(delivered))
	}

	changed, err = installer.Apply(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !changed || len(runner.calls) != 2 {
		t.Fatalf("expected removal to refresh the store")
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected bundle removed, got %v", err)
	}
	if len(delivered) != 2 || len(delivered[1]) != 0 {
		t.Fatalf("expected empty bundle delivery, got %d deliveries", len(delivered))
	}
}

func TestInstaller_CommandFailure(t *testing.T) {
	runner := &recordingRunner{err: errors.New("exit status 1")}
	installer, err := NewInstaller(filepath.Join(t.TempDir(), "osc.crt"), []string{"update-ca-certificates"}, zerolog.Nop(),
		WithRunner(runner.run))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = installer.Apply(context.Background(), string(testCertificatePEM(t)))
	var commandErr *CommandError
	if !errors.As(err, &commandErr) {
		t.Fatalf("expected CommandError, got %v", err)
	}
	if commandErr.Output != "permission denied" {
		t.Fatalf("unexpected output: %q", commandErr.Output)
	}
}

func TestInstaller_InvalidBundleLeavesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "osc.crt")
	installer, err := NewInstaller(path, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := installer.Apply(context.Background(), "not-a-cert"); !errors.Is(err, ErrInvalidBundle) {
		t.Fatalf("expected ErrInvalidBundle, got %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected no file to be written")
	}
}

func TestInstaller_LoadInstalled(t *testing.T) {
	certPEM := testCertificatePEM(t)
	path := filepath.Join(t.TempDir(), "openstack-service-checks.crt")

	var delivered [][]byte
	runner := &recordingRunner{}
	installer, err := NewInstaller(path, []string{"update-ca-certificates"}, zerolog.Nop(),
		WithRunner(runner.run),
		WithOnChange(func(pemData []byte) error {
			delivered = append(delivered, pemData)
			return nil
		}),
	)
	if err != nil {
		t.Fatalf("new installer: %v", err)
	}

	if err := installer.LoadInstalled(); err != nil {
		t.Fatalf("load without a bundle: %v", err)
	}
	if len(delivered) != 0 {
		t.Fatalf("nothing installed, nothing to deliver: %d", len(delivered))
	}

	if err := os.WriteFile(path, certPEM, 0o644); err != nil {
		t.Fatalf("write bundle: %v", err)
	}
	if err := installer.LoadInstalled(); err != nil {
		t.Fatalf("load installed: %v", err)
	}
	if len(delivered) != 1 || string(delivered[0]) != string(certPEM) {
		t.Fatalf("expected the installed bundle to be delivered, got %d deliveries", len(delivered))
	}
	if len(runner.calls) != 0 {
		t.Fatalf("loading must not refresh the trust store, got %v", runner.calls)
	}

	// Applying the same bundle later does not deliver it twice.
	if _, err := installer.Apply(context.Background(), string(certPEM)); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(delivered) != 1 {
		t.Fatalf("expected no repeat delivery, got %d", len(delivered))
	}
}

func TestInstaller_LoadInstalledRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bundle.crt")
	if err := os.WriteFile(path, []byte("not a certificate"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	installer, err := NewInstaller(path, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("new installer: %v", err)
	}
	if err := installer.LoadInstalled(); !errors.Is(err, ErrInvalidBundle) {
		t.Fatalf("expected ErrInvalidBundle, got %v", err)
	}
}
