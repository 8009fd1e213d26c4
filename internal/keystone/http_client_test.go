package keystone

import (
	"context"
	"encoding/json"
	"encoding/pem"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/nholik/openstack-service-checks/internal/credentials"
)

func v3Credential(authURL string) credentials.Credential {
	return credentials.Credential{
		Username:          "nagios",
		Password:          "secret",
		ProjectName:       "services",
		UserDomainName:    "service_domain",
		ProjectDomainName: "service_domain",
		Region:            "RegionOne",
		AuthURL:           authURL,
		APIVersion:        3,
	}
}

type fakeKeystone struct {
	authCalls     atomic.Int32
	endpointCalls atomic.Int32
	rejectToken   atomic.Bool
}

func (f *fakeKeystone) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v3/auth/tokens", func(w http.ResponseWriter, r *http.Request) {
		f.authCalls.Add(1)
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		var payload v3AuthRequest
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Errorf("decode auth request: %v", err)
		}
		if payload.Auth.Identity.Password.User.Name != "nagios" {
			t.Errorf("unexpected user: %q", payload.Auth.Identity.Password.User.Name)
		}
		if payload.Auth.Scope.Project.Domain.Name != "service_domain" {
			t.Errorf("unexpected project domain: %q", payload.Auth.Scope.Project.Domain.Name)
		}
		w.Header().Set(subjectTokenHeader, "token-1")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"token":{"expires_at":"2099-01-01T00:00:00Z"}}`))
	})
	mux.HandleFunc("/v3/endpoints", func(w http.ResponseWriter, r *http.Request) {
		f.endpointCalls.Add(1)
		if f.rejectToken.CompareAndSwap(true, false) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Header.Get(tokenHeader) != "token-1" {
			t.Errorf("unexpected token header: %q", r.Header.Get(tokenHeader))
		}
		_, _ = w.Write([]byte(`{"endpoints":[
			{"id":"1","service_id":"s1","region_id":"RegionOne","interface":"public","url":"https://keystone.example.com:5000/v3","enabled":true},
			{"id":"2","service_id":"s1","region_id":"RegionTwo","interface":"public","url":"https://keystone.two.example.com:5000/v3","enabled":true}
		]}`))
	})
	mux.HandleFunc("/v3/services", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"services":[{"id":"s1","name":"keystone","type":"identity","enabled":true}]}`))
	})
	return mux
}

func TestHTTPClient_ListEndpoints_V3(t *testing.T) {
	fake := &fakeKeystone{}
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	client, err := NewHTTPClient(zerolog.Nop(), time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cred := v3Credential(server.URL + "/v3")
	endpoints, err := client.ListEndpoints(context.Background(), cred)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(endpoints) != 1 {
		t.Fatalf("expected 1 endpoint in region, got %d", len(endpoints))
	}
	if endpoints[0].ServiceName != "keystone" || endpoints[0].Port != 5000 {
		t.Fatalf("unexpected endpoint: %+v", endpoints[0])
	}

	if _, err := client.ListEndpoints(context.Background(), cred); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := fake.authCalls.Load(); got != 1 {
		t.Fatalf("expected cached session, got %d auth calls", got)
	}
}

func TestHTTPClient_ReauthenticatesOnUnauthorized(t *testing.T) {
	fake := &fakeKeystone{}
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	client, err := NewHTTPClient(zerolog.Nop(), time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cred := v3Credential(server.URL + "/v3")
	if _, err := client.ListEndpoints(context.Background(), cred); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fake.rejectToken.Store(true)
	if _, err := client.ListEndpoints(context.Background(), cred); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := fake.authCalls.Load(); got != 2 {
		t.Fatalf("expected re-authentication, got %d auth calls", got)
	}
}

func TestHTTPClient_ExpiredSessionRenews(t *testing.T) {
	fake := &fakeKeystone{}
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	client, err := NewHTTPClient(zerolog.Nop(), time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	client.now = func() time.Time { return time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC) }

	cred := v3Credential(server.URL + "/v3")
	for i := 0; i < 2; i++ {
		if _, err := client.ListEndpoints(context.Background(), cred); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if got := fake.authCalls.Load(); got != 2 {
		t.Fatalf("expected expired token to be renewed, got %d auth calls", got)
	}
}

func TestHTTPClient_ListEndpoints_V2(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2.0/tokens", func(w http.ResponseWriter, r *http.Request) {
		var payload v2AuthRequest
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &payload)
		if payload.Auth.TenantName != "services" {
			t.Errorf("unexpected tenant: %q", payload.Auth.TenantName)
		}
		_, _ = w.Write([]byte(`{"access":{"token":{"id":"v2-token","expires":"2099-01-01T00:00:00Z"}}}`))
	})
	mux.HandleFunc("/v2.0/endpoints", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"endpoints":[{"id":"1","service_id":"s1","region":"RegionOne",
			"adminurl":"http://10.0.0.1:8774/v2.1","internalurl":"http://10.0.0.1:8774/v2.1","publicurl":"https://nova.example.com/v2.1"}]}`))
	})
	mux.HandleFunc("/v2.0/OS-KSADM/services", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"OS-KSADM:services":[{"id":"s1","name":"nova","type":"compute"}]}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, err := NewHTTPClient(zerolog.Nop(), time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cred := credentials.Credential{
		Username:    "nagios",
		Password:    "secret",
		ProjectName: "services",
		Region:      "RegionOne",
		AuthURL:     server.URL + "/v2.0",
		APIVersion:  2,
	}
	endpoints, err := client.ListEndpoints(context.Background(), cred)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(endpoints) != 3 {
		t.Fatalf("expected 3 endpoints, got %d", len(endpoints))
	}
	for _, endpoint := range endpoints {
		if endpoint.ServiceName != "nova" {
			t.Fatalf("unexpected service name: %q", endpoint.ServiceName)
		}
	}
}

func TestHTTPClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		kind   ErrorKind
	}{
		{name: "server error", status: http.StatusInternalServerError, kind: KindServer},
		{name: "bad gateway", status: http.StatusBadGateway, kind: KindServer},
		{name: "bad request", status: http.StatusBadRequest, kind: KindClient},
		{name: "unauthorized", status: http.StatusUnauthorized, kind: KindClient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("nope"))
			}))
			defer server.Close()

			client, err := NewHTTPClient(zerolog.Nop(), time.Second)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			_, err = client.ListEndpoints(context.Background(), v3Credential(server.URL+"/v3"))
			var catalogErr *CatalogError
			if !errors.As(err, &catalogErr) {
				t.Fatalf("expected CatalogError, got %v", err)
			}
			if catalogErr.Kind != tt.kind {
				t.Fatalf("expected kind %s, got %s", tt.kind, catalogErr.Kind)
			}
			if catalogErr.StatusCode != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, catalogErr.StatusCode)
			}
		})
	}
}

func TestHTTPClient_ConnectionRefusedIsServerError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client, err := NewHTTPClient(zerolog.Nop(), time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = client.ListEndpoints(context.Background(), v3Credential(url+"/v3"))
	var catalogErr *CatalogError
	if !errors.As(err, &catalogErr) {
		t.Fatalf("expected CatalogError, got %v", err)
	}
	if catalogErr.Kind != KindServer || !catalogErr.Retryable() {
		t.Fatalf("expected retryable server error, got %s", catalogErr.Kind)
	}
}

func TestHTTPClient_UntrustedCertificate(t *testing.T) {
	fake := &fakeKeystone{}
	server := httptest.NewTLSServer(fake.handler(t))
	defer server.Close()

	client, err := NewHTTPClient(zerolog.Nop(), time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cred := v3Credential(server.URL + "/v3")

	_, err = client.ListEndpoints(context.Background(), cred)
	var catalogErr *CatalogError
	if !errors.As(err, &catalogErr) {
		t.Fatalf("expected CatalogError, got %v", err)
	}
	if catalogErr.Kind != KindTLS {
		t.Fatalf("expected tls error, got %s: %v", catalogErr.Kind, err)
	}
	if catalogErr.Retryable() {
		t.Fatalf("tls errors must not be retryable")
	}

	bundle := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: server.Certificate().Raw})
	if err := client.TrustBundle(bundle); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := client.ListEndpoints(context.Background(), cred); err != nil {
		t.Fatalf("expected trusted request to succeed: %v", err)
	}
}

func TestHTTPClient_MissingCredentials(t *testing.T) {
	client, err := NewHTTPClient(zerolog.Nop(), time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = client.ListEndpoints(context.Background(), credentials.Credential{})
	if !errors.Is(err, credentials.ErrMissingCredentials) {
		t.Fatalf("expected missing credentials, got %v", err)
	}
}

func TestTrustBundle_RejectsGarbage(t *testing.T) {
	client, err := NewHTTPClient(zerolog.Nop(), time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := client.TrustBundle([]byte("not a certificate")); err == nil {
		t.Fatalf("expected error")
	}
}
