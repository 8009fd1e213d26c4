package keystone

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"github.com/nholik/openstack-service-checks/internal/credentials"
)

const (
	defaultMaxBytes int64 = 5 << 20
	errorBodyLimit        = 512
	tokenHeader           = "X-Auth-Token"
	subjectTokenHeader    = "X-Subject-Token"
	// Tokens expiring within this window are renewed early.
	expiryLeeway = 30 * time.Second
)

// HTTPClient talks to the identity service over its REST API.
type HTTPClient struct {
	logger   zerolog.Logger
	timeout  time.Duration
	maxBytes int64
	now      func() time.Time

	mu       sync.Mutex
	client   *retryablehttp.Client
	sessions map[string]session
}

type session struct {
	token   string
	expires time.Time
}

func (s session) valid(now time.Time) bool {
	if s.token == "" {
		return false
	}
	if s.expires.IsZero() {
		return true
	}
	return now.Add(expiryLeeway).Before(s.expires)
}

// NewHTTPClient constructs an HTTPClient whose requests time out after timeout.
func NewHTTPClient(logger zerolog.Logger, timeout time.Duration) (*HTTPClient, error) {
	if timeout <= 0 {
		return nil, errors.New("timeout must be greater than zero")
	}
	c := &HTTPClient{
		logger:   logger,
		timeout:  timeout,
		maxBytes: defaultMaxBytes,
		now:      time.Now,
		sessions: make(map[string]session),
	}
	c.client = c.newRetryClient(nil)
	return c, nil
}

func (c *HTTPClient) newRetryClient(roots *x509.CertPool) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Logger = nil
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.CheckRetry = func(ctx context.Context, _ *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		// Status codes are classified by the caller; only transport failures are retried.
		if err == nil || isTLSError(err) {
			return false, nil
		}
		return true, nil
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if roots != nil {
		transport.TLSClientConfig = &tls.Config{RootCAs: roots, MinVersion: tls.VersionTLS12}
	}
	client.HTTPClient = &http.Client{Timeout: c.timeout, Transport: transport}
	return client
}

// SetRootCAs replaces the trust roots used for https identity endpoints.
// A nil pool restores the system roots. Cached sessions are dropped.
func (c *HTTPClient) SetRootCAs(roots *x509.CertPool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.client = c.newRetryClient(roots)
	c.sessions = make(map[string]session)
}

// TrustBundle installs a PEM bundle on top of the system roots.
func (c *HTTPClient) TrustBundle(pemData []byte) error {
	if len(bytes.TrimSpace(pemData)) == 0 {
		c.SetRootCAs(nil)
		return nil
	}
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(pemData) {
		return errors.New("no certificates found in trust bundle")
	}
	c.SetRootCAs(pool)
	return nil
}

// ListEndpoints authenticates with cred and returns every endpoint visible in cred's region.
func (c *HTTPClient) ListEndpoints(ctx context.Context, cred credentials.Credential) ([]Endpoint, error) {
	if err := cred.Validate(); err != nil {
		return nil, err
	}

	endpoints, err := c.listEndpoints(ctx, cred)
	var catalogErr *CatalogError
	if errors.As(err, &catalogErr) && catalogErr.StatusCode == http.StatusUnauthorized {
		// The cached token may have been revoked; authenticate once more.
		c.dropSession(cred)
		endpoints, err = c.listEndpoints(ctx, cred)
	}
	if err != nil {
		return nil, err
	}
	return filterRegion(endpoints, cred.Region), nil
}

func (c *HTTPClient) listEndpoints(ctx context.Context, cred credentials.Credential) ([]Endpoint, error) {
	token, err := c.token(ctx, cred)
	if err != nil {
		return nil, err
	}
	base := strings.TrimRight(cred.AuthURL, "/")

	if cred.IsV3() {
		var endpoints struct {
			Endpoints []RawEndpoint `json:"endpoints"`
		}
		if err := c.getJSON(ctx, "list endpoints", base+"/endpoints", token, &endpoints); err != nil {
			return nil, err
		}
		var services struct {
			Services []RawService `json:"services"`
		}
		if err := c.getJSON(ctx, "list services", base+"/services", token, &services); err != nil {
			return nil, err
		}
		return NormalizeEndpoints(endpoints.Endpoints, NormalizeServices(services.Services)), nil
	}

	var endpoints struct {
		Endpoints []RawEndpoint `json:"endpoints"`
	}
	if err := c.getJSON(ctx, "list endpoints", base+"/endpoints", token, &endpoints); err != nil {
		return nil, err
	}
	var services struct {
		Services []RawService `json:"OS-KSADM:services"`
	}
	if err := c.getJSON(ctx, "list services", base+"/OS-KSADM/services", token, &services); err != nil {
		return nil, err
	}
	return NormalizeEndpoints(endpoints.Endpoints, NormalizeServices(services.Services)), nil
}

func (c *HTTPClient) token(ctx context.Context, cred credentials.Credential) (string, error) {
	key := cred.Fingerprint()
	c.mu.Lock()
	cached, ok := c.sessions[key]
	c.mu.Unlock()
	if ok && cached.valid(c.now()) {
		return cached.token, nil
	}

	var (
		fresh session
		err   error
	)
	if cred.IsV3() {
		fresh, err = c.authenticateV3(ctx, cred)
	} else {
		fresh, err = c.authenticateV2(ctx, cred)
	}
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.sessions[key] = fresh
	c.mu.Unlock()
	c.logger.Debug().
		Str("auth_url", cred.AuthURL).
		Time("expires", fresh.expires).
		Msg("authenticated with keystone")
	return fresh.token, nil
}

func (c *HTTPClient) dropSession(cred credentials.Credential) {
	c.mu.Lock()
	delete(c.sessions, cred.Fingerprint())
	c.mu.Unlock()
}

type v3AuthRequest struct {
	Auth struct {
		Identity struct {
			Methods  []string `json:"methods"`
			Password struct {
				User struct {
					Name     string     `json:"name"`
					Domain   namedScope `json:"domain"`
					Password string     `json:"password"`
				} `json:"user"`
			} `json:"password"`
		} `json:"identity"`
		Scope struct {
			Project struct {
				Name   string     `json:"name"`
				Domain namedScope `json:"domain"`
			} `json:"project"`
		} `json:"scope"`
	} `json:"auth"`
}

type namedScope struct {
	Name string `json:"name"`
}

func (c *HTTPClient) authenticateV3(ctx context.Context, cred credentials.Credential) (session, error) {
	var payload v3AuthRequest
	payload.Auth.Identity.Methods = []string{"password"}
	payload.Auth.Identity.Password.User.Name = cred.Username
	payload.Auth.Identity.Password.User.Domain.Name = cred.UserDomainName
	payload.Auth.Identity.Password.User.Password = cred.Password
	payload.Auth.Scope.Project.Name = cred.ProjectName
	payload.Auth.Scope.Project.Domain.Name = cred.ProjectDomainName

	var response struct {
		Token struct {
			ExpiresAt time.Time `json:"expires_at"`
		} `json:"token"`
	}
	url := strings.TrimRight(cred.AuthURL, "/") + "/auth/tokens"
	header, err := c.postJSON(ctx, "authenticate", url, payload, &response)
	if err != nil {
		return session{}, err
	}
	token := header.Get(subjectTokenHeader)
	if token == "" {
		return session{}, &CatalogError{Kind: KindServer, Op: "authenticate", Err: errors.New("response carried no subject token")}
	}
	return session{token: token, expires: response.Token.ExpiresAt}, nil
}

type v2AuthRequest struct {
	Auth struct {
		PasswordCredentials struct {
			Username string `json:"username"`
			Password string `json:"password"`
		} `json:"passwordCredentials"`
		TenantName string `json:"tenantName"`
	} `json:"auth"`
}

func (c *HTTPClient) authenticateV2(ctx context.Context, cred credentials.Credential) (session, error) {
	var payload v2AuthRequest
	payload.Auth.PasswordCredentials.Username = cred.Username
	payload.Auth.PasswordCredentials.Password = cred.Password
	payload.Auth.TenantName = cred.ProjectName

	var response struct {
		Access struct {
			Token struct {
				ID      string    `json:"id"`
				Expires time.Time `json:"expires"`
			} `json:"token"`
		} `json:"access"`
	}
	url := strings.TrimRight(cred.AuthURL, "/") + "/tokens"
	if _, err := c.postJSON(ctx, "authenticate", url, payload, &response); err != nil {
		return session{}, err
	}
	if response.Access.Token.ID == "" {
		return session{}, &CatalogError{Kind: KindServer, Op: "authenticate", Err: errors.New("response carried no token")}
	}
	return session{token: response.Access.Token.ID, expires: response.Access.Token.Expires}, nil
}

func (c *HTTPClient) postJSON(ctx context.Context, op, url string, payload, out any) (http.Header, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", op, err)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(op, req, out)
}

func (c *HTTPClient) getJSON(ctx context.Context, op, url, token string, out any) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set(tokenHeader, token)
	_, err = c.do(op, req, out)
	return err
}

func (c *HTTPClient) do(op string, req *retryablehttp.Request, out any) (http.Header, error) {
	req.Header.Set("Accept", "application/json")

	c.mu.Lock()
	client := c.client
	c.mu.Unlock()

	resp, err := client.Do(req)
	if err != nil {
		return nil, transportError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return nil, statusError(op, resp, strings.TrimSpace(string(detail)))
	}

	body, err := readWithLimit(resp.Body, c.maxBytes)
	if err != nil {
		return nil, &CatalogError{Kind: KindServer, Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return nil, &CatalogError{Kind: KindServer, Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return resp.Header, nil
}

func readWithLimit(r io.Reader, maxBytes int64) ([]byte, error) {
	limited := io.LimitReader(r, maxBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if int64(len(body)) > maxBytes {
		return nil, fmt.Errorf("response body exceeds %d bytes", maxBytes)
	}
	return body, nil
}

func filterRegion(endpoints []Endpoint, region string) []Endpoint {
	if region == "" {
		return endpoints
	}
	filtered := make([]Endpoint, 0, len(endpoints))
	for _, endpoint := range endpoints {
		if endpoint.Region != "" && endpoint.Region != region {
			continue
		}
		filtered = append(filtered, endpoint)
	}
	return filtered
}
