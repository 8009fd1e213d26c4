package keystone

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind classifies catalog failures by their remedy.
type ErrorKind int

const (
	// KindServer covers connection failures and 5xx responses; retried on the next pass.
	KindServer ErrorKind = iota
	// KindClient covers 4xx responses; the operator has to fix credentials or config.
	KindClient
	// KindTLS covers certificate negotiation failures; the remedy is trust configuration.
	KindTLS
)

func (k ErrorKind) String() string {
	switch k {
	case KindServer:
		return "server"
	case KindClient:
		return "client"
	case KindTLS:
		return "tls"
	default:
		return "unknown"
	}
}

// CatalogError is returned for every failed identity-service call.
type CatalogError struct {
	Kind       ErrorKind
	Op         string
	StatusCode int
	Err        error
}

func (e *CatalogError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("keystone %s: %s error (status %d): %v", e.Op, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("keystone %s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *CatalogError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is expected to clear without operator action.
func (e *CatalogError) Retryable() bool {
	return e.Kind == KindServer
}

// WorkloadStatus is the operator-facing message for this failure.
func (e *CatalogError) WorkloadStatus() string {
	switch e.Kind {
	case KindClient:
		return "Keystone client request error was encountered trying to list keystone resources. " +
			"Check the credentials and configuration. View logs for more info."
	case KindTLS:
		return "SSL error was encountered trying to list keystone resources. " +
			"Check trusted_ssl_ca config option. View logs for more info."
	default:
		return "Keystone server error was encountered trying to list keystone resources. " +
			"Check keystone server health. View logs for more info."
	}
}

func statusError(op string, resp *http.Response, body string) *CatalogError {
	kind := KindServer
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		kind = KindClient
	}
	detail := resp.Status
	if body != "" {
		detail = fmt.Sprintf("%s (%s)", resp.Status, body)
	}
	return &CatalogError{
		Kind:       kind,
		Op:         op,
		StatusCode: resp.StatusCode,
		Err:        errors.New(detail),
	}
}

func transportError(op string, err error) *CatalogError {
	kind := KindServer
	if isTLSError(err) {
		kind = KindTLS
	}
	return &CatalogError{Kind: kind, Op: op, Err: err}
}

func isTLSError(err error) bool {
	if err == nil {
		return false
	}
	var verifyErr *tls.CertificateVerificationError
	if errors.As(err, &verifyErr) {
		return true
	}
	var unknownAuthority x509.UnknownAuthorityError
	if errors.As(err, &unknownAuthority) {
		return true
	}
	var hostnameErr x509.HostnameError
	if errors.As(err, &hostnameErr) {
		return true
	}
	var invalidErr x509.CertificateInvalidError
	if errors.As(err, &invalidErr) {
		return true
	}
	var recordErr tls.RecordHeaderError
	if errors.As(err, &recordErr) {
		return true
	}
	message := err.Error()
	return strings.Contains(message, "tls:") || strings.Contains(message, "x509:")
}
