package keystone

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/nholik/openstack-service-checks/internal/credentials"
)

// Endpoint interfaces.
const (
	InterfaceAdmin    = "admin"
	InterfaceInternal = "internal"
	InterfacePublic   = "public"
)

// Interfaces lists every endpoint interface in a fixed order.
var Interfaces = []string{InterfaceAdmin, InterfaceInternal, InterfacePublic}

// Endpoint is the normalized form of a catalog endpoint, whichever shape it arrived in.
//
// Scheme is always "http" or "https" and Interface is always one of Interfaces.
// Port is filled from the scheme default when the URL carries none.
type Endpoint struct {
	Interface   string
	Scheme      string
	Host        string
	Port        int
	Path        string
	ServiceID   string
	ServiceName string
	Region      string
	Enabled     bool
}

// URL reassembles the endpoint address.
func (e Endpoint) URL() string {
	return fmt.Sprintf("%s://%s%s", e.Scheme, net.JoinHostPort(e.Host, strconv.Itoa(e.Port)), e.Path)
}

// Service is a catalog service entry.
type Service struct {
	ID      string
	Name    string
	Type    string
	Enabled bool
}

// Client defines the catalog operations needed by the reconciler.
// This interface enables mocking in tests.
type Client interface {
	// ListEndpoints authenticates with cred and returns the normalized endpoint list.
	ListEndpoints(ctx context.Context, cred credentials.Credential) ([]Endpoint, error)
}
