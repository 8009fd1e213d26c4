package checks

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nholik/openstack-service-checks/internal/config"
	"github.com/nholik/openstack-service-checks/internal/keystone"
)

// SSLCertOptions renders the extra check_ssl_cert flags for the configured options.
func SSLCertOptions(opts config.Options) (string, error) {
	flags := []string{"--ignore-sct"}
	if opts.SSLCertIgnoreOCSP {
		flags = append(flags, "--ignore-ocsp")
	}

	if validity := opts.SSLCertMaximumValidity; validity != nil {
		switch {
		case *validity == -1:
			flags = append(flags, "--ignore-maximum-validity")
		case *validity >= 0:
			flags = append(flags, "--maximum-validity", strconv.Itoa(*validity))
		default:
			return "", &ConfigError{
				Key:     "check-ssl-cert-maximum-validity",
				Message: fmt.Sprintf("check_ssl_cert_maximum_validity does not support value `%d`", *validity),
			}
		}
	}
	return strings.Join(flags, " "), nil
}

// EndpointChecks returns a cert check for every https endpoint and a connectivity
// check for every endpoint whose interface has URL checks enabled.
// A ConfigError means no spec is produced for any endpoint.
func (s Synthesizer) EndpointChecks(opts config.Options, endpoints []keystone.Endpoint) ([]CheckSpec, error) {
	sslOptions, err := SSLCertOptions(opts)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]CheckSpec)
	add := func(spec CheckSpec) {
		if existing, ok := byName[spec.Name]; ok && (existing.Enabled || !spec.Enabled) {
			return
		}
		byName[spec.Name] = spec
	}

	for _, endpoint := range endpoints {
		service := endpoint.ServiceName
		if service == "" {
			service = endpoint.ServiceID
		}

		if opts.CheckInterfaceURLs(endpoint.Interface) {
			add(CheckSpec{
				Name:        shortname(service, endpoint.Interface),
				Command:     s.httpCommand(endpoint),
				Description: fmt.Sprintf("Endpoint url check for %s %s", service, endpoint.Interface),
				Enabled:     endpoint.Enabled,
				Family:      FamilyEndpoints,
			})
		}

		if endpoint.Scheme == "https" {
			add(CheckSpec{
				Name:        shortname(service, endpoint.Interface, "cert"),
				Command:     s.certCommand(endpoint.Host, endpoint.Port, endpoint.Path, opts, sslOptions),
				Description: fmt.Sprintf("Certificate expiry check for %s %s", service, endpoint.Interface),
				Enabled:     endpoint.Enabled,
				Family:      FamilyEndpoints,
			})
		}
	}

	specs := make([]CheckSpec, 0, len(byName))
	for _, spec := range byName {
		specs = append(specs, spec)
	}
	Sort(specs)
	return specs, nil
}

func (s Synthesizer) httpCommand(endpoint keystone.Endpoint) string {
	command := fmt.Sprintf("%s -H %s -p %d -u %s",
		s.systemPlugin("check_http"), endpoint.Host, endpoint.Port, endpoint.Path)
	if endpoint.Scheme == "https" {
		command += " -S --sni"
	}
	return command
}

func (s Synthesizer) certCommand(host string, port int, path string, opts config.Options, sslOptions string) string {
	return fmt.Sprintf("%s -H %s -p %d -u %s -c %d -w %d %s",
		s.plugin("check_ssl_cert"), host, port, path, opts.TLSCritDays, opts.TLSWarnDays, sslOptions)
}
