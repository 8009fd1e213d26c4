package checks

import (
	"fmt"
	"strings"

	"github.com/nholik/openstack-service-checks/internal/config"
	"github.com/nholik/openstack-service-checks/internal/keystone"
)

const (
	horizonCertPort = 443
	// StatusHorizonRelation is reported when horizon checks are requested without a dashboard relation.
	StatusHorizonRelation = "Relation with horizon required for horizon checks"
	// StatusHorizonAddress is reported when the dashboard relation carries no address.
	StatusHorizonAddress = "Missing openstack-dashboard IP"
)

// NovaServicesCheck watches nova-compute services per host aggregate.
func (s Synthesizer) NovaServicesCheck(opts config.Options) CheckSpec {
	args := []string{
		s.plugin("check_nova_services.py"),
		"--warn", fmt.Sprint(opts.NovaWarn),
		"--crit", fmt.Sprint(opts.NovaCrit),
	}
	if aggregates := strings.TrimSpace(opts.SkipAggregates); aggregates != "" {
		args = append(args, "--skip-aggregates", aggregates)
	}
	if opts.SkipDisabled {
		args = append(args, "--skip-disabled")
	}
	if s.NovarcPath != "" {
		args = append(args, "--env", s.NovarcPath)
	}

	return CheckSpec{
		Name:        "nova_services",
		Command:     strings.Join(args, " "),
		Description: "Check that enabled Nova services are up",
		Enabled:     true,
		Family:      FamilyNovaServices,
	}
}

// NeutronAgentsCheck returns the neutron agents check; ok is false when it is turned off.
func (s Synthesizer) NeutronAgentsCheck(opts config.Options) (CheckSpec, bool) {
	if !opts.CheckNeutronAgents {
		return CheckSpec{}, false
	}
	return CheckSpec{
		Name:        "neutron_agents",
		Command:     s.plugin("check_neutron_agents.sh"),
		Description: "Check that enabled Neutron agents are up",
		Enabled:     true,
		Family:      FamilyNeutronAgents,
	}, true
}

// AllocationsCheck compares placement allocations with running instances.
// ok is false when the check is off or the catalog has no placement service.
func (s Synthesizer) AllocationsCheck(opts config.Options, endpoints []keystone.Endpoint) (CheckSpec, bool) {
	if !opts.CheckAllocations || !keystone.HasService(endpoints, keystone.ServicePlacement) {
		return CheckSpec{}, false
	}
	args := []string{s.plugin("check_allocations.py")}
	if s.NovarcPath != "" {
		args = append(args, "--env", s.NovarcPath)
	}
	return CheckSpec{
		Name:        "allocations",
		Command:     strings.Join(args, " "),
		Description: "Check placement allocations against running instances",
		Enabled:     true,
		Family:      FamilyAllocations,
	}, true
}

// HorizonChecks returns the dashboard login and certificate checks.
// The returned specs are always authoritative for the family; a ConfigError
// accompanies an empty list when horizon checks were requested but cannot be built.
func (s Synthesizer) HorizonChecks(opts config.Options, website *config.Website) ([]CheckSpec, error) {
	if !opts.CheckHorizon {
		return []CheckSpec{}, nil
	}
	if website == nil {
		return []CheckSpec{}, &ConfigError{Message: StatusHorizonRelation}
	}
	host := website.HorizonHost()
	if host == "" {
		return []CheckSpec{}, &ConfigError{Message: StatusHorizonAddress}
	}

	sslOptions, err := SSLCertOptions(opts)
	if err != nil {
		return nil, err
	}

	specs := []CheckSpec{
		{
			Name:        "horizon",
			Command:     fmt.Sprintf("%s --ip %s", s.plugin("check_horizon.py"), host),
			Description: "Check connectivity and login",
			Enabled:     true,
			Family:      FamilyHorizon,
		},
		{
			Name:        "horizon_cert",
			Command:     s.certCommand("https://"+host, horizonCertPort, "/", opts, sslOptions),
			Description: "Certificate expiry check for horizon.",
			Enabled:     true,
			Family:      FamilyHorizon,
		},
	}
	Sort(specs)
	return specs, nil
}
