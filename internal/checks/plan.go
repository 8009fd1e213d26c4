package checks

import (
	"sort"

	"github.com/nholik/openstack-service-checks/internal/config"
)

// Plan is the synthesized target for a set of families.
//
// A family present in Specs is authoritative: its registrations should match
// the list exactly, an empty list meaning "remove everything". A family absent
// from Specs failed synthesis and its registrations are left as they are.
type Plan struct {
	Specs    map[Family][]CheckSpec
	Errors   []error
	Warnings []string
}

func newPlan() Plan {
	return Plan{Specs: make(map[Family][]CheckSpec)}
}

// Families returns the authoritative families in a stable order.
func (p Plan) Families() []Family {
	families := make([]Family, 0, len(p.Specs))
	for family := range p.Specs {
		families = append(families, family)
	}
	sort.Slice(families, func(i, j int) bool { return families[i] < families[j] })
	return families
}

// BaseChecks synthesizes the families that need credentials but not the endpoint catalog.
func (s Synthesizer) BaseChecks(opts config.Options) Plan {
	plan := newPlan()

	for _, kind := range ResourceKinds {
		spec, ok, warnings, err := s.ResourceCheck(opts, kind)
		plan.Warnings = append(plan.Warnings, warnings...)
		if err != nil {
			plan.Errors = append(plan.Errors, err)
			continue
		}
		if ok {
			plan.Specs[kind.Family()] = []CheckSpec{spec}
		} else {
			plan.Specs[kind.Family()] = []CheckSpec{}
		}
	}

	plan.Specs[FamilyNovaServices] = []CheckSpec{s.NovaServicesCheck(opts)}

	if spec, ok := s.NeutronAgentsCheck(opts); ok {
		plan.Specs[FamilyNeutronAgents] = []CheckSpec{spec}
	} else {
		plan.Specs[FamilyNeutronAgents] = []CheckSpec{}
	}

	return plan
}
