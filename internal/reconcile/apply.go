package reconcile

import (
	"context"
	"sort"

	"github.com/hashicorp/go-multierror"

	"github.com/nholik/openstack-service-checks/internal/checks"
)

// applyPlan applies every family of an error-free plan.
func (d *Driver) applyPlan(ctx context.Context, p *pass, plan checks.Plan) (bool, error) {
	var result *multierror.Error
	changed := false
	for _, family := range plan.Families() {
		familyChanged, err := d.applyFamily(ctx, p, family, plan.Specs[family])
		changed = changed || familyChanged
		if err != nil {
			result = multierror.Append(result, err)
		}
	}
	return changed, result.ErrorOrNil()
}

// applyFamily makes the registry hold exactly the enabled specs of target for
// family. The ledger only records operations that succeeded, so a failed
// operation is retried by the next pass. Unchanged specs cause no registry calls.
func (d *Driver) applyFamily(ctx context.Context, p *pass, family checks.Family, target []checks.CheckSpec) (bool, error) {
	previous := p.st.Registered[family]

	desired := make(map[string]checks.CheckSpec, len(target))
	for _, spec := range target {
		if spec.Enabled {
			desired[spec.Name] = spec
		}
	}

	ledger := make(map[string]checks.CheckSpec, len(previous))
	for name, spec := range previous {
		ledger[name] = spec
	}

	var result *multierror.Error
	changed := false

	for _, name := range sortedNames(desired) {
		spec := desired[name]
		if registered, ok := previous[name]; ok && registered == spec {
			continue
		}
		added, err := d.registry.Add(ctx, spec)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		ledger[name] = spec
		changed = changed || added
		p.result.Added = append(p.result.Added, name)
	}

	for _, name := range sortedNames(previous) {
		if _, ok := desired[name]; ok {
			continue
		}
		removed, err := d.registry.Remove(ctx, name)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		delete(ledger, name)
		changed = changed || removed
		p.result.Removed = append(p.result.Removed, name)
	}

	if len(ledger) == 0 {
		delete(p.st.Registered, family)
	} else {
		p.st.Registered[family] = ledger
	}

	if changed {
		p.dirty = true
		p.logger.Debug().Str("family", string(family)).Int("checks", len(ledger)).Msg("registry updated")
	}
	return changed, result.ErrorOrNil()
}

func sortedNames(specs map[string]checks.CheckSpec) []string {
	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
