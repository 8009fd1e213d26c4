package checks

import (
	"fmt"
	"strings"

	"github.com/nholik/openstack-service-checks/internal/config"
)

const allToken = "all"

// ResourceKind is an OpenStack resource type the check_resources plugin understands.
type ResourceKind struct {
	// Name is the plugin argument, e.g. "server".
	Name string
	// Plural names the check and its option keys, e.g. "servers".
	Plural string
	// ByStatus kinds accept "all" and a skip list; the rest only check existence.
	ByStatus bool
}

// ResourceKinds lists every supported kind in a fixed order.
var ResourceKinds = []ResourceKind{
	{Name: "server", Plural: "servers", ByStatus: true},
	{Name: "network", Plural: "networks"},
	{Name: "port", Plural: "ports"},
	{Name: "floating-ip", Plural: "floating-ips"},
	{Name: "security-group", Plural: "security-groups"},
	{Name: "subnet", Plural: "subnets"},
}

// Family returns the family a kind's check belongs to.
func (k ResourceKind) Family() Family {
	return Family("resource-" + k.Plural)
}

// IDsKey is the option holding the kind's id list.
func (k ResourceKind) IDsKey() string {
	return "check-" + k.Plural
}

// SkipKey is the option holding the kind's skip list.
func (k ResourceKind) SkipKey() string {
	return "skip-" + k.Plural
}

func (k ResourceKind) skipIDs(opts config.Options) []string {
	if value := opts.Lookup(k.SkipKey()); value != "" {
		return ParseIDs(value)
	}
	return ParseIDs(opts.Lookup("skip-" + k.Name))
}

// ResourceCheck synthesizes the check for one resource kind. ok is false when the
// kind is not configured, meaning any existing check should be removed.
// Warnings are non-fatal configuration problems.
func (s Synthesizer) ResourceCheck(opts config.Options, kind ResourceKind) (spec CheckSpec, ok bool, warnings []string, err error) {
	ids := ParseIDs(opts.Lookup(kind.IDsKey()))
	if len(ids) == 0 {
		return CheckSpec{}, false, nil, nil
	}

	all := containsAll(ids)
	var skips []string
	if kind.ByStatus {
		skips = kind.skipIDs(opts)
		if all {
			ids = []string{allToken}
		} else if len(skips) > 0 {
			warnings = append(warnings, fmt.Sprintf("%s will be omitted", kind.SkipKey()))
			skips = nil
		}
	} else if all {
		return CheckSpec{}, false, nil, &ConfigError{
			Key:     kind.IDsKey(),
			Message: fmt.Sprintf("%s does not support value `%s`", kind.IDsKey(), allToken),
		}
	}

	return s.resourceSpec(kind, ids, skips), true, warnings, nil
}

func (s Synthesizer) resourceSpec(kind ResourceKind, ids, skips []string) CheckSpec {
	args := []string{s.plugin("check_resources.py"), kind.Name}
	if len(ids) == 1 && ids[0] == allToken {
		args = append(args, "--all")
		for _, id := range skips {
			args = append(args, "--skip-id", id)
		}
	} else {
		for _, id := range ids {
			args = append(args, "--id", id)
		}
	}

	return CheckSpec{
		Name:        kind.Plural,
		Command:     strings.Join(args, " "),
		Description: fmt.Sprintf("Check %s: %s (skips: %s)", kind.Plural, strings.Join(ids, ","), strings.Join(skips, ",")),
		Enabled:     true,
		Family:      kind.Family(),
	}
}

func containsAll(ids []string) bool {
	for _, id := range ids {
		if strings.EqualFold(id, allToken) {
			return true
		}
	}
	return false
}
