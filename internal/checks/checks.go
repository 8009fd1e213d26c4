// Package checks computes the NRPE checks that should exist for a given
// configuration and endpoint catalog. Nothing here performs I/O.
package checks

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// DefaultSystemPluginsDir holds the stock monitoring-plugins binaries such as check_http.
const DefaultSystemPluginsDir = "/usr/lib/nagios/plugins"

// Family groups checks that are synthesized, diffed and invalidated together.
type Family string

const (
	FamilyEndpoints     Family = "endpoints"
	FamilyNovaServices  Family = "nova-services"
	FamilyNeutronAgents Family = "neutron-agents"
	FamilyHorizon       Family = "horizon"
	FamilyAllocations   Family = "allocations"
)

// CheckSpec describes one NRPE check. Name is stable across passes for the same subject.
type CheckSpec struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Enabled     bool   `json:"enabled"`
	Family      Family `json:"family"`
}

// ConfigError reports an option value that cannot be turned into a check.
type ConfigError struct {
	Key     string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}

// WorkloadStatus is the operator-facing summary of the error.
func (e *ConfigError) WorkloadStatus() string {
	if e.Key == "" {
		return e.Message
	}
	return fmt.Sprintf("Invalid config value for %s, check logs", e.Key)
}

// Synthesizer turns options and endpoints into CheckSpecs.
type Synthesizer struct {
	PluginsDir       string
	SystemPluginsDir string
	NovarcPath       string
}

// New returns a Synthesizer rooted at pluginsDir.
func New(pluginsDir, novarcPath string) Synthesizer {
	return Synthesizer{
		PluginsDir:       strings.TrimRight(pluginsDir, "/"),
		SystemPluginsDir: DefaultSystemPluginsDir,
		NovarcPath:       novarcPath,
	}
}

func (s Synthesizer) plugin(name string) string {
	return s.PluginsDir + "/" + name
}

func (s Synthesizer) systemPlugin(name string) string {
	dir := s.SystemPluginsDir
	if dir == "" {
		dir = DefaultSystemPluginsDir
	}
	return strings.TrimRight(dir, "/") + "/" + name
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// shortname makes a check name safe for NRPE command keys and file names.
func shortname(parts ...string) string {
	cleaned := make([]string, 0, len(parts))
	for _, part := range parts {
		part = unsafeNameChars.ReplaceAllString(strings.TrimSpace(part), "_")
		if part != "" {
			cleaned = append(cleaned, part)
		}
	}
	return strings.Join(cleaned, "_")
}

// Sort orders specs by name.
func Sort(specs []CheckSpec) {
	sort.SliceStable(specs, func(i, j int) bool {
		return specs[i].Name < specs[j].Name
	})
}

// ParseIDs splits a comma separated id list, dropping empty entries.
func ParseIDs(value string) []string {
	ids := make([]string, 0)
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			ids = append(ids, part)
		}
	}
	return ids
}
