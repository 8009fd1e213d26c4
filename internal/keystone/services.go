package keystone

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ServicePlacement is the catalog name of the placement service.
const ServicePlacement = "placement"

// ErrNoVolumeService is returned when the catalog carries no cinder service.
var ErrNoVolumeService = errors.New("missing cinder service")

var volumeServiceName = regexp.MustCompile(`^cinderv(\d+)$`)

// ServiceNames returns the distinct service names behind endpoints, sorted.
func ServiceNames(endpoints []Endpoint) []string {
	seen := make(map[string]bool, len(endpoints))
	names := make([]string, 0, len(endpoints))
	for _, endpoint := range endpoints {
		if endpoint.ServiceName == "" || seen[endpoint.ServiceName] {
			continue
		}
		seen[endpoint.ServiceName] = true
		names = append(names, endpoint.ServiceName)
	}
	sort.Strings(names)
	return names
}

// HasService reports whether any endpoint belongs to the named service.
func HasService(endpoints []Endpoint, name string) bool {
	for _, endpoint := range endpoints {
		if endpoint.ServiceName == name {
			return true
		}
	}
	return false
}

// VolumeAPIVersion derives the block storage API version from the cinder
// service names in the catalog, "cinderv3" giving "3". The highest version wins.
func VolumeAPIVersion(endpoints []Endpoint) (string, error) {
	best := -1
	for _, name := range ServiceNames(endpoints) {
		if !strings.HasPrefix(name, "cinder") {
			continue
		}
		match := volumeServiceName.FindStringSubmatch(name)
		if match == nil {
			return "", fmt.Errorf("cinder API version %s has unknown format", name)
		}
		version, err := strconv.Atoi(match[1])
		if err != nil {
			return "", fmt.Errorf("cinder API version %s has unknown format", name)
		}
		if version > best {
			best = version
		}
	}
	if best < 0 {
		return "", ErrNoVolumeService
	}
	return strconv.Itoa(best), nil
}
