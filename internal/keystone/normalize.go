package keystone

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// RawEndpoint is a catalog endpoint as returned by either identity API version.
// v3 fills Interface/URL/Enabled; the v2 admin API fills the per-interface URL fields.
type RawEndpoint struct {
	ID          string `json:"id"`
	ServiceID   string `json:"service_id"`
	Region      string `json:"region"`
	RegionID    string `json:"region_id"`
	Interface   string `json:"interface"`
	URL         string `json:"url"`
	Enabled     *bool  `json:"enabled"`
	AdminURL    string `json:"adminurl"`
	InternalURL string `json:"internalurl"`
	PublicURL   string `json:"publicurl"`
}

// RawService is a catalog service entry from either identity API version.
type RawService struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	Enabled *bool  `json:"enabled"`
}

// record is the ingestion-time variant of a raw endpoint.
type record interface {
	addresses() []address
	service() string
	region() string
	enabled() bool
}

type address struct {
	iface string
	url   string
}

type legacyRecord struct {
	raw RawEndpoint
}

func (r legacyRecord) addresses() []address {
	candidates := []address{
		{iface: InterfaceAdmin, url: r.raw.AdminURL},
		{iface: InterfaceInternal, url: r.raw.InternalURL},
		{iface: InterfacePublic, url: r.raw.PublicURL},
	}
	result := make([]address, 0, len(candidates))
	for _, candidate := range candidates {
		if strings.TrimSpace(candidate.url) != "" {
			result = append(result, candidate)
		}
	}
	return result
}

func (r legacyRecord) service() string { return r.raw.ServiceID }
func (r legacyRecord) region() string  { return firstNonEmpty(r.raw.Region, r.raw.RegionID) }

// The legacy shape has no enabled flag.
func (r legacyRecord) enabled() bool { return true }

type modernRecord struct {
	raw RawEndpoint
}

func (r modernRecord) addresses() []address {
	return []address{{iface: strings.ToLower(strings.TrimSpace(r.raw.Interface)), url: r.raw.URL}}
}

func (r modernRecord) service() string { return r.raw.ServiceID }
func (r modernRecord) region() string  { return firstNonEmpty(r.raw.Region, r.raw.RegionID) }

func (r modernRecord) enabled() bool {
	if r.raw.Enabled == nil {
		return true
	}
	return *r.raw.Enabled
}

// decodeRecord picks the variant for a raw endpoint; nil means the entry is skipped.
func decodeRecord(raw RawEndpoint) record {
	if raw.Interface != "" && raw.URL != "" {
		return modernRecord{raw: raw}
	}
	if raw.AdminURL != "" || raw.InternalURL != "" || raw.PublicURL != "" {
		return legacyRecord{raw: raw}
	}
	return nil
}

// NormalizeEndpoints converts raw catalog entries into Endpoints.
// Unrecognized entries and non-http(s) URLs produce nothing.
func NormalizeEndpoints(raws []RawEndpoint, services map[string]Service) []Endpoint {
	result := make([]Endpoint, 0, len(raws))
	for _, raw := range raws {
		rec := decodeRecord(raw)
		if rec == nil {
			continue
		}
		for _, addr := range rec.addresses() {
			endpoint, ok := parseAddress(addr)
			if !ok {
				continue
			}
			endpoint.ServiceID = rec.service()
			endpoint.ServiceName = serviceName(rec.service(), services)
			endpoint.Region = rec.region()
			endpoint.Enabled = rec.enabled()
			result = append(result, endpoint)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.ServiceName != b.ServiceName {
			return a.ServiceName < b.ServiceName
		}
		if a.Interface != b.Interface {
			return a.Interface < b.Interface
		}
		return a.URL() < b.URL()
	})
	return result
}

// NormalizeServices indexes services by id.
func NormalizeServices(raws []RawService) map[string]Service {
	result := make(map[string]Service, len(raws))
	for _, raw := range raws {
		if raw.ID == "" {
			continue
		}
		enabled := true
		if raw.Enabled != nil {
			enabled = *raw.Enabled
		}
		result[raw.ID] = Service{ID: raw.ID, Name: raw.Name, Type: raw.Type, Enabled: enabled}
	}
	return result
}

func parseAddress(addr address) (Endpoint, bool) {
	switch addr.iface {
	case InterfaceAdmin, InterfaceInternal, InterfacePublic:
	default:
		return Endpoint{}, false
	}

	parsed, err := url.Parse(strings.TrimSpace(addr.url))
	if err != nil || parsed.Hostname() == "" {
		return Endpoint{}, false
	}

	scheme := strings.ToLower(parsed.Scheme)
	port := 0
	switch scheme {
	case "http":
		port = 80
	case "https":
		port = 443
	default:
		return Endpoint{}, false
	}
	if value := parsed.Port(); value != "" {
		explicit, err := strconv.Atoi(value)
		if err != nil {
			return Endpoint{}, false
		}
		port = explicit
	}

	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}

	return Endpoint{
		Interface: addr.iface,
		Scheme:    scheme,
		Host:      parsed.Hostname(),
		Port:      port,
		Path:      path,
	}, true
}

func serviceName(id string, services map[string]Service) string {
	if service, ok := services[id]; ok {
		if name := firstNonEmpty(service.Name, service.Type); name != "" {
			return name
		}
	}
	return id
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
