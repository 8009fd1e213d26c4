package reconcile

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nholik/openstack-service-checks/internal/config"
)

// Event is something that happened to the unit's inputs.
type Event int

const (
	// EventUpdateStatus is the periodic tick; it invalidates nothing.
	EventUpdateStatus Event = iota
	EventInstall
	EventConfigChanged
	EventCredentialsChanged
	EventCredentialsDeparted
	EventCatalogChanged
	EventWebsiteChanged
	EventRegistryDeparted
	EventRefreshEndpoints
	EventUpgrade
)

var eventNames = map[Event]string{
	EventUpdateStatus:        "update-status",
	EventInstall:             "install",
	EventConfigChanged:       "config-changed",
	EventCredentialsChanged:  "credentials-changed",
	EventCredentialsDeparted: "credentials-departed",
	EventCatalogChanged:      "catalog-changed",
	EventWebsiteChanged:      "website-changed",
	EventRegistryDeparted:    "registry-departed",
	EventRefreshEndpoints:    "refresh-endpoint-checks",
	EventUpgrade:             "upgrade",
}

func (e Event) String() string {
	if name, ok := eventNames[e]; ok {
		return name
	}
	return fmt.Sprintf("event(%d)", int(e))
}

// ParseEvent resolves an event by its name.
func ParseEvent(name string) (Event, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for event, eventName := range eventNames {
		if eventName == name {
			return event, nil
		}
	}
	return 0, fmt.Errorf("unknown event %q", name)
}

// EventNames lists every event name, sorted.
func EventNames() []string {
	names := make([]string, 0, len(eventNames))
	for _, name := range eventNames {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Trigger is an event plus, for config changes, the option keys that changed.
type Trigger struct {
	Event Event
	Keys  []string
}

// Fingerprint key prefixes in the persisted state.
const (
	optionsPrefix   = "options/"
	relationsPrefix = "relations/"
)

// Inputs is everything a pass reads besides persisted state.
type Inputs struct {
	Options              config.Options
	Relations            config.Relations
	OptionFingerprints   map[string]string
	RelationFingerprints map[string]string
}

func (in Inputs) fingerprints() map[string]string {
	combined := make(map[string]string, len(in.OptionFingerprints)+len(in.RelationFingerprints))
	for key, value := range in.OptionFingerprints {
		combined[optionsPrefix+key] = value
	}
	for key, value := range in.RelationFingerprints {
		combined[relationsPrefix+key] = value
	}
	return combined
}

// DetectTriggers turns differences between stored and current input fingerprints into triggers.
func DetectTriggers(previous map[string]string, in Inputs) []Trigger {
	changed := config.ChangedKeys(previous, in.fingerprints())
	if len(changed) == 0 {
		return nil
	}

	triggers := make([]Trigger, 0)
	optionKeys := make([]string, 0)
	for _, key := range changed {
		switch {
		case strings.HasPrefix(key, optionsPrefix):
			optionKeys = append(optionKeys, strings.TrimPrefix(key, optionsPrefix))
		case key == relationsPrefix+config.RelationIdentityCredentials:
			if in.Relations.IdentityCredentials != nil {
				triggers = append(triggers, Trigger{Event: EventCredentialsChanged})
			} else {
				triggers = append(triggers, Trigger{Event: EventCredentialsDeparted})
			}
		case key == relationsPrefix+config.RelationIdentityNotifications:
			triggers = append(triggers, Trigger{Event: EventCatalogChanged})
		case key == relationsPrefix+config.RelationWebsite:
			triggers = append(triggers, Trigger{Event: EventWebsiteChanged})
		}
	}
	if len(optionKeys) > 0 {
		triggers = append([]Trigger{{Event: EventConfigChanged, Keys: optionKeys}}, triggers...)
	}
	return triggers
}
