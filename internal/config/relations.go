package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Relation section names, also used as fingerprint keys.
const (
	RelationIdentityCredentials   = "identity-credentials"
	RelationWebsite               = "website"
	RelationIdentityNotifications = "identity-notifications"
)

const dashboardServiceName = "openstack-dashboard"

// IdentityCredentials is the data published by the identity broker for this unit.
type IdentityCredentials struct {
	Username     string `yaml:"credentials_username"`
	Password     string `yaml:"credentials_password"`
	Project      string `yaml:"credentials_project"`
	Region       string `yaml:"region"`
	APIVersion   string `yaml:"api_version"`
	Domain       string `yaml:"domain"`
	AuthHost     string `yaml:"auth_host"`
	AuthPort     string `yaml:"auth_port"`
	AuthProtocol string `yaml:"auth_protocol"`
}

// Complete reports whether every field needed to build a credential is present.
func (c IdentityCredentials) Complete() bool {
	return c.Username != "" && c.Password != "" && c.Project != "" &&
		c.AuthHost != "" && c.AuthPort != "" && c.AuthProtocol != ""
}

// WebsiteHost is a single host advertised on the website relation.
type WebsiteHost struct {
	Hostname       string `yaml:"hostname"`
	PrivateAddress string `yaml:"private-address"`
	Port           string `yaml:"port"`
}

// WebsiteService groups hosts advertised for a service.
type WebsiteService struct {
	ServiceName string        `yaml:"service_name"`
	Hosts       []WebsiteHost `yaml:"hosts"`
}

// Website holds the dashboard relation data.
type Website struct {
	Services []WebsiteService `yaml:"services"`
}

// HorizonHost returns the first dashboard hostname, or "" if none is published.
func (w *Website) HorizonHost() string {
	if w == nil {
		return ""
	}
	for _, service := range w.Services {
		if service.ServiceName != dashboardServiceName {
			continue
		}
		for _, host := range service.Hosts {
			if name := strings.TrimSpace(host.Hostname); name != "" {
				return name
			}
		}
	}
	return ""
}

// IdentityNotifications carries the catalog change markers sent by the identity service.
type IdentityNotifications struct {
	Endpoints map[string]string `yaml:"endpoint_changed"`
}

// Relations is the relation data visible to this unit.
// A nil section means the relation is not established.
type Relations struct {
	IdentityCredentials   *IdentityCredentials   `yaml:"identity-credentials"`
	Website               *Website               `yaml:"website"`
	IdentityNotifications *IdentityNotifications `yaml:"identity-notifications"`
}

// LoadRelations parses the relations file and returns per-section fingerprints.
// A missing file means no relations.
func LoadRelations(path string) (Relations, map[string]string, error) {
	if path == "" {
		return Relations{}, map[string]string{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Relations{}, map[string]string{}, nil
		}
		return Relations{}, nil, fmt.Errorf("read relations file: %w", err)
	}

	var relations Relations
	if err := yaml.Unmarshal(data, &relations); err != nil {
		return Relations{}, nil, fmt.Errorf("parse relations file: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Relations{}, nil, fmt.Errorf("parse relations file: %w", err)
	}
	fingerprints, err := FingerprintValues(raw)
	if err != nil {
		return Relations{}, nil, err
	}
	return relations, fingerprints, nil
}
