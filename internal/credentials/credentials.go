package credentials

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/nholik/openstack-service-checks/internal/config"
)

// ErrMissingCredentials is matched by every error meaning "no usable credential yet".
var ErrMissingCredentials = errors.New("missing credentials")

// Credential sources.
const (
	SourceConfig   = "config"
	SourceRelation = "relation"
)

const defaultDomain = "service_domain"

// MissingError lists the fields a credential source failed to provide.
type MissingError struct {
	Source string
	Fields []string
}

func (e *MissingError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("no %s credentials available", e.Source)
	}
	return strings.Join(e.Fields, ", ")
}

// Is makes errors.Is(err, ErrMissingCredentials) hold.
func (e *MissingError) Is(target error) bool {
	return target == ErrMissingCredentials
}

// Credential is a resolved identity-service login.
type Credential struct {
	Username          string `json:"username"`
	Password          string `json:"password"`
	ProjectName       string `json:"project_name"`
	UserDomainName    string `json:"user_domain_name,omitempty"`
	ProjectDomainName string `json:"project_domain_name,omitempty"`
	Region            string `json:"region,omitempty"`
	AuthURL           string `json:"auth_url"`
	APIVersion        int    `json:"auth_version"`
	VolumeAPIVersion  string `json:"volume_api_version,omitempty"`
	Source            string `json:"source,omitempty"`
}

// IsV3 reports whether the credential targets the v3 identity API.
func (c Credential) IsV3() bool {
	return c.APIVersion == 3
}

// Validate returns a *MissingError naming every absent required field.
func (c Credential) Validate() error {
	missing := make([]string, 0)
	if c.Username == "" {
		missing = append(missing, "username")
	}
	if c.Password == "" {
		missing = append(missing, "password")
	}
	if c.ProjectName == "" {
		missing = append(missing, "credentials_project")
	}
	if c.AuthURL == "" {
		missing = append(missing, "auth_url")
	}
	if c.IsV3() && (c.UserDomainName == "" || c.ProjectDomainName == "") {
		missing = append(missing, "domain")
	}
	if len(missing) > 0 {
		return &MissingError{Source: c.Source, Fields: missing}
	}
	return nil
}

// Fingerprint identifies the login, so sessions are never shared across rotated credentials.
func (c Credential) Fingerprint() string {
	sum := sha256.Sum256([]byte(strings.Join([]string{
		c.AuthURL,
		strconv.Itoa(c.APIVersion),
		c.Username,
		c.Password,
		c.ProjectName,
		c.UserDomainName,
		c.ProjectDomainName,
		c.Region,
	}, "\x00")))
	return hex.EncodeToString(sum[:])
}

// Parse reads the explicit os-credentials option: comma separated key=value pairs,
// values optionally quoted. Domain fields select v3, their absence selects v2.
func Parse(value string) (Credential, error) {
	pairs, err := splitPairs(value)
	if err != nil {
		return Credential{}, err
	}
	if len(pairs) == 0 {
		return Credential{}, &MissingError{Source: SourceConfig}
	}

	cred := Credential{
		Username:         pairs["username"],
		Password:         pairs["password"],
		Region:           pairs["region_name"],
		AuthURL:          pairs["auth_url"],
		VolumeAPIVersion: pairs["volume_api_version"],
		Source:           SourceConfig,
	}
	cred.ProjectName = firstNonEmpty(pairs["credentials_project"], pairs["project_name"], pairs["tenant_name"])

	domain := pairs["domain"]
	cred.UserDomainName = firstNonEmpty(pairs["user_domain_name"], domain)
	cred.ProjectDomainName = firstNonEmpty(pairs["project_domain_name"], domain)

	cred.APIVersion = 2
	if cred.UserDomainName != "" || cred.ProjectDomainName != "" {
		cred.APIVersion = 3
	}

	missing := make([]string, 0)
	if err := cred.Validate(); err != nil {
		var missingErr *MissingError
		if errors.As(err, &missingErr) {
			missing = append(missing, missingErr.Fields...)
		}
	}
	if cred.Region == "" {
		missing = append(missing, "region_name")
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return Credential{}, &MissingError{Source: SourceConfig, Fields: missing}
	}
	return cred, nil
}

// FromRelation flattens identity-credentials relation data into a Credential.
// v3 relations get project and domains, v2 relations a tenant.
func FromRelation(rel config.IdentityCredentials) (Credential, error) {
	cred := Credential{
		Username:    rel.Username,
		Password:    rel.Password,
		ProjectName: rel.Project,
		Region:      rel.Region,
		Source:      SourceRelation,
	}

	apiPath := "v2.0"
	cred.APIVersion = 2
	if strings.TrimSpace(rel.APIVersion) == "3" {
		apiPath = "v3"
		cred.APIVersion = 3
		domain := firstNonEmpty(rel.Domain, defaultDomain)
		cred.UserDomainName = domain
		cred.ProjectDomainName = domain
	}

	if rel.AuthHost != "" && rel.AuthPort != "" && rel.AuthProtocol != "" {
		cred.AuthURL = fmt.Sprintf("%s://%s:%s/%s", rel.AuthProtocol, rel.AuthHost, rel.AuthPort, apiPath)
	}

	if err := cred.Validate(); err != nil {
		return Credential{}, err
	}
	return cred, nil
}

// Resolve picks the explicit credential when usable, otherwise the stored one.
// The returned error wraps ErrMissingCredentials when neither is usable.
func Resolve(explicit string, stored *Credential) (Credential, error) {
	var explicitErr error
	if strings.TrimSpace(explicit) != "" {
		cred, err := Parse(explicit)
		if err == nil {
			return cred, nil
		}
		explicitErr = err
	}

	if stored != nil {
		cred := *stored
		if cred.Source == "" {
			cred.Source = SourceRelation
		}
		if err := cred.Validate(); err == nil {
			return cred, nil
		}
	}

	if explicitErr != nil {
		if errors.Is(explicitErr, ErrMissingCredentials) {
			return Credential{}, explicitErr
		}
		return Credential{}, fmt.Errorf("%w: %v", ErrMissingCredentials, explicitErr)
	}
	return Credential{}, &MissingError{Source: SourceRelation, Fields: []string{"username", "password", "credentials_project", "auth_url", "region_name"}}
}

func splitPairs(value string) (map[string]string, error) {
	pairs := make(map[string]string)
	for _, field := range splitOutsideQuotes(value, ',') {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		key, raw, ok := strings.Cut(field, "=")
		if !ok {
			return nil, fmt.Errorf("malformed os-credentials entry %q: expected key=value", field)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			return nil, fmt.Errorf("malformed os-credentials entry %q: empty key", field)
		}
		pairs[key] = unquote(strings.TrimSpace(raw))
	}
	return pairs, nil
}

// splitOutsideQuotes splits on sep unless sep sits inside a quoted value. A quote
// only opens when it is the first non-space rune after a field's first '=', so
// apostrophes inside unquoted values are literal.
func splitOutsideQuotes(value string, sep rune) []string {
	fields := make([]string, 0)
	var current strings.Builder
	var quote rune
	seenEquals, valueStart := false, false
	for _, r := range value {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
			current.WriteRune(r)
			continue
		case r == sep:
			fields = append(fields, current.String())
			current.Reset()
			seenEquals, valueStart = false, false
			continue
		case r == '=' && !seenEquals:
			seenEquals, valueStart = true, true
		case r == ' ' || r == '\t':
		case (r == '"' || r == '\'') && valueStart:
			quote = r
			valueStart = false
		default:
			valueStart = false
		}
		current.WriteRune(r)
	}
	fields = append(fields, current.String())
	return fields
}

func unquote(value string) string {
	if len(value) >= 2 {
		first, last := value[0], value[len(value)-1]
		if (first == '"' || first == '\'') && first == last {
			return value[1 : len(value)-1]
		}
	}
	return value
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			return value
		}
	}
	return ""
}
