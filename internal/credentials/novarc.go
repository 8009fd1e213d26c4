package credentials

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nholik/openstack-service-checks/internal/fsutil"
)

// Novarc renders the shell environment file sourced by the check plugins.
func Novarc(c Credential) []byte {
	var b strings.Builder
	b.WriteString("# Managed by openstack-service-checks; local changes are overwritten.\n")
	writeExport(&b, "OS_USERNAME", c.Username)
	writeExport(&b, "OS_PASSWORD", c.Password)
	writeExport(&b, "OS_AUTH_URL", c.AuthURL)
	if c.Region != "" {
		writeExport(&b, "OS_REGION_NAME", c.Region)
	}
	if c.IsV3() {
		writeExport(&b, "OS_PROJECT_NAME", c.ProjectName)
		writeExport(&b, "OS_USER_DOMAIN_NAME", c.UserDomainName)
		writeExport(&b, "OS_PROJECT_DOMAIN_NAME", c.ProjectDomainName)
	} else {
		writeExport(&b, "OS_TENANT_NAME", c.ProjectName)
	}
	writeExport(&b, "OS_IDENTITY_API_VERSION", strconv.Itoa(c.APIVersion))
	if c.VolumeAPIVersion != "" {
		writeExport(&b, "OS_VOLUME_API_VERSION", c.VolumeAPIVersion)
	}
	return []byte(b.String())
}

// WriteNovarc writes the novarc file and reports whether its content changed.
func WriteNovarc(path string, c Credential) (bool, error) {
	changed, err := fsutil.WriteFileAtomic(path, Novarc(c), 0o600)
	if err != nil {
		return false, fmt.Errorf("write novarc: %w", err)
	}
	return changed, nil
}

func writeExport(b *strings.Builder, key, value string) {
	fmt.Fprintf(b, "export %s='%s'\n", key, strings.ReplaceAll(value, "'", `'\''`))
}
