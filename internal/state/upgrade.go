package state

import (
	"github.com/nholik/openstack-service-checks/internal/credentials"
)

// Upgrade brings a loaded state to SchemaVersion. It reports whether anything changed.
//
// Version 1 kept relation credentials under keystone-relation-creds with the
// relation's own field names; they move into keystonecreds unless that is
// already populated. The migrated record has no auth URL, so the stored-creds
// flag is cleared to let the next relation update overwrite it.
func Upgrade(st State) (State, bool) {
	changed := false
	if st.Registered == nil {
		st.Registered = Registered{}
	}
	if st.Fingerprints == nil {
		st.Fingerprints = map[string]string{}
	}

	if legacy := st.LegacyCredentials; legacy != nil {
		if st.Credentials == nil {
			cred := credentials.Credential{
				Username:          legacy.Username,
				Password:          legacy.Password,
				ProjectName:       legacy.Project,
				UserDomainName:    legacy.UserDomain,
				ProjectDomainName: legacy.ProjectDomain,
				APIVersion:        2,
				Source:            credentials.SourceRelation,
			}
			if cred.UserDomainName != "" || cred.ProjectDomainName != "" {
				cred.APIVersion = 3
			}
			st.Credentials = &cred
			st.Flags.StoredCreds = false
		}
		st.LegacyCredentials = nil
		st.Flags.Configured = false
		changed = true
	}

	if st.Version != SchemaVersion {
		st.Version = SchemaVersion
		changed = true
	}
	return st, changed
}
