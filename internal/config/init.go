package config

import (
	"github.com/goccy/go-yaml"

	"github.com/dirbridge/dirbridge/pkg/record"
)

// Example returns a fully populated configuration to start from. The
// pattern placeholders reference common inetOrgPerson attributes.
func Example() *Config {
	return &Config{
		General: General{
			StoreDriver:    DefaultStoreDriver,
			StoreDSN:       DefaultStoreDSN,
			CronExpression: DefaultCronExpression,
			RetentionDays:  DefaultRetentionDays,
			Workers:        DefaultWorkers,
			DeleteBehavior: string(record.DeleteSoft),
			MetricsAddr:    DefaultMetricsAddr,
			// Present but empty so the rendered file shows the key.
			LicenseSKUs: []string{},
		},
		Source: Source{
			URL:              "ldaps://ldap.example.com:636",
			BindDN:           "cn=dirbridge,ou=services,dc=example,dc=com",
			BindPassword:     "changeme",
			SearchBase:       "ou=people,dc=example,dc=com",
			SearchFilter:     DefaultSearchFilter,
			BinaryAttributes: []string{},
		},
		Target: Target{
			TenantID:     "00000000-0000-0000-0000-000000000000",
			ClientID:     "00000000-0000-0000-0000-000000000000",
			ClientSecret: "changeme",
		},
		Patterns: Patterns{
			SourceImmutableID: "{uid}",
			GivenName:         "{givenName}",
			Surname:           "{sn}",
			DisplayName:       "{givenName} {sn}",
			MailNickname:      "{uid}",
			PrincipalName:     "{uid}@example.com",
		},
	}
}

// DefaultYAML renders the example configuration as a YAML document for
// the config init command.
func DefaultYAML() ([]byte, error) {
	return yaml.Marshal(Example())
}
