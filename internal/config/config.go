// Package config loads and validates the dirbridge configuration from a
// YAML file, .env files and DIRBRIDGE_* environment variables.
package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/dirbridge/dirbridge/pkg/errors"
	"github.com/dirbridge/dirbridge/pkg/record"
)

// Default values applied before reading any file.
const (
	DefaultStoreDriver    = "sqlite"
	DefaultStoreDSN       = "dirbridge.db"
	DefaultCronExpression = "@every 15m"
	DefaultRetentionDays  = 30
	DefaultWorkers        = 4
	DefaultSearchFilter   = "(objectClass=person)"
	DefaultMetricsAddr    = ":9090"
)

// Config is the full dirbridge configuration tree.
type Config struct {
	General  General  `mapstructure:"general" yaml:"general"`
	Source   Source   `mapstructure:"source" yaml:"source"`
	Target   Target   `mapstructure:"target" yaml:"target"`
	Patterns Patterns `mapstructure:"patterns" yaml:"patterns"`
}

// General holds engine-wide settings.
type General struct {
	StoreDriver    string   `mapstructure:"store_driver" yaml:"store_driver"`
	StoreDSN       string   `mapstructure:"store_dsn" yaml:"store_dsn"`
	CronExpression string   `mapstructure:"cron_expression" yaml:"cron_expression"`
	RetentionDays  int      `mapstructure:"retention_days" yaml:"retention_days"`
	Workers        int      `mapstructure:"workers" yaml:"workers"`
	DeleteBehavior string   `mapstructure:"delete_behavior" yaml:"delete_behavior"`
	UsageLocation  string   `mapstructure:"usage_location" yaml:"usage_location"`
	LicenseSKUs    []string `mapstructure:"license_skus" yaml:"license_skus"`
	FoldASCII      bool     `mapstructure:"fold_ascii" yaml:"fold_ascii"`
	MetricsAddr    string   `mapstructure:"metrics_addr" yaml:"metrics_addr"`
}

// Source holds the LDAP connection and search settings.
type Source struct {
	URL                string   `mapstructure:"url" yaml:"url"`
	BindDN             string   `mapstructure:"bind_dn" yaml:"bind_dn"`
	BindPassword       string   `mapstructure:"bind_password" yaml:"bind_password"`
	InsecureSkipVerify bool     `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify"`
	SearchBase         string   `mapstructure:"search_base" yaml:"search_base"`
	SearchFilter       string   `mapstructure:"search_filter" yaml:"search_filter"`
	BinaryAttributes   []string `mapstructure:"binary_attributes" yaml:"binary_attributes"`
}

// Target holds the cloud directory API credentials.
type Target struct {
	TenantID     string `mapstructure:"tenant_id" yaml:"tenant_id"`
	ClientID     string `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string `mapstructure:"client_secret" yaml:"client_secret"`
	BaseURL      string `mapstructure:"base_url" yaml:"base_url"`
}

// Patterns maps source attributes onto the record fields.
type Patterns struct {
	SourceImmutableID string `mapstructure:"source_immutable_id" yaml:"source_immutable_id"`
	GivenName         string `mapstructure:"given_name" yaml:"given_name"`
	Surname           string `mapstructure:"surname" yaml:"surname"`
	DisplayName       string `mapstructure:"display_name" yaml:"display_name"`
	MailNickname      string `mapstructure:"mail_nickname" yaml:"mail_nickname"`
	PrincipalName     string `mapstructure:"principal_name" yaml:"principal_name"`
}

// Load reads the configuration. Path selects an explicit config file;
// when empty, dirbridge.yaml is searched in the working directory and
// $HOME. A .env file beside the process is loaded first, and every key
// can be overridden through DIRBRIDGE_* environment variables.
func Load(path string) (*Config, error) {
	// Best effort; most deployments configure through the file or env.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("dirbridge")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
	}

	v.SetEnvPrefix("DIRBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindKeys(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// A missing file is only acceptable when no explicit path was
		// given; env-only configuration is supported.
		if path != "" || !errors.As(err, &notFound) {
			return nil, errors.NewConfigError("file", "cannot read config", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.NewConfigError("file", "cannot parse config", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.store_driver", DefaultStoreDriver)
	v.SetDefault("general.store_dsn", DefaultStoreDSN)
	v.SetDefault("general.cron_expression", DefaultCronExpression)
	v.SetDefault("general.retention_days", DefaultRetentionDays)
	v.SetDefault("general.workers", DefaultWorkers)
	v.SetDefault("general.delete_behavior", string(record.DeleteSoft))
	v.SetDefault("general.metrics_addr", DefaultMetricsAddr)
	v.SetDefault("source.search_filter", DefaultSearchFilter)
}

// bindKeys explicitly binds every known key so environment-only values
// survive Unmarshal; AutomaticEnv alone does not reach keys absent from
// both the file and the defaults.
func bindKeys(v *viper.Viper) {
	keys := []string{
		"general.store_driver", "general.store_dsn", "general.cron_expression",
		"general.retention_days", "general.workers", "general.delete_behavior",
		"general.usage_location", "general.license_skus", "general.fold_ascii",
		"general.metrics_addr",
		"source.url", "source.bind_dn", "source.bind_password",
		"source.insecure_skip_verify", "source.search_base",
		"source.search_filter", "source.binary_attributes",
		"target.tenant_id", "target.client_id", "target.client_secret",
		"target.base_url",
		"patterns.source_immutable_id", "patterns.given_name",
		"patterns.surname", "patterns.display_name",
		"patterns.mail_nickname", "patterns.principal_name",
	}
	for _, key := range keys {
		// Only fails on an empty key.
		_ = v.BindEnv(key)
	}
}

// Validate checks the settings an engine cannot start without.
func (c *Config) Validate() error {
	if c.General.Workers < 1 {
		return &errors.ValidationError{Field: "general.workers", Value: c.General.Workers, Message: "must be at least 1"}
	}
	if c.General.RetentionDays < 0 {
		return &errors.ValidationError{Field: "general.retention_days", Value: c.General.RetentionDays, Message: "cannot be negative"}
	}
	if _, err := record.ParseDeleteBehavior(c.General.DeleteBehavior); err != nil {
		return &errors.ValidationError{Field: "general.delete_behavior", Value: c.General.DeleteBehavior, Message: "must be soft or hard"}
	}

	required := map[string]string{
		"source.url":                   c.Source.URL,
		"source.search_base":           c.Source.SearchBase,
		"patterns.source_immutable_id": c.Patterns.SourceImmutableID,
		"patterns.given_name":          c.Patterns.GivenName,
		"patterns.surname":             c.Patterns.Surname,
		"patterns.display_name":        c.Patterns.DisplayName,
		"patterns.mail_nickname":       c.Patterns.MailNickname,
		"patterns.principal_name":      c.Patterns.PrincipalName,
	}
	for field, value := range required {
		if value == "" {
			return &errors.ValidationError{Field: field, Message: "cannot be empty"}
		}
	}
	return nil
}

// DeleteBehavior returns the parsed delete behavior. Validate has
// already rejected unparseable values.
func (c *Config) DeleteBehavior() record.DeleteBehavior {
	behavior, _ := record.ParseDeleteBehavior(c.General.DeleteBehavior)
	return behavior
}
