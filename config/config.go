// Package config loads the harness configuration from environment variables and
// an optional YAML file. The result is an explicit value built once at startup;
// nothing in this package keeps global state.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ruteri/etsi014-conformance/interfaces"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by the harness.
const EnvPrefix = "ETSI_014_TEST_SUITE_"

const DefaultRequestTimeout = 30 * time.Second

const (
	EnvBaseServerURL  = EnvPrefix + "BASE_SERVER_URL"
	EnvBaseClientURL  = EnvPrefix + "BASE_CLIENT_URL"
	EnvTLSRootCrt     = EnvPrefix + "TLS_ROOT_CRT"
	EnvRequestTimeout = EnvPrefix + "REQUEST_TIMEOUT"
)

// roleEnv maps a role to the prefix used by its variables, e.g. MASTER gives
// MASTER_SAE_ID, TLS_MASTER_SAE_CERT and TLS_MASTER_SAE_KEY.
var roleEnv = map[interfaces.Role]string{
	interfaces.RoleMaster:       "MASTER",
	interfaces.RoleSlave:        "SLAVE",
	interfaces.RoleAdditional:   "ADD_SLAVE",
	interfaces.RoleUnauthorized: "UNAUTHORIZED",
}

// IdentityConfig locates the credentials of one SAE.
// Cert may contain the private key as well, in which case Key is left empty.
type IdentityConfig struct {
	SAEID string `yaml:"sae_id"`
	Cert  string `yaml:"cert"`
	Key   string `yaml:"key"`
}

// Config is the complete harness configuration.
type Config struct {
	// BaseServerURL is the KME serving the master SAE, e.g. https://kme-a/api/v1/keys
	BaseServerURL string `yaml:"base_server_url"`

	// BaseClientURL is the KME serving the slave SAEs.
	BaseClientURL string `yaml:"base_client_url"`

	// RootCA is the PEM file holding the trust anchor for every KME certificate.
	RootCA string `yaml:"root_ca"`

	// RequestTimeout bounds every single HTTP exchange.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	Identities map[interfaces.Role]IdentityConfig `yaml:"identities"`
}

// EnvNames returns the variable names holding the SAE id, certificate and key
// path of a role.
func EnvNames(role interfaces.Role) (saeID, cert, key string) {
	p := roleEnv[role]
	return EnvPrefix + p + "_SAE_ID", EnvPrefix + "TLS_" + p + "_SAE_CERT", EnvPrefix + "TLS_" + p + "_SAE_KEY"
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &cfg, nil
}

// Load builds the configuration from an optional file and the environment.
// Environment variables take precedence over file values. The result is validated.
func Load(path string, lookupEnv func(string) (string, bool)) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		var err error
		cfg, err = LoadFile(path)
		if err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(lookupEnv); err != nil {
		return nil, err
	}

	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// FromEnv is Load without a configuration file, reading the process environment.
func FromEnv() (*Config, error) {
	return Load("", os.LookupEnv)
}

func (c *Config) applyEnv(lookupEnv func(string) (string, bool)) error {
	set := func(dst *string, name string) {
		if v, ok := lookupEnv(name); ok && v != "" {
			*dst = v
		}
	}

	set(&c.BaseServerURL, EnvBaseServerURL)
	set(&c.BaseClientURL, EnvBaseClientURL)
	set(&c.RootCA, EnvTLSRootCrt)

	if v, ok := lookupEnv(EnvRequestTimeout); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("could not parse %s: %w", EnvRequestTimeout, err)
		}
		c.RequestTimeout = d
	}

	if c.Identities == nil {
		c.Identities = make(map[interfaces.Role]IdentityConfig, len(roleEnv))
	}
	for _, role := range interfaces.Roles {
		id := c.Identities[role]
		saeIDVar, certVar, keyVar := EnvNames(role)
		set(&id.SAEID, saeIDVar)
		set(&id.Cert, certVar)
		set(&id.Key, keyVar)
		c.Identities[role] = id
	}

	return nil
}

// Validate reports every missing required value at once.
func (c *Config) Validate() error {
	var errs []error
	require := func(v, what string) {
		if strings.TrimSpace(v) == "" {
			errs = append(errs, fmt.Errorf("%s is required", what))
		}
	}

	require(c.BaseServerURL, "base server url ("+EnvBaseServerURL+")")
	require(c.BaseClientURL, "base client url ("+EnvBaseClientURL+")")
	require(c.RootCA, "root certificate ("+EnvTLSRootCrt+")")

	for _, role := range interfaces.Roles {
		id := c.Identities[role]
		saeIDVar, certVar, _ := EnvNames(role)
		require(id.SAEID, fmt.Sprintf("%s SAE id (%s)", role, saeIDVar))
		require(id.Cert, fmt.Sprintf("%s certificate (%s)", role, certVar))
	}

	if c.RequestTimeout < 0 {
		errs = append(errs, errors.New("request timeout must not be negative"))
	}

	return errors.Join(errs...)
}
