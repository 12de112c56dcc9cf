package dashboard

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

const (
	// EnvPort is the environment variable name for the listening port.
	EnvPort = "PORT"
	// EnvCredentials holds the OAuth client credentials JSON blob.
	EnvCredentials = "GOOGLE_CREDENTIALS"
	// EnvToken holds a session token JSON blob.
	EnvToken = "GOOGLE_TOKEN"
	// EnvTokenStore selects the token store backend ("file" or "keyring").
	EnvTokenStore = "TOKEN_STORE"
)

const (
	tokenStoreFile    = "file"
	tokenStoreKeyring = "keyring"
)

// Config holds the application configuration settings.
type Config struct {
	Host               string `json:"host"`
	Port               int    `json:"port"`
	CredentialsFile    string `json:"credentials-file"`
	TokenFile          string `json:"token-file"`
	TokenStore         string `json:"token-store"`
	KeyringDir         string `json:"keyring-dir"`
	DefaultFilter      string `json:"default-filter"`
	MaxResults         int64  `json:"max-results"`
	RefreshIntervalSec int    `json:"refresh-interval-sec"`
	TimeZone           string `json:"timezone"`

	// Secrets taken only from the environment.
	CredentialsJSON string `json:"-"`
	TokenJSON       string `json:"-"`
}

// DefaultConfig returns the default configuration values.
func DefaultConfig() *Config {
	return &Config{Host: "0.0.0.0",
		Port:               3000,
		CredentialsFile:    "credentials.json",
		TokenFile:          "token.json",
		TokenStore:         tokenStoreFile,
		KeyringDir:         "~/.config/load-dashboard/keyring",
		DefaultFilter:      "Carga dodedero",
		MaxResults:         50,
		RefreshIntervalSec: 300,
		TimeZone:           "America/Argentina/Buenos_Aires",
	}
}

// ParseConfig reads the given JSON configuration string.  An empty string
// yields the defaults.
func ParseConfig(configStr string) (*Config, error) {
	config := DefaultConfig()

	if configStr != "" {
		decoder := json.NewDecoder(strings.NewReader(configStr))
		err := decoder.Decode(config)
		if err != nil {
			return nil, errors.WithStack(err)
		}
	}
	config, err := overwriteConfigFromEnv(config)
	if err != nil {
		return nil, err
	}
	return config, config.validate()
}

// overwriteConfigFromEnv overrides configuration values with environment
// variables when they are set.
func overwriteConfigFromEnv(config *Config) (*Config, error) {
	if value, found := os.LookupEnv(EnvPort); found && value != "" {
		port, err := strconv.Atoi(value)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid %s", EnvPort)
		}
		config.Port = port
	}
	if value, found := os.LookupEnv(EnvTokenStore); found && value != "" {
		config.TokenStore = value
	}
	if value, found := os.LookupEnv(EnvCredentials); found {
		config.CredentialsJSON = value
	}
	if value, found := os.LookupEnv(EnvToken); found {
		config.TokenJSON = value
	}
	return config, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return errors.Newf("invalid port %d", c.Port)
	}
	if c.TokenStore != tokenStoreFile && c.TokenStore != tokenStoreKeyring {
		return errors.Newf("unknown token store %q", c.TokenStore)
	}
	if c.MaxResults <= 0 {
		return errors.Newf("max-results must be positive, got %d", c.MaxResults)
	}
	if c.RefreshIntervalSec <= 0 {
		return errors.Newf("refresh-interval-sec must be positive, got %d", c.RefreshIntervalSec)
	}
	if sanitizeFilter(c.DefaultFilter) == "" {
		return errors.New("default-filter must not be empty")
	}
	return nil
}
