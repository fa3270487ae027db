package dispatch

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the YAML application configuration. It covers the scalar
// application settings; registries (resources, filters, codecs) are
// populated in code.
type Config struct {
	Name          string `yaml:"name"`
	BasePath      string `yaml:"base_path"`
	Secret        string `yaml:"secret"`
	Realm         string `yaml:"realm"`
	Challenge     string `yaml:"challenge"`
	TokenLocation string `yaml:"token_location"` // bearer | cookie | header
	TokenHeader   string `yaml:"token_header"`
}

var tokenLocations = map[string]TokenLocation{
	"":       TokenBearer,
	"bearer": TokenBearer,
	"cookie": TokenCookie,
	"header": TokenHeader,
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Name == "" {
		return Configf("config: name is required")
	}
	loc, ok := tokenLocations[c.TokenLocation]
	if !ok {
		return Configf("config: unknown token_location %q", c.TokenLocation)
	}
	if loc == TokenHeader && c.TokenHeader == "" {
		return Configf("config: token_location header requires token_header")
	}
	return nil
}

// Options translates the configuration into Application options.
func (c *Config) Options() []Option {
	opts := []Option{
		WithName(c.Name),
		WithBasePath(c.BasePath),
		WithSecret([]byte(c.Secret)),
		WithTokenLocation(tokenLocations[c.TokenLocation]),
	}
	if c.Realm != "" {
		opts = append(opts, WithRealm(c.Realm))
	}
	if c.Challenge != "" {
		opts = append(opts, WithChallenge(c.Challenge))
	}
	if c.TokenHeader != "" {
		opts = append(opts, WithTokenHeader(c.TokenHeader))
	}
	return opts
}

// ParseConfig decodes and validates a YAML configuration document.
func ParseConfig(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadConfig reads and parses a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(data)
}
