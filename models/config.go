package models

import "time"

const (
	DefaultAuthorityURL = "https://integrity.boostsecurity.io"
	DefaultTimeout      = 30 * time.Second
	DefaultMaxRetries   = 3
	DefaultAlgorithm    = "sha256"
	DefaultManager      = "auto"
)

type ConfigAuthority struct {
	URL        string        `json:"url" mapstructure:"url"`
	File       string        `json:"file,omitempty" mapstructure:"file"`
	Token      string        `json:"-" mapstructure:"token"`
	Timeout    time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxRetries int           `json:"max_retries" mapstructure:"max_retries"`
}

// ConfigInclude lists extra rego files loaded by the json formatter.
type ConfigInclude struct {
	Path []string `json:"path,omitempty" mapstructure:"path"`
}

type Config struct {
	Authority ConfigAuthority `json:"authority" mapstructure:"authority"`
	Manager   string          `json:"manager" mapstructure:"manager"`
	Workers   int             `json:"workers" mapstructure:"workers"`
	Algorithm string          `json:"algorithm" mapstructure:"algorithm"`
	Include   []ConfigInclude `json:"include" mapstructure:"include"`
}

func DefaultConfig() *Config {
	return &Config{
		Authority: ConfigAuthority{
			URL:        DefaultAuthorityURL,
			Timeout:    DefaultTimeout,
			MaxRetries: DefaultMaxRetries,
		},
		Manager:   DefaultManager,
		Algorithm: DefaultAlgorithm,
	}
}
