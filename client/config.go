package client

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

// Config holds the connection and retry settings of a Client.
//
// Example configuration (YAML):
//
//	base_url: https://example-db.example.com
//	auth_token: secret
//	max_retries: 3
//	retry_delay: 1s
//	timeout: 5s
type Config struct {
	// BaseURL is the database root. A single trailing slash is removed.
	BaseURL string `yaml:"base_url" json:"base_url"`

	// AuthToken is appended as ?auth=<token> when non-empty.
	AuthToken string `yaml:"auth_token" json:"-"`

	// MaxRetries is the number of attempts per logical call, including
	// the first one.
	// Default: 3
	MaxRetries int `yaml:"max_retries" json:"max_retries"`

	// RetryDelay is the backoff before the first retry. It doubles for
	// every following retry.
	// Default: 1 second
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay"`

	// Timeout is handed to the transport for every attempt. Zero means no
	// timeout.
	// Default: 5 seconds
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// DefaultConfig returns a Config with the default retry policy and no
// base URL.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		RetryDelay: 1 * time.Second,
		Timeout:    5 * time.Second,
	}
}

// Validate checks if the configuration is usable.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.BaseURL, validation.Required, validation.By(checkBaseURL)),
		validation.Field(&c.MaxRetries, validation.Required, validation.Min(1)),
		validation.Field(&c.RetryDelay, validation.Min(0)),
		validation.Field(&c.Timeout, validation.Min(0)),
	)
}

func checkBaseURL(value interface{}) error {
	s, _ := value.(string)
	u, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("must use http or https scheme")
	}
	if u.Host == "" {
		return errors.New("must include a host")
	}
	return nil
}

// LoadConfig reads a YAML file on top of DefaultConfig. Keys absent from
// the file keep their default value.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	return cfg, nil
}
