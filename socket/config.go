package socket

import (
	"time"

	"github.com/kbukum/wirekit/validation"
)

// Config contains socket transport configuration. Embed it in the struct
// passed to config.LoadConfig to resolve it from files and environment.
type Config struct {
	// RequestTimeout bounds how long a request waits for its response
	// before rejecting. Per-call overrides take precedence.
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout" validate:"omitempty,min=0"`
}

// ApplyDefaults applies default values to socket configuration.
func (c *Config) ApplyDefaults() {
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
}

// Validate validates socket configuration.
func (c *Config) Validate() error {
	return validation.Validate(c)
}
