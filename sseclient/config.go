package sseclient

import (
	"time"

	"github.com/kbukum/wirekit/validation"
)

// Config contains stream-consumer configuration. Embed it in the struct
// passed to config.LoadConfig to resolve it from files and environment.
type Config struct {
	// RetryDelay is the initial reconnection delay. Servers can change the
	// effective delay mid-stream with retry lines.
	RetryDelay time.Duration `yaml:"retry_delay" mapstructure:"retry_delay" validate:"omitempty,min=0"`

	// ReadBufferSize is the chunk size of the byte-stream read loop.
	ReadBufferSize int `yaml:"read_buffer_size" mapstructure:"read_buffer_size" validate:"omitempty,min=1"`
}

// ApplyDefaults applies default values to consumer configuration.
func (c *Config) ApplyDefaults() {
	if c.RetryDelay == 0 {
		c.RetryDelay = time.Second
	}
	if c.ReadBufferSize == 0 {
		c.ReadBufferSize = 4096
	}
}

// Validate validates consumer configuration.
func (c *Config) Validate() error {
	return validation.Validate(c)
}
