package sse

import (
	"time"

	"github.com/kbukum/wirekit/schema"
	"github.com/kbukum/wirekit/validation"
)

// Config contains stream-emitter configuration. Embed it in the struct
// passed to config.LoadConfig to resolve it from files and environment.
type Config struct {
	// ClientBufferSize is the per-connection frame buffer. Emits block once
	// the buffer fills until the consumer drains it or the connection closes.
	ClientBufferSize int `yaml:"client_buffer_size" mapstructure:"client_buffer_size" validate:"omitempty,min=1"`

	// KeepAliveInterval is how often the HTTP handler writes a comment line
	// to hold the connection open through proxies.
	KeepAliveInterval time.Duration `yaml:"keepalive_interval" mapstructure:"keepalive_interval" validate:"omitempty,min=0"`

	// DefaultChunkSize applies to streamed events whose descriptor does not
	// set its own chunk size.
	DefaultChunkSize int `yaml:"default_chunk_size" mapstructure:"default_chunk_size" validate:"omitempty,min=1"`

	// RetryHint, when non-zero, is advertised once per stream as a
	// reconnect-delay line before any frames.
	RetryHint time.Duration `yaml:"retry_hint" mapstructure:"retry_hint" validate:"omitempty,min=0"`
}

// ApplyDefaults applies default values to emitter configuration.
func (c *Config) ApplyDefaults() {
	if c.ClientBufferSize == 0 {
		c.ClientBufferSize = 256
	}
	if c.KeepAliveInterval == 0 {
		c.KeepAliveInterval = 30 * time.Second
	}
	if c.DefaultChunkSize == 0 {
		c.DefaultChunkSize = schema.DefaultChunkSize
	}
}

// Validate validates emitter configuration.
func (c *Config) Validate() error {
	return validation.Validate(c)
}
