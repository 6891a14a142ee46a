// Package config provides configuration loading for wirekit transports.
//
// It uses Viper to load configuration from files and environment variables,
// supporting YAML config files, .env files, and environment-variable
// overrides with automatic key binding.
//
// # Usage
//
//	var cfg MyConfig
//	err := config.LoadConfig("my-service", &cfg)
//
// Environment variables override file values; nested keys bind from
// underscore-separated names (e.g., SSE_KEEPALIVE_INTERVAL -> sse.keepalive_interval).
package config
