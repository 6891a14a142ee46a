// Package validation provides input validation utilities for wirekit.
//
// It supports both struct tag validation (using the validator library) and
// programmatic validation with error collection. Struct tag validation is
// used for transport Config structs; the fluent Validator serves schema
// and descriptor checks.
//
// # Struct Tag Validation
//
//	type Config struct {
//	    ClientBufferSize int `validate:"gte=1"`
//	}
//	err := validation.Validate(cfg)
//
// # Programmatic Validation
//
//	v := validation.New()
//	v.Required("name", name).Min("chunk_size", size, 1)
//	err := v.Validate()
package validation
