// Package util provides generic utility functions shared across wirekit.
//
// It includes slice operations, pointer helpers, and map utilities.
package util
