// Package utils hosts shared infrastructure for the charm-analysis CLI:
// Viper-backed configuration loading, zap logger construction, and helpers for
// passing command-scoped values through contexts.
package utils
