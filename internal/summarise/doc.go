// Package summarise produces aggregate statistics about the cached charm
// repositories: declared metadata, test tooling, and dependencies.
package summarise
