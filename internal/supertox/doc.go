// Package supertox batch-runs tox environments across the cached charm
// repositories, with exclusion lists, dependency override patching, and an
// aggregate pass/fail report.
package supertox
