// Package gitrepo provides git-level helpers shared by the charm-analysis
// tools: structured remote URL parsing and rewriting, deterministic local
// directory naming, and a RepositoryManager that drives the git CLI for
// clone, pull, and clean operations.
package gitrepo
