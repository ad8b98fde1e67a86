// Package sync keeps a local cache of charm repositories up to date.
//
// Given a charm list, the service clones repositories that are missing from
// the cache and pulls the ones that already exist, fanning the git operations
// out across a bounded number of concurrent workers. Individual failures are
// recorded per repository and never abort the batch.
package sync
