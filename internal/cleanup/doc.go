// Package cleanup reclaims disk space held by the repository cache. It
// removes the build artifacts tox and the Python tooling leave behind, runs
// git clean in each cached repository, and can remove the cache wholesale.
package cleanup
