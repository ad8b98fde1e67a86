// Package charms classifies the contents of a charm cache directory.
//
// A cache entry is either a single charm project, a bundle whose charms/
// subdirectory holds several projects, or a legacy (reactive or hooks based)
// charm that the analysis tools skip. The package also resolves each
// project's source entry point from its charmcraft.yaml.
package charms
