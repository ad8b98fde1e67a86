package charms

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	hiddenEntryPrefixConstant             = "."
	bundleFileNameConstant                = "bundle.yaml"
	bundleCharmsDirectoryNameConstant     = "charms"
	reactiveDirectoryNameConstant         = "reactive"
	hooksDirectoryNameConstant            = "hooks"
	charmcraftFileNameConstant            = "charmcraft.yaml"
	defaultEntrypointConstant             = "src/charm.py"
	cacheReadErrorTemplateConstant        = "unable to read cache root %s: %w"
	bundleReadErrorTemplateConstant       = "unable to read bundle %s: %w"
	charmcraftParseErrorTemplateConstant  = "unable to parse %s: %w"
	unbundlingLogMessageConstant          = "unbundling"
	ignoringLegacyCharmLogMessageConstant = "ignoring legacy charm"
	logFieldPathConstant                  = "path"
	logFieldReasonConstant                = "reason"
)

// SkipReason explains why a cache entry is not an analysis target.
type SkipReason string

// Reasons a cache entry can be skipped during classification.
const (
	SkipReasonReactive SkipReason = "reactive"
	SkipReasonHooks    SkipReason = "hooks"
)

// Project identifies one charm project inside the cache.
type Project struct {
	Name       string
	Path       string
	BundleName string
}

// SkippedEntry records a cache entry that classification rejected.
type SkippedEntry struct {
	Name   string
	Path   string
	Reason SkipReason
}

// Inventory walks a cache root and classifies its entries.
type Inventory struct {
	logger *zap.Logger
}

// NewInventory constructs an Inventory with the supplied logger.
func NewInventory(logger *zap.Logger) *Inventory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Inventory{logger: logger}
}

// Projects returns the charm projects under the cache root alongside the skipped legacy entries.
//
// Bundles are expanded in place: the bundle directory itself is never a
// project, its charms/ children are. Hidden entries and plain files are
// ignored. Classification only ever considers entries of the root, so the
// root itself cannot be misclassified.
func (inventory *Inventory) Projects(cacheRoot string) ([]Project, []SkippedEntry, error) {
	rootEntries, readError := os.ReadDir(cacheRoot)
	if readError != nil {
		return nil, nil, fmt.Errorf(cacheReadErrorTemplateConstant, cacheRoot, readError)
	}

	var projects []Project
	var skippedEntries []SkippedEntry

	for _, rootEntry := range rootEntries {
		if !rootEntry.IsDir() || strings.HasPrefix(rootEntry.Name(), hiddenEntryPrefixConstant) {
			continue
		}

		entryPath := filepath.Join(cacheRoot, rootEntry.Name())
		if pathExists(filepath.Join(entryPath, bundleFileNameConstant)) {
			inventory.logger.Info(unbundlingLogMessageConstant, zap.String(logFieldPathConstant, entryPath))
			bundleProjects, bundleSkipped, bundleError := inventory.bundleProjects(rootEntry.Name(), entryPath)
			if bundleError != nil {
				return nil, nil, bundleError
			}
			projects = append(projects, bundleProjects...)
			skippedEntries = append(skippedEntries, bundleSkipped...)
			continue
		}

		project, skippedEntry := inventory.classifyProject(rootEntry.Name(), entryPath, "")
		if skippedEntry != nil {
			skippedEntries = append(skippedEntries, *skippedEntry)
			continue
		}
		projects = append(projects, project)
	}

	return projects, skippedEntries, nil
}

func (inventory *Inventory) bundleProjects(bundleName string, bundlePath string) ([]Project, []SkippedEntry, error) {
	charmsPath := filepath.Join(bundlePath, bundleCharmsDirectoryNameConstant)
	bundleEntries, readError := os.ReadDir(charmsPath)
	if readError != nil {
		if os.IsNotExist(readError) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf(bundleReadErrorTemplateConstant, bundlePath, readError)
	}

	var projects []Project
	var skippedEntries []SkippedEntry
	for _, bundleEntry := range bundleEntries {
		if !bundleEntry.IsDir() || strings.HasPrefix(bundleEntry.Name(), hiddenEntryPrefixConstant) {
			continue
		}
		project, skippedEntry := inventory.classifyProject(bundleEntry.Name(), filepath.Join(charmsPath, bundleEntry.Name()), bundleName)
		if skippedEntry != nil {
			skippedEntries = append(skippedEntries, *skippedEntry)
			continue
		}
		projects = append(projects, project)
	}
	return projects, skippedEntries, nil
}

func (inventory *Inventory) classifyProject(projectName string, projectPath string, bundleName string) (Project, *SkippedEntry) {
	if pathExists(filepath.Join(projectPath, reactiveDirectoryNameConstant)) {
		inventory.logSkip(projectPath, SkipReasonReactive)
		return Project{}, &SkippedEntry{Name: projectName, Path: projectPath, Reason: SkipReasonReactive}
	}
	if pathExists(filepath.Join(projectPath, hooksDirectoryNameConstant)) {
		inventory.logSkip(projectPath, SkipReasonHooks)
		return Project{}, &SkippedEntry{Name: projectName, Path: projectPath, Reason: SkipReasonHooks}
	}
	return Project{Name: projectName, Path: projectPath, BundleName: bundleName}, nil
}

func (inventory *Inventory) logSkip(projectPath string, reason SkipReason) {
	inventory.logger.Info(
		ignoringLegacyCharmLogMessageConstant,
		zap.String(logFieldPathConstant, projectPath),
		zap.String(logFieldReasonConstant, string(reason)),
	)
}

// Entrypoint resolves a project's source entry point relative to the project path.
//
// charmcraft.yaml can override the conventional src/charm.py location. The
// second return value reports whether the resolved entry point exists on disk.
func Entrypoint(projectPath string) (string, bool, error) {
	entrypointPath := defaultEntrypointConstant

	charmcraftPath := filepath.Join(projectPath, charmcraftFileNameConstant)
	if pathExists(charmcraftPath) {
		charmcraftContent, readError := os.ReadFile(charmcraftPath)
		if readError != nil {
			return "", false, fmt.Errorf(charmcraftParseErrorTemplateConstant, charmcraftPath, readError)
		}

		var charmcraftDocument struct {
			Parts map[string]struct {
				CharmEntrypoint string `yaml:"charm-entrypoint"`
			} `yaml:"parts"`
		}
		if unmarshalError := yaml.Unmarshal(charmcraftContent, &charmcraftDocument); unmarshalError != nil {
			return "", false, fmt.Errorf(charmcraftParseErrorTemplateConstant, charmcraftPath, unmarshalError)
		}
		if charmPart, charmPartFound := charmcraftDocument.Parts["charm"]; charmPartFound && len(charmPart.CharmEntrypoint) > 0 {
			entrypointPath = charmPart.CharmEntrypoint
		}
	}

	return entrypointPath, pathExists(filepath.Join(projectPath, entrypointPath)), nil
}

func pathExists(path string) bool {
	_, statError := os.Stat(path)
	return statError == nil
}
