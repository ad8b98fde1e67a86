package cleanup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"
)

const (
	repositoryCleanerMissingMessageConstant = "cleanup service requires a repository cleaner"
	cacheRootRequiredMessageConstant        = "cache root must be provided"
	junkGlobErrorTemplateConstant           = "unable to match junk in %s: %w"
	junkRemoveErrorTemplateConstant         = "unable to remove %s: %w"
	cacheRemoveErrorTemplateConstant        = "unable to remove cache root %s: %w"
	gitDirectoryNameConstant                = ".git"
	recursivePatternPrefixConstant          = "**/"
	missingCacheLogMessageConstant          = "cache root does not exist, nothing to clean"
	removingLogMessageConstant              = "removing junk"
	gitCleanLogMessageConstant              = "git clean"
	logFieldPathConstant                    = "path"
	logFieldSizeConstant                    = "size"
	logFieldRepositoryConstant              = "repository"
)

// Patterns matched (recursively, per repository) when hunting for junk.
var junkDirectoryPatterns = []string{
	".tox",
	".mypy_cache",
	"__pycache__",
	".pytest_cache",
	".ruff_cache",
	"*.egg-info",
}

var junkFilePatterns = []string{
	".coverage",
}

// ErrRepositoryCleanerNotConfigured indicates the service was built without a repository cleaner.
var ErrRepositoryCleanerNotConfigured = errors.New(repositoryCleanerMissingMessageConstant)

// ErrCacheRootRequired indicates the cache root option was empty.
var ErrCacheRootRequired = errors.New(cacheRootRequiredMessageConstant)

// RepositoryCleaner exposes the git clean operation the cleanup service needs.
type RepositoryCleaner interface {
	CleanUntracked(executionContext context.Context, repositoryPath string, dryRun bool) (string, error)
}

// JunkItem identifies one removable build artifact and its size.
type JunkItem struct {
	Path        string
	Size        int64
	IsDirectory bool
}

// GitCleanListing records what git clean reported for one repository.
type GitCleanListing struct {
	RepositoryName string
	Listing        string
}

// Result aggregates what a cleanup run removed, or would remove.
type Result struct {
	CacheRootMissing bool
	CacheRootRemoved bool
	Items            []JunkItem
	BytesReclaimed   int64
	GitCleanListings []GitCleanListing
	DryRun           bool
}

// Dependencies enumerates external collaborators required by the cleanup service.
type Dependencies struct {
	Logger  *zap.Logger
	Cleaner RepositoryCleaner
}

// Options configures one cleanup run.
type Options struct {
	CacheRoot string
	Full      bool
	DryRun    bool
}

// Service reclaims disk space held by cached repositories.
type Service struct {
	logger  *zap.Logger
	cleaner RepositoryCleaner
}

// NewService constructs a Service from the provided dependencies.
func NewService(dependencies Dependencies) (*Service, error) {
	if dependencies.Cleaner == nil {
		return nil, ErrRepositoryCleanerNotConfigured
	}
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{logger: logger, cleaner: dependencies.Cleaner}, nil
}

// Clean removes build artifacts from the cache, or previews the removals when
// dry run is requested.
//
// The default mode removes the known junk directories and files from each
// repository and then runs git clean in every repository holding a .git
// directory. Full mode removes the entire cache root instead.
func (service *Service) Clean(executionContext context.Context, options Options) (*Result, error) {
	if len(options.CacheRoot) == 0 {
		return nil, ErrCacheRootRequired
	}

	result := &Result{DryRun: options.DryRun}

	cacheInfo, statError := os.Stat(options.CacheRoot)
	if statError != nil || !cacheInfo.IsDir() {
		service.logger.Info(missingCacheLogMessageConstant, zap.String(logFieldPathConstant, options.CacheRoot))
		result.CacheRootMissing = true
		return result, nil
	}

	if options.Full {
		result.BytesReclaimed = directorySize(options.CacheRoot)
		if !options.DryRun {
			if removeError := os.RemoveAll(options.CacheRoot); removeError != nil {
				return nil, fmt.Errorf(cacheRemoveErrorTemplateConstant, options.CacheRoot, removeError)
			}
		}
		result.CacheRootRemoved = true
		return result, nil
	}

	junkItems, findError := findJunk(options.CacheRoot)
	if findError != nil {
		return nil, findError
	}

	for _, junkItem := range junkItems {
		if !options.DryRun {
			service.logger.Info(
				removingLogMessageConstant,
				zap.String(logFieldPathConstant, junkItem.Path),
				zap.String(logFieldSizeConstant, FormatSize(junkItem.Size)),
			)
			if removeError := os.RemoveAll(junkItem.Path); removeError != nil {
				return nil, fmt.Errorf(junkRemoveErrorTemplateConstant, junkItem.Path, removeError)
			}
		}
		result.Items = append(result.Items, junkItem)
		result.BytesReclaimed += junkItem.Size
	}

	gitCleanListings, gitCleanError := service.gitCleanRepositories(executionContext, options)
	if gitCleanError != nil {
		return nil, gitCleanError
	}
	result.GitCleanListings = gitCleanListings

	return result, nil
}

func (service *Service) gitCleanRepositories(executionContext context.Context, options Options) ([]GitCleanListing, error) {
	rootEntries, readError := os.ReadDir(options.CacheRoot)
	if readError != nil {
		return nil, fmt.Errorf(junkGlobErrorTemplateConstant, options.CacheRoot, readError)
	}

	var listings []GitCleanListing
	for _, rootEntry := range rootEntries {
		if !rootEntry.IsDir() {
			continue
		}
		repositoryPath := filepath.Join(options.CacheRoot, rootEntry.Name())
		if _, statError := os.Stat(filepath.Join(repositoryPath, gitDirectoryNameConstant)); statError != nil {
			continue
		}

		cleanOutput, cleanError := service.cleaner.CleanUntracked(executionContext, repositoryPath, options.DryRun)
		if cleanError != nil {
			return nil, cleanError
		}
		trimmedOutput := strings.TrimSpace(cleanOutput)
		if len(trimmedOutput) == 0 {
			continue
		}
		if !options.DryRun {
			service.logger.Info(
				gitCleanLogMessageConstant,
				zap.String(logFieldRepositoryConstant, rootEntry.Name()),
			)
		}
		listings = append(listings, GitCleanListing{RepositoryName: rootEntry.Name(), Listing: trimmedOutput})
	}
	return listings, nil
}

// findJunk locates removable build artifacts in each repository of the cache.
func findJunk(cacheRoot string) ([]JunkItem, error) {
	rootEntries, readError := os.ReadDir(cacheRoot)
	if readError != nil {
		return nil, fmt.Errorf(junkGlobErrorTemplateConstant, cacheRoot, readError)
	}

	var junkItems []JunkItem
	for _, rootEntry := range rootEntries {
		if !rootEntry.IsDir() {
			continue
		}
		repositoryPath := filepath.Join(cacheRoot, rootEntry.Name())
		repositoryFS := os.DirFS(repositoryPath)

		var directoryMatchPaths []string
		for _, junkPattern := range junkDirectoryPatterns {
			matches, globError := doublestar.Glob(repositoryFS, recursivePatternPrefixConstant+junkPattern)
			if globError != nil {
				return nil, fmt.Errorf(junkGlobErrorTemplateConstant, repositoryPath, globError)
			}
			for _, match := range matches {
				matchPath := filepath.Join(repositoryPath, filepath.FromSlash(match))
				matchInfo, statError := os.Stat(matchPath)
				if statError != nil || !matchInfo.IsDir() {
					continue
				}
				directoryMatchPaths = append(directoryMatchPaths, matchPath)
			}
		}

		// Junk nested inside another junk directory is removed with its
		// parent and must not be listed or sized twice.
		sort.Strings(directoryMatchPaths)
		var collectedDirectories []string
		for _, directoryPath := range directoryMatchPaths {
			if insideCollectedDirectory(collectedDirectories, directoryPath) {
				continue
			}
			collectedDirectories = append(collectedDirectories, directoryPath)
			junkItems = append(junkItems, JunkItem{
				Path:        directoryPath,
				Size:        directorySize(directoryPath),
				IsDirectory: true,
			})
		}

		for _, junkPattern := range junkFilePatterns {
			matches, globError := doublestar.Glob(repositoryFS, recursivePatternPrefixConstant+junkPattern)
			if globError != nil {
				return nil, fmt.Errorf(junkGlobErrorTemplateConstant, repositoryPath, globError)
			}
			for _, match := range matches {
				matchPath := filepath.Join(repositoryPath, filepath.FromSlash(match))
				matchInfo, statError := os.Stat(matchPath)
				if statError != nil || matchInfo.IsDir() {
					continue
				}
				if insideCollectedDirectory(collectedDirectories, matchPath) {
					continue
				}
				junkItems = append(junkItems, JunkItem{Path: matchPath, Size: matchInfo.Size()})
			}
		}
	}
	return junkItems, nil
}

func insideCollectedDirectory(collectedDirectories []string, candidatePath string) bool {
	for _, collectedDirectory := range collectedDirectories {
		if strings.HasPrefix(candidatePath, collectedDirectory+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// directorySize sums the file sizes under a directory, ignoring unreadable entries.
func directorySize(directoryPath string) int64 {
	var totalSize int64
	_ = filepath.WalkDir(directoryPath, func(entryPath string, entry fs.DirEntry, entryError error) error {
		if entryError != nil {
			return nil
		}
		if entry.Type().IsRegular() {
			if entryInfo, infoError := entry.Info(); infoError == nil {
				totalSize += entryInfo.Size()
			}
		}
		return nil
	})
	return totalSize
}
