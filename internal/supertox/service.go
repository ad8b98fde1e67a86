package supertox

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/canonical/charm-analysis/internal/charms"
	"github.com/canonical/charm-analysis/internal/execshell"
)

const (
	toxExecutorMissingMessageConstant = "batch test service requires a tox executor"
	inventoryMissingMessageConstant   = "batch test service requires a charm inventory"
	cacheRootRequiredMessageConstant  = "cache root must be provided"
	invalidPatternTemplateConstant    = "invalid repository pattern %q: %w"
	caseInsensitivePatternTemplate    = "(?i)%s"
	toxEnvironmentFlagConstant        = "-e"
	toxDirectoryNameConstant          = ".tox"
	toxConfigurationFileNameConstant  = "tox.ini"
	runningLogMessageConstant         = "running tox"
	patternSkipLogMessageConstant     = "skipping repository, pattern mismatch"
	noToxConfigurationLogMessage      = "skipping repository, no tox configuration"
	excludedLogMessageConstant        = "skipping excluded repository"
	runFailedLogMessageConstant       = "tox run did not pass"
	runErroredLogMessageConstant      = "tox run could not complete"
	logFieldProjectConstant           = "project"
	logFieldCategoryConstant          = "category"
	logFieldEnvironmentConstant       = "environment"
	logFieldExitCodeConstant          = "exit_code"
	freshRemovalErrorTemplateConstant = "unable to remove %s: %w"
)

// ErrToxExecutorNotConfigured indicates the service was built without a tox executor.
var ErrToxExecutorNotConfigured = errors.New(toxExecutorMissingMessageConstant)

// ErrInventoryNotConfigured indicates the service was built without an inventory.
var ErrInventoryNotConfigured = errors.New(inventoryMissingMessageConstant)

// ErrCacheRootRequired indicates the cache root option was empty.
var ErrCacheRootRequired = errors.New(cacheRootRequiredMessageConstant)

// OutcomeState tracks where a repository ended up in the run lifecycle.
type OutcomeState string

// States a repository run can finish in.
const (
	StateSkipped   OutcomeState = "skipped"
	StateSucceeded OutcomeState = "succeeded"
	StateFailed    OutcomeState = "failed"
	StateErrored   OutcomeState = "errored"
)

// Outcome records the result of running tox in a single charm project.
type Outcome struct {
	ProjectName    string
	ProjectPath    string
	BundleName     string
	State          OutcomeState
	SkipCategory   string
	ExitCode       int
	StandardOutput string
	StandardError  string
	Failure        error
}

// ToxExecutor exposes the subset of shell execution the batch runner needs.
type ToxExecutor interface {
	ExecuteTox(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// Dependencies enumerates external collaborators required by the batch test service.
type Dependencies struct {
	Logger    *zap.Logger
	Executor  ToxExecutor
	Inventory *charms.Inventory
	Patcher   *DependencyPatcher
}

// Options configures one batch test run.
type Options struct {
	CacheRoot         string
	ToxEnvironment    string
	WorkerCount       int
	RepositoryPattern string
	FreshEnvironments bool
	SampleSize        int
	Exclusions        *ExclusionList
	Override          OverrideSource
}

// Service fans tox runs out over the cached charm projects.
type Service struct {
	logger    *zap.Logger
	executor  ToxExecutor
	inventory *charms.Inventory
	patcher   *DependencyPatcher
}

// NewService constructs a Service from the provided dependencies.
func NewService(dependencies Dependencies) (*Service, error) {
	if dependencies.Executor == nil {
		return nil, ErrToxExecutorNotConfigured
	}
	if dependencies.Inventory == nil {
		return nil, ErrInventoryNotConfigured
	}
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	patcher := dependencies.Patcher
	if patcher == nil {
		patcher = NewDependencyPatcher(logger)
	}
	return &Service{
		logger:    logger,
		executor:  dependencies.Executor,
		inventory: dependencies.Inventory,
		patcher:   patcher,
	}, nil
}

// Run executes the configured tox environment across every eligible cached project.
//
// Excluded projects are reported as skipped without starting a subprocess.
// Runs are fanned out up to the worker limit; a failing run is recorded in
// its outcome and never stops sibling runs. Outcomes are returned in
// selection order regardless of completion order.
func (service *Service) Run(executionContext context.Context, options Options) ([]Outcome, error) {
	if len(options.CacheRoot) == 0 {
		return nil, ErrCacheRootRequired
	}

	namePattern, patternError := compileRepositoryPattern(options.RepositoryPattern)
	if patternError != nil {
		return nil, patternError
	}

	projects, _, inventoryError := service.inventory.Projects(options.CacheRoot)
	if inventoryError != nil {
		return nil, inventoryError
	}

	var skippedOutcomes []Outcome
	var eligibleProjects []charms.Project
	for _, project := range projects {
		exclusionName := project.Name
		if len(project.BundleName) > 0 {
			exclusionName = project.BundleName
		}
		if categoryName, excluded := options.Exclusions.Lookup(exclusionName); excluded {
			service.logger.Info(
				excludedLogMessageConstant,
				zap.String(logFieldProjectConstant, project.Name),
				zap.String(logFieldCategoryConstant, categoryName),
			)
			skippedOutcomes = append(skippedOutcomes, Outcome{
				ProjectName:  project.Name,
				ProjectPath:  project.Path,
				BundleName:   project.BundleName,
				State:        StateSkipped,
				SkipCategory: categoryName,
			})
			continue
		}
		if namePattern != nil && !namePattern.MatchString(project.Name) {
			service.logger.Info(patternSkipLogMessageConstant, zap.String(logFieldProjectConstant, project.Name))
			continue
		}
		if !pathExists(filepath.Join(project.Path, toxConfigurationFileNameConstant)) {
			service.logger.Info(noToxConfigurationLogMessage, zap.String(logFieldProjectConstant, project.Name))
			continue
		}
		eligibleProjects = append(eligibleProjects, project)
	}

	eligibleProjects = sampleProjects(eligibleProjects, options.SampleSize)

	if options.FreshEnvironments {
		for _, project := range eligibleProjects {
			toxCachePath := filepath.Join(project.Path, toxDirectoryNameConstant)
			if removeError := os.RemoveAll(toxCachePath); removeError != nil {
				return nil, fmt.Errorf(freshRemovalErrorTemplateConstant, toxCachePath, removeError)
			}
		}
	}

	workerCount := options.WorkerCount
	if workerCount <= 0 {
		workerCount = defaultWorkerCountConstant
	}

	runOutcomes := make([]Outcome, len(eligibleProjects))

	var taskGroup errgroup.Group
	taskGroup.SetLimit(workerCount)
	for projectIndex, project := range eligibleProjects {
		projectIndex, project := projectIndex, project
		taskGroup.Go(func() error {
			runOutcomes[projectIndex] = service.runProject(executionContext, project, options)
			return nil
		})
	}

	// Tasks record failures in their outcome instead of returning errors, so
	// waiting never fails and no sibling is ever canceled.
	_ = taskGroup.Wait()

	return append(skippedOutcomes, runOutcomes...), nil
}

func (service *Service) runProject(executionContext context.Context, project charms.Project, options Options) Outcome {
	outcome := Outcome{
		ProjectName: project.Name,
		ProjectPath: project.Path,
		BundleName:  project.BundleName,
	}

	if len(options.Override.Location) > 0 {
		dependencyPatch, patchError := service.patcher.Apply(project.Path, options.Override)
		if patchError != nil {
			outcome.State = StateErrored
			outcome.Failure = patchError
			service.logger.Error(
				runErroredLogMessageConstant,
				zap.String(logFieldProjectConstant, project.Name),
				zap.Error(patchError),
			)
			return outcome
		}
		defer func() {
			if restoreError := dependencyPatch.Restore(); restoreError != nil {
				service.logger.Error(
					runErroredLogMessageConstant,
					zap.String(logFieldProjectConstant, project.Name),
					zap.Error(restoreError),
				)
			}
		}()
	}

	service.logger.Info(
		runningLogMessageConstant,
		zap.String(logFieldProjectConstant, project.Name),
		zap.String(logFieldEnvironmentConstant, options.ToxEnvironment),
	)

	var toxArguments []string
	if len(options.ToxEnvironment) > 0 {
		toxArguments = append(toxArguments, toxEnvironmentFlagConstant, options.ToxEnvironment)
	}

	executionResult, executionError := service.executor.ExecuteTox(executionContext, execshell.CommandDetails{
		Arguments:        toxArguments,
		WorkingDirectory: project.Path,
	})
	outcome.ExitCode = executionResult.ExitCode

	if executionError == nil {
		outcome.State = StateSucceeded
		return outcome
	}

	var commandFailure execshell.CommandFailedError
	if errors.As(executionError, &commandFailure) {
		outcome.State = StateFailed
		outcome.Failure = executionError
		outcome.StandardOutput = executionResult.StandardOutput
		outcome.StandardError = executionResult.StandardError
		service.logger.Warn(
			runFailedLogMessageConstant,
			zap.String(logFieldProjectConstant, project.Name),
			zap.Int(logFieldExitCodeConstant, executionResult.ExitCode),
		)
		return outcome
	}

	outcome.State = StateErrored
	outcome.Failure = executionError
	service.logger.Error(
		runErroredLogMessageConstant,
		zap.String(logFieldProjectConstant, project.Name),
		zap.Error(executionError),
	)
	return outcome
}

func compileRepositoryPattern(repositoryPattern string) (*regexp.Regexp, error) {
	if len(repositoryPattern) == 0 || repositoryPattern == defaultRepositoryPatternConstant {
		return nil, nil
	}
	compiledPattern, compileError := regexp.Compile(fmt.Sprintf(caseInsensitivePatternTemplate, repositoryPattern))
	if compileError != nil {
		return nil, fmt.Errorf(invalidPatternTemplateConstant, repositoryPattern, compileError)
	}
	return compiledPattern, nil
}

// sampleProjects picks exactly sampleSize distinct projects, preserving the
// original ordering of the picked projects. Non-positive or oversized sample
// sizes select everything.
func sampleProjects(projects []charms.Project, sampleSize int) []charms.Project {
	if sampleSize <= 0 || sampleSize >= len(projects) {
		return projects
	}

	pickedIndexes := rand.Perm(len(projects))[:sampleSize]
	sort.Ints(pickedIndexes)

	sampledProjects := make([]charms.Project, 0, sampleSize)
	for _, pickedIndex := range pickedIndexes {
		sampledProjects = append(sampledProjects, projects[pickedIndex])
	}
	return sampledProjects
}
