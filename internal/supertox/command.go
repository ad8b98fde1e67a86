package supertox

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/canonical/charm-analysis/internal/dependencies"
)

const (
	commandUseConstant              = "batch-test"
	commandShortDescriptionConstant = "Run a tox environment across every cached charm"
	commandLongDescriptionConstant  = "batch-test runs the requested tox environment in each eligible charm repository in the cache, honoring the exclusion list and optionally pointing the charms at a git checkout of the framework library."

	unexpectedArgumentsMessageConstant    = "batch-test does not accept positional arguments"
	exclusionsLoadErrorTemplateConstant   = "unable to load exclusions: %w"
	runExecutionErrorTemplateConstant     = "batch test run failed: %w"
	runFailuresErrorTemplateConstant      = "%d tox runs did not pass"
	ignoredFailuresWarningMessageConstant = "Continuing despite tox failures"

	flagCacheRootNameConstant              = "cache-root"
	flagCacheRootDescriptionConstant       = "Directory that stores the cached repositories"
	flagEnvironmentNameConstant            = "environment"
	flagEnvironmentShorthandConstant       = "e"
	flagEnvironmentDescriptionConstant     = "Tox environment to run (default environments when empty)"
	flagWorkersNameConstant                = "workers"
	flagWorkersDescriptionConstant         = "Maximum number of tox runs to execute concurrently"
	flagOverrideSourceNameConstant         = "override-source"
	flagOverrideSourceDescriptionConstant  = "Git location the override dependency is taken from (empty disables patching)"
	flagOverrideBranchNameConstant         = "override-source-branch"
	flagOverrideBranchDescriptionConstant  = "Branch of the override source to install"
	flagOverrideDependencyNameConstant     = "override-dependency"
	flagOverrideDependencyDescription      = "Dependency name replaced by the override source"
	flagRepositoryPatternNameConstant      = "repo"
	flagRepositoryPatternDescription       = "Case-insensitive regular expression selecting repositories by name"
	flagFreshNameConstant                  = "fresh-tox"
	flagFreshDescriptionConstant           = "Remove each repository's .tox directory before running"
	flagSampleSizeNameConstant             = "sample"
	flagSampleSizeDescriptionConstant      = "Run only this many randomly selected eligible repositories"
	flagExclusionsNameConstant             = "exclusions"
	flagExclusionsDescriptionConstant      = "Path to the TOML exclusion list"
	flagIgnoreFailuresNameConstant         = "ignore-failures"
	flagIgnoreFailuresDescriptionConstant  = "Exit successfully even when some tox runs do not pass"

	failureCountFieldNameConstant = "failures"
)

var errUnexpectedArguments = errors.New(unexpectedArgumentsMessageConstant)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// ConfigurationProvider supplies the configuration for the batch-test command.
type ConfigurationProvider func() CommandConfiguration

// HumanReadableLoggingProvider reports whether console-style output is active.
type HumanReadableLoggingProvider func() bool

// CommandBuilder assembles the Cobra command that batch-runs tox across the cache.
type CommandBuilder struct {
	LoggerProvider               LoggerProvider
	ConfigurationProvider        ConfigurationProvider
	Executor                     ToxExecutor
	HumanReadableLoggingProvider HumanReadableLoggingProvider
}

// Build constructs the batch-test command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   commandUseConstant,
		Short: commandShortDescriptionConstant,
		Long:  commandLongDescriptionConstant,
		RunE:  builder.run,
	}

	command.Flags().String(flagCacheRootNameConstant, "", flagCacheRootDescriptionConstant)
	command.Flags().StringP(flagEnvironmentNameConstant, flagEnvironmentShorthandConstant, "", flagEnvironmentDescriptionConstant)
	command.Flags().Int(flagWorkersNameConstant, 0, flagWorkersDescriptionConstant)
	command.Flags().String(flagOverrideSourceNameConstant, "", flagOverrideSourceDescriptionConstant)
	command.Flags().String(flagOverrideBranchNameConstant, "", flagOverrideBranchDescriptionConstant)
	command.Flags().String(flagOverrideDependencyNameConstant, "", flagOverrideDependencyDescription)
	command.Flags().String(flagRepositoryPatternNameConstant, "", flagRepositoryPatternDescription)
	command.Flags().Bool(flagFreshNameConstant, false, flagFreshDescriptionConstant)
	command.Flags().Int(flagSampleSizeNameConstant, 0, flagSampleSizeDescriptionConstant)
	command.Flags().String(flagExclusionsNameConstant, "", flagExclusionsDescriptionConstant)
	command.Flags().Bool(flagIgnoreFailuresNameConstant, false, flagIgnoreFailuresDescriptionConstant)

	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return errUnexpectedArguments
	}

	configuration := builder.resolveConfiguration(command)

	exclusions, exclusionsError := builder.loadExclusions(command, configuration)
	if exclusionsError != nil {
		return exclusionsError
	}

	logger := builder.resolveLogger()
	executor, executorError := builder.resolveExecutor(command, logger)
	if executorError != nil {
		return executorError
	}

	service, serviceError := NewService(Dependencies{
		Logger:    logger,
		Executor:  executor,
		Inventory: dependencies.ResolveInventory(nil, logger),
	})
	if serviceError != nil {
		return serviceError
	}

	outcomes, runError := service.Run(command.Context(), Options{
		CacheRoot:         configuration.CacheRoot,
		ToxEnvironment:    configuration.ToxEnvironment,
		WorkerCount:       configuration.WorkerCount,
		RepositoryPattern: configuration.RepositoryPattern,
		FreshEnvironments: configuration.FreshEnvironments,
		SampleSize:        configuration.SampleSize,
		Exclusions:        exclusions,
		Override: OverrideSource{
			DependencyName: configuration.OverrideDependencyName,
			Location:       configuration.OverrideSource,
			Branch:         configuration.OverrideSourceBranch,
		},
	})
	if runError != nil {
		return fmt.Errorf(runExecutionErrorTemplateConstant, runError)
	}

	WriteReport(command.OutOrStdout(), outcomes)

	failureCount := CountFailures(outcomes)
	if failureCount == 0 {
		return nil
	}
	if configuration.IgnoreFailures {
		logger.Warn(ignoredFailuresWarningMessageConstant, zap.Int(failureCountFieldNameConstant, failureCount))
		return nil
	}

	return fmt.Errorf(runFailuresErrorTemplateConstant, failureCount)
}

// loadExclusions reads the exclusion list, tolerating a missing file only
// when the path was left at its default.
func (builder *CommandBuilder) loadExclusions(command *cobra.Command, configuration CommandConfiguration) (*ExclusionList, error) {
	if len(configuration.ExclusionsPath) == 0 {
		return nil, nil
	}

	explicitlyConfigured := command.Flags().Changed(flagExclusionsNameConstant) ||
		configuration.ExclusionsPath != defaultExclusionsPathConstant
	if !explicitlyConfigured && !pathExists(configuration.ExclusionsPath) {
		return nil, nil
	}

	exclusions, loadError := LoadExclusionsFile(configuration.ExclusionsPath)
	if loadError != nil {
		return nil, fmt.Errorf(exclusionsLoadErrorTemplateConstant, loadError)
	}
	return exclusions, nil
}

func (builder *CommandBuilder) resolveConfiguration(command *cobra.Command) CommandConfiguration {
	configuration := DefaultCommandConfiguration()
	if builder.ConfigurationProvider != nil {
		configuration = builder.ConfigurationProvider()
	}

	if command.Flags().Changed(flagCacheRootNameConstant) {
		cacheRootValue, _ := command.Flags().GetString(flagCacheRootNameConstant)
		configuration.CacheRoot = cacheRootValue
	}
	if command.Flags().Changed(flagEnvironmentNameConstant) {
		environmentValue, _ := command.Flags().GetString(flagEnvironmentNameConstant)
		configuration.ToxEnvironment = environmentValue
	}
	if command.Flags().Changed(flagWorkersNameConstant) {
		workersValue, _ := command.Flags().GetInt(flagWorkersNameConstant)
		configuration.WorkerCount = workersValue
	}
	if command.Flags().Changed(flagOverrideSourceNameConstant) {
		overrideSourceValue, _ := command.Flags().GetString(flagOverrideSourceNameConstant)
		configuration.OverrideSource = strings.TrimSpace(overrideSourceValue)
	}
	if command.Flags().Changed(flagOverrideBranchNameConstant) {
		overrideBranchValue, _ := command.Flags().GetString(flagOverrideBranchNameConstant)
		configuration.OverrideSourceBranch = overrideBranchValue
	}
	if command.Flags().Changed(flagOverrideDependencyNameConstant) {
		overrideDependencyValue, _ := command.Flags().GetString(flagOverrideDependencyNameConstant)
		configuration.OverrideDependencyName = overrideDependencyValue
	}
	if command.Flags().Changed(flagRepositoryPatternNameConstant) {
		repositoryPatternValue, _ := command.Flags().GetString(flagRepositoryPatternNameConstant)
		configuration.RepositoryPattern = repositoryPatternValue
	}
	if command.Flags().Changed(flagFreshNameConstant) {
		freshValue, _ := command.Flags().GetBool(flagFreshNameConstant)
		configuration.FreshEnvironments = freshValue
	}
	if command.Flags().Changed(flagSampleSizeNameConstant) {
		sampleSizeValue, _ := command.Flags().GetInt(flagSampleSizeNameConstant)
		configuration.SampleSize = sampleSizeValue
	}
	if command.Flags().Changed(flagExclusionsNameConstant) {
		exclusionsValue, _ := command.Flags().GetString(flagExclusionsNameConstant)
		configuration.ExclusionsPath = strings.TrimSpace(exclusionsValue)
	}
	if command.Flags().Changed(flagIgnoreFailuresNameConstant) {
		ignoreFailuresValue, _ := command.Flags().GetBool(flagIgnoreFailuresNameConstant)
		configuration.IgnoreFailures = ignoreFailuresValue
	}

	return configuration.sanitize()
}

func (builder *CommandBuilder) resolveLogger() *zap.Logger {
	if builder.LoggerProvider == nil {
		return zap.NewNop()
	}

	logger := builder.LoggerProvider()
	if logger == nil {
		return zap.NewNop()
	}

	return logger
}

func (builder *CommandBuilder) resolveExecutor(command *cobra.Command, logger *zap.Logger) (ToxExecutor, error) {
	if builder.Executor != nil {
		return builder.Executor, nil
	}

	observer := dependencies.ResolveCommandObserver(command.OutOrStdout(), builder.humanReadableLoggingEnabled())
	return dependencies.ResolveShellExecutor(logger, observer)
}

func (builder *CommandBuilder) humanReadableLoggingEnabled() bool {
	if builder.HumanReadableLoggingProvider == nil {
		return false
	}

	return builder.HumanReadableLoggingProvider()
}
