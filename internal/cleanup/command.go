package cleanup

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/canonical/charm-analysis/internal/dependencies"
)

const (
	commandUseConstant              = "clean-cache"
	commandShortDescriptionConstant = "Remove build artifacts from the cached repositories"
	commandLongDescriptionConstant  = "clean-cache removes tox environments, caches and other build artifacts from the cached repositories, then runs git clean in each repository."

	unexpectedArgumentsMessageConstant  = "clean-cache does not accept positional arguments"
	cleanExecutionErrorTemplateConstant = "cache cleanup failed: %w"

	flagCacheRootNameConstant        = "cache-root"
	flagCacheRootDescriptionConstant = "Directory that stores the cached repositories"
	flagFullNameConstant             = "full"
	flagFullDescriptionConstant      = "Remove the entire cache folder instead of individual artifacts"
	flagDryRunNameConstant           = "dry-run"
	flagDryRunDescriptionConstant    = "Show what would be removed without removing anything"
)

var errUnexpectedArguments = errors.New(unexpectedArgumentsMessageConstant)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// ConfigurationProvider supplies the configuration for the clean-cache command.
type ConfigurationProvider func() CommandConfiguration

// HumanReadableLoggingProvider reports whether console-style output is active.
type HumanReadableLoggingProvider func() bool

// CommandBuilder assembles the Cobra command that cleans the repository cache.
type CommandBuilder struct {
	LoggerProvider               LoggerProvider
	ConfigurationProvider        ConfigurationProvider
	Cleaner                      RepositoryCleaner
	HumanReadableLoggingProvider HumanReadableLoggingProvider
}

// Build constructs the clean-cache command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   commandUseConstant,
		Short: commandShortDescriptionConstant,
		Long:  commandLongDescriptionConstant,
		RunE:  builder.run,
	}

	command.Flags().String(flagCacheRootNameConstant, "", flagCacheRootDescriptionConstant)
	command.Flags().Bool(flagFullNameConstant, false, flagFullDescriptionConstant)
	command.Flags().Bool(flagDryRunNameConstant, false, flagDryRunDescriptionConstant)

	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return errUnexpectedArguments
	}

	configuration := builder.resolveConfiguration(command)
	fullRequested, _ := command.Flags().GetBool(flagFullNameConstant)
	dryRunRequested, _ := command.Flags().GetBool(flagDryRunNameConstant)

	logger := builder.resolveLogger()
	cleaner, cleanerError := builder.resolveCleaner(command, logger)
	if cleanerError != nil {
		return cleanerError
	}

	service, serviceError := NewService(Dependencies{Logger: logger, Cleaner: cleaner})
	if serviceError != nil {
		return serviceError
	}

	result, cleanError := service.Clean(command.Context(), Options{
		CacheRoot: configuration.CacheRoot,
		Full:      fullRequested,
		DryRun:    dryRunRequested,
	})
	if cleanError != nil {
		return fmt.Errorf(cleanExecutionErrorTemplateConstant, cleanError)
	}

	WriteReport(command.OutOrStdout(), result, configuration.CacheRoot)
	return nil
}

func (builder *CommandBuilder) resolveConfiguration(command *cobra.Command) CommandConfiguration {
	configuration := DefaultCommandConfiguration()
	if builder.ConfigurationProvider != nil {
		configuration = builder.ConfigurationProvider().sanitize()
	}

	if command.Flags().Changed(flagCacheRootNameConstant) {
		cacheRootValue, _ := command.Flags().GetString(flagCacheRootNameConstant)
		configuration.CacheRoot = strings.TrimSpace(cacheRootValue)
	}

	return configuration
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

func (builder *CommandBuilder) resolveCleaner(command *cobra.Command, logger *zap.Logger) (RepositoryCleaner, error) {
	if builder.Cleaner != nil {
		return builder.Cleaner, nil
	}

	observer := dependencies.ResolveCommandObserver(command.OutOrStdout(), builder.humanReadableLoggingEnabled())
	gitExecutor, executorError := dependencies.ResolveGitExecutor(nil, logger, observer)
	if executorError != nil {
		return nil, executorError
	}

	return dependencies.ResolveRepositoryManager(nil, gitExecutor)
}

func (builder *CommandBuilder) humanReadableLoggingEnabled() bool {
	if builder.HumanReadableLoggingProvider == nil {
		return false
	}

	return builder.HumanReadableLoggingProvider()
}
