package sync

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/canonical/charm-analysis/internal/dependencies"
	"github.com/canonical/charm-analysis/internal/roster"
)

const (
	commandUseConstant              = "sync"
	commandShortDescriptionConstant = "Clone or update the cached charm repositories"
	commandLongDescriptionConstant  = "sync reads the charm roster and clones every listed repository into the cache folder, pulling repositories that are already present."

	unexpectedArgumentsMessageConstant    = "sync does not accept positional arguments"
	rosterLoadErrorTemplateConstant       = "unable to load charm roster: %w"
	syncExecutionErrorTemplateConstant    = "repository sync failed: %w"
	syncFailuresErrorTemplateConstant     = "%d repositories failed to sync"
	charmListRequiredMessageConstant      = "a charm roster file is required; provide --charm-list or set sync.charm_list"
	ignoredFailuresWarningMessageConstant = "Continuing despite sync failures"

	flagCharmListNameConstant             = "charm-list"
	flagCharmListDescriptionConstant      = "Path to the CSV roster of charms to sync"
	flagCacheRootNameConstant             = "cache-root"
	flagCacheRootDescriptionConstant      = "Directory that stores the cached repositories"
	flagWorkersNameConstant               = "workers"
	flagWorkersDescriptionConstant        = "Maximum number of repositories to sync concurrently (0 selects the CPU count)"
	flagIgnoreFailuresNameConstant        = "ignore-failures"
	flagIgnoreFailuresDescriptionConstant = "Exit successfully even when some repositories fail to sync"

	failureCountFieldNameConstant = "failures"
)

var (
	errUnexpectedArguments = errors.New(unexpectedArgumentsMessageConstant)
	errCharmListRequired   = errors.New(charmListRequiredMessageConstant)
)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// ConfigurationProvider supplies the configuration for the sync command.
type ConfigurationProvider func() CommandConfiguration

// HumanReadableLoggingProvider reports whether console-style output is active.
type HumanReadableLoggingProvider func() bool

// CommandBuilder assembles the Cobra command that synchronizes the repository cache.
type CommandBuilder struct {
	LoggerProvider               LoggerProvider
	ConfigurationProvider        ConfigurationProvider
	Manager                      RepositoryManager
	HumanReadableLoggingProvider HumanReadableLoggingProvider
}

// Build constructs the sync command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   commandUseConstant,
		Short: commandShortDescriptionConstant,
		Long:  commandLongDescriptionConstant,
		RunE:  builder.run,
	}

	command.Flags().String(flagCharmListNameConstant, "", flagCharmListDescriptionConstant)
	command.Flags().String(flagCacheRootNameConstant, "", flagCacheRootDescriptionConstant)
	command.Flags().Int(flagWorkersNameConstant, 0, flagWorkersDescriptionConstant)
	command.Flags().Bool(flagIgnoreFailuresNameConstant, false, flagIgnoreFailuresDescriptionConstant)

	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return errUnexpectedArguments
	}

	configuration := builder.resolveConfiguration(command)
	if len(configuration.CharmListPath) == 0 {
		return errCharmListRequired
	}

	references, rosterError := roster.LoadFile(configuration.CharmListPath)
	if rosterError != nil {
		return fmt.Errorf(rosterLoadErrorTemplateConstant, rosterError)
	}

	logger := builder.resolveLogger()
	manager, managerError := builder.resolveManager(command, logger)
	if managerError != nil {
		return managerError
	}

	service, serviceError := NewService(Dependencies{Logger: logger, Manager: manager})
	if serviceError != nil {
		return serviceError
	}

	result, syncError := service.Sync(command.Context(), Options{
		CacheRoot:   configuration.CacheRoot,
		References:  references,
		WorkerCount: configuration.WorkerCount,
	})
	if syncError != nil {
		return fmt.Errorf(syncExecutionErrorTemplateConstant, syncError)
	}

	WriteReport(command.OutOrStdout(), result)

	failureCount := CountFailures(result)
	if failureCount == 0 {
		return nil
	}
	if configuration.IgnoreFailures {
		logger.Warn(ignoredFailuresWarningMessageConstant, zap.Int(failureCountFieldNameConstant, failureCount))
		return nil
	}

	return fmt.Errorf(syncFailuresErrorTemplateConstant, failureCount)
}

func (builder *CommandBuilder) resolveConfiguration(command *cobra.Command) CommandConfiguration {
	configuration := DefaultCommandConfiguration()
	if builder.ConfigurationProvider != nil {
		configuration = builder.ConfigurationProvider().sanitize()
		if len(configuration.CacheRoot) == 0 {
			configuration.CacheRoot = DefaultCommandConfiguration().CacheRoot
		}
	}

	if command.Flags().Changed(flagCharmListNameConstant) {
		charmListValue, _ := command.Flags().GetString(flagCharmListNameConstant)
		configuration.CharmListPath = strings.TrimSpace(charmListValue)
	}
	if command.Flags().Changed(flagCacheRootNameConstant) {
		cacheRootValue, _ := command.Flags().GetString(flagCacheRootNameConstant)
		configuration.CacheRoot = strings.TrimSpace(cacheRootValue)
	}
	if command.Flags().Changed(flagWorkersNameConstant) {
		workersValue, _ := command.Flags().GetInt(flagWorkersNameConstant)
		configuration.WorkerCount = workersValue
	}
	if command.Flags().Changed(flagIgnoreFailuresNameConstant) {
		ignoreFailuresValue, _ := command.Flags().GetBool(flagIgnoreFailuresNameConstant)
		configuration.IgnoreFailures = ignoreFailuresValue
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

func (builder *CommandBuilder) resolveManager(command *cobra.Command, logger *zap.Logger) (RepositoryManager, error) {
	if builder.Manager != nil {
		return builder.Manager, nil
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
