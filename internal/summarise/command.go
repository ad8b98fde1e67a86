package summarise

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	metadataCommandUseConstant        = "summarise-metadata"
	metadataCommandShortDescription   = "Summarise the metadata declared by the cached charms"
	metadataCommandLongDescription    = "summarise-metadata reads every cached charm's metadata.yaml and reports statistics about juju version assumptions, containers, resources, relations, and storage."
	testsCommandUseConstant           = "summarise-tests"
	testsCommandShortDescription      = "Summarise the test tooling used by the cached charms"
	testsCommandLongDescription       = "summarise-tests reports tox usage, common tox environments, static checking environments, and the test frameworks imported by the cached charms' test suites."
	dependenciesCommandUseConstant    = "summarise-dependencies"
	dependenciesCommandShortDescript  = "Summarise the dependencies declared by the cached charms"
	dependenciesCommandLongDescript   = "summarise-dependencies reports the framework version pins and the most common dependencies declared by the cached charms."
	unexpectedArgumentsTemplate       = "%s does not accept positional arguments"
	summariseErrorTemplateConstant    = "summarise failed: %w"
	flagCacheRootNameConstant         = "cache-root"
	flagCacheRootDescriptionConstant  = "Directory that stores the cached repositories"
)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// ConfigurationProvider supplies the configuration shared by the summarise commands.
type ConfigurationProvider func() CommandConfiguration

// reportWriter is produced by every analyzer and renders its summary tables.
type reportWriter interface {
	WriteReport(writer io.Writer)
}

// MetadataCommandBuilder assembles the Cobra command for metadata statistics.
type MetadataCommandBuilder struct {
	LoggerProvider        LoggerProvider
	ConfigurationProvider ConfigurationProvider
}

// Build constructs the summarise-metadata command.
func (builder *MetadataCommandBuilder) Build() (*cobra.Command, error) {
	return buildSummariseCommand(
		metadataCommandUseConstant,
		metadataCommandShortDescription,
		metadataCommandLongDescription,
		builder.LoggerProvider,
		builder.ConfigurationProvider,
		func(logger *zap.Logger, cacheRoot string) (reportWriter, error) {
			return NewMetadataAnalyzer(logger, nil).Summarise(cacheRoot)
		},
	), nil
}

// TestsCommandBuilder assembles the Cobra command for test-tooling statistics.
type TestsCommandBuilder struct {
	LoggerProvider        LoggerProvider
	ConfigurationProvider ConfigurationProvider
}

// Build constructs the summarise-tests command.
func (builder *TestsCommandBuilder) Build() (*cobra.Command, error) {
	return buildSummariseCommand(
		testsCommandUseConstant,
		testsCommandShortDescription,
		testsCommandLongDescription,
		builder.LoggerProvider,
		builder.ConfigurationProvider,
		func(logger *zap.Logger, cacheRoot string) (reportWriter, error) {
			return NewTestsAnalyzer(logger, nil).Summarise(cacheRoot)
		},
	), nil
}

// DependenciesCommandBuilder assembles the Cobra command for dependency statistics.
type DependenciesCommandBuilder struct {
	LoggerProvider        LoggerProvider
	ConfigurationProvider ConfigurationProvider
}

// Build constructs the summarise-dependencies command.
func (builder *DependenciesCommandBuilder) Build() (*cobra.Command, error) {
	return buildSummariseCommand(
		dependenciesCommandUseConstant,
		dependenciesCommandShortDescript,
		dependenciesCommandLongDescript,
		builder.LoggerProvider,
		builder.ConfigurationProvider,
		func(logger *zap.Logger, cacheRoot string) (reportWriter, error) {
			return NewDependenciesAnalyzer(logger, nil).Summarise(cacheRoot)
		},
	), nil
}

func buildSummariseCommand(
	commandUse string,
	shortDescription string,
	longDescription string,
	loggerProvider LoggerProvider,
	configurationProvider ConfigurationProvider,
	summarise func(logger *zap.Logger, cacheRoot string) (reportWriter, error),
) *cobra.Command {
	command := &cobra.Command{
		Use:   commandUse,
		Short: shortDescription,
		Long:  longDescription,
		RunE: func(command *cobra.Command, arguments []string) error {
			if len(arguments) > 0 {
				return fmt.Errorf(unexpectedArgumentsTemplate, commandUse)
			}

			configuration := DefaultCommandConfiguration()
			if configurationProvider != nil {
				configuration = configurationProvider().sanitize()
			}
			if command.Flags().Changed(flagCacheRootNameConstant) {
				cacheRootValue, _ := command.Flags().GetString(flagCacheRootNameConstant)
				if trimmedCacheRoot := strings.TrimSpace(cacheRootValue); len(trimmedCacheRoot) > 0 {
					configuration.CacheRoot = trimmedCacheRoot
				}
			}

			logger := resolveLogger(loggerProvider)
			summary, summariseError := summarise(logger, configuration.CacheRoot)
			if summariseError != nil {
				return fmt.Errorf(summariseErrorTemplateConstant, summariseError)
			}

			summary.WriteReport(command.OutOrStdout())
			return nil
		},
	}

	command.Flags().String(flagCacheRootNameConstant, "", flagCacheRootDescriptionConstant)
	return command
}

func resolveLogger(loggerProvider LoggerProvider) *zap.Logger {
	if loggerProvider == nil {
		return zap.NewNop()
	}
	logger := loggerProvider()
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
