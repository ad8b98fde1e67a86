package supertox

import "strings"

const (
	defaultCacheRootConstant              = ".cache"
	defaultWorkerCountConstant            = 3
	defaultOverrideSourceConstant         = "https://github.com/canonical/operator"
	defaultOverrideDependencyNameConstant = "ops"
	defaultRepositoryPatternConstant      = ".*"
	defaultExclusionsPathConstant         = "super-tox.toml"

	cacheRootConfigKeySuffixConstant          = ".cache_root"
	environmentConfigKeySuffixConstant        = ".environment"
	workersConfigKeySuffixConstant            = ".workers"
	overrideSourceConfigKeySuffixConstant     = ".override_source"
	overrideBranchConfigKeySuffixConstant     = ".override_source_branch"
	overrideDependencyConfigKeySuffixConstant = ".override_dependency"
	repositoryPatternConfigKeySuffixConstant  = ".repository_pattern"
	freshEnvironmentsConfigKeySuffixConstant  = ".fresh_environments"
	sampleSizeConfigKeySuffixConstant         = ".sample_size"
	exclusionsConfigKeySuffixConstant         = ".exclusions"
	ignoreFailuresConfigKeySuffixConstant     = ".ignore_failures"
)

// CommandConfiguration captures configuration values for the batch-test command.
type CommandConfiguration struct {
	CacheRoot              string `mapstructure:"cache_root"`
	ToxEnvironment         string `mapstructure:"environment"`
	WorkerCount            int    `mapstructure:"workers"`
	OverrideSource         string `mapstructure:"override_source"`
	OverrideSourceBranch   string `mapstructure:"override_source_branch"`
	OverrideDependencyName string `mapstructure:"override_dependency"`
	RepositoryPattern      string `mapstructure:"repository_pattern"`
	FreshEnvironments      bool   `mapstructure:"fresh_environments"`
	SampleSize             int    `mapstructure:"sample_size"`
	ExclusionsPath         string `mapstructure:"exclusions"`
	IgnoreFailures         bool   `mapstructure:"ignore_failures"`
}

// DefaultCommandConfiguration provides baseline configuration values for batch-test.
func DefaultCommandConfiguration() CommandConfiguration {
	return CommandConfiguration{
		CacheRoot:              defaultCacheRootConstant,
		WorkerCount:            defaultWorkerCountConstant,
		OverrideSource:         defaultOverrideSourceConstant,
		OverrideDependencyName: defaultOverrideDependencyNameConstant,
		RepositoryPattern:      defaultRepositoryPatternConstant,
		ExclusionsPath:         defaultExclusionsPathConstant,
	}
}

// DefaultConfigurationValues exposes defaults keyed for the configuration loader.
func DefaultConfigurationValues(configurationKeyPrefix string) map[string]any {
	defaultConfiguration := DefaultCommandConfiguration()
	return map[string]any{
		configurationKeyPrefix + cacheRootConfigKeySuffixConstant:          defaultConfiguration.CacheRoot,
		configurationKeyPrefix + environmentConfigKeySuffixConstant:        defaultConfiguration.ToxEnvironment,
		configurationKeyPrefix + workersConfigKeySuffixConstant:            defaultConfiguration.WorkerCount,
		configurationKeyPrefix + overrideSourceConfigKeySuffixConstant:     defaultConfiguration.OverrideSource,
		configurationKeyPrefix + overrideBranchConfigKeySuffixConstant:     defaultConfiguration.OverrideSourceBranch,
		configurationKeyPrefix + overrideDependencyConfigKeySuffixConstant: defaultConfiguration.OverrideDependencyName,
		configurationKeyPrefix + repositoryPatternConfigKeySuffixConstant:  defaultConfiguration.RepositoryPattern,
		configurationKeyPrefix + freshEnvironmentsConfigKeySuffixConstant:  defaultConfiguration.FreshEnvironments,
		configurationKeyPrefix + sampleSizeConfigKeySuffixConstant:         defaultConfiguration.SampleSize,
		configurationKeyPrefix + exclusionsConfigKeySuffixConstant:         defaultConfiguration.ExclusionsPath,
		configurationKeyPrefix + ignoreFailuresConfigKeySuffixConstant:     defaultConfiguration.IgnoreFailures,
	}
}

// sanitize trims configuration values and reapplies defaults for emptied fields.
func (configuration CommandConfiguration) sanitize() CommandConfiguration {
	defaultConfiguration := DefaultCommandConfiguration()

	sanitized := configuration
	sanitized.CacheRoot = strings.TrimSpace(configuration.CacheRoot)
	if len(sanitized.CacheRoot) == 0 {
		sanitized.CacheRoot = defaultConfiguration.CacheRoot
	}
	sanitized.ToxEnvironment = strings.TrimSpace(configuration.ToxEnvironment)
	if sanitized.WorkerCount <= 0 {
		sanitized.WorkerCount = defaultConfiguration.WorkerCount
	}
	sanitized.OverrideSource = strings.TrimSpace(configuration.OverrideSource)
	sanitized.OverrideSourceBranch = strings.TrimSpace(configuration.OverrideSourceBranch)
	sanitized.OverrideDependencyName = strings.TrimSpace(configuration.OverrideDependencyName)
	if len(sanitized.OverrideDependencyName) == 0 {
		sanitized.OverrideDependencyName = defaultConfiguration.OverrideDependencyName
	}
	sanitized.RepositoryPattern = strings.TrimSpace(configuration.RepositoryPattern)
	if len(sanitized.RepositoryPattern) == 0 {
		sanitized.RepositoryPattern = defaultConfiguration.RepositoryPattern
	}
	sanitized.ExclusionsPath = strings.TrimSpace(configuration.ExclusionsPath)
	return sanitized
}
