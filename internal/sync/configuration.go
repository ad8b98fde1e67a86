package sync

import "strings"

const (
	defaultCacheRootConstant = ".cache"

	cacheRootConfigKeySuffixConstant      = ".cache_root"
	charmListConfigKeySuffixConstant      = ".charm_list"
	workersConfigKeySuffixConstant        = ".workers"
	ignoreFailuresConfigKeySuffixConstant = ".ignore_failures"
)

// CommandConfiguration captures configuration values for the sync command.
type CommandConfiguration struct {
	CacheRoot      string `mapstructure:"cache_root"`
	CharmListPath  string `mapstructure:"charm_list"`
	WorkerCount    int    `mapstructure:"workers"`
	IgnoreFailures bool   `mapstructure:"ignore_failures"`
}

// DefaultCommandConfiguration provides baseline configuration values for sync.
func DefaultCommandConfiguration() CommandConfiguration {
	return CommandConfiguration{
		CacheRoot: defaultCacheRootConstant,
	}
}

// DefaultConfigurationValues exposes defaults keyed for the configuration loader.
func DefaultConfigurationValues(configurationKeyPrefix string) map[string]any {
	defaultConfiguration := DefaultCommandConfiguration()
	return map[string]any{
		configurationKeyPrefix + cacheRootConfigKeySuffixConstant:      defaultConfiguration.CacheRoot,
		configurationKeyPrefix + charmListConfigKeySuffixConstant:      defaultConfiguration.CharmListPath,
		configurationKeyPrefix + workersConfigKeySuffixConstant:        defaultConfiguration.WorkerCount,
		configurationKeyPrefix + ignoreFailuresConfigKeySuffixConstant: defaultConfiguration.IgnoreFailures,
	}
}

// sanitize trims configuration values without applying implicit defaults.
func (configuration CommandConfiguration) sanitize() CommandConfiguration {
	sanitized := configuration
	sanitized.CacheRoot = strings.TrimSpace(configuration.CacheRoot)
	sanitized.CharmListPath = strings.TrimSpace(configuration.CharmListPath)
	return sanitized
}
