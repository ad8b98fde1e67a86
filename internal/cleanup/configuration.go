package cleanup

import "strings"

const (
	defaultCacheRootConstant = ".cache"

	cacheRootConfigKeySuffixConstant = ".cache_root"
)

// CommandConfiguration captures configuration values for the clean-cache command.
type CommandConfiguration struct {
	CacheRoot string `mapstructure:"cache_root"`
}

// DefaultCommandConfiguration provides baseline configuration values for clean-cache.
func DefaultCommandConfiguration() CommandConfiguration {
	return CommandConfiguration{CacheRoot: defaultCacheRootConstant}
}

// DefaultConfigurationValues exposes defaults keyed for the configuration loader.
func DefaultConfigurationValues(configurationKeyPrefix string) map[string]any {
	return map[string]any{
		configurationKeyPrefix + cacheRootConfigKeySuffixConstant: DefaultCommandConfiguration().CacheRoot,
	}
}

// sanitize trims configuration values and reapplies defaults for emptied fields.
func (configuration CommandConfiguration) sanitize() CommandConfiguration {
	sanitized := configuration
	sanitized.CacheRoot = strings.TrimSpace(configuration.CacheRoot)
	if len(sanitized.CacheRoot) == 0 {
		sanitized.CacheRoot = defaultCacheRootConstant
	}
	return sanitized
}
