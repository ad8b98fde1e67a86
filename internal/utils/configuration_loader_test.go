package utils_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/canonical/charm-analysis/internal/utils"
)

const (
	testEnvironmentPrefixConstant          = "TESTCHARMANALYSIS"
	testLogLevelKeyConstant                = "common.log_level"
	testLogLevelEnvironmentNameConstant    = "TESTCHARMANALYSIS_COMMON_LOG_LEVEL"
	testConfigFileNameConstant             = "config.yaml"
	testConfigContentTemplateConstant      = "common:\n  log_level: %s\n"
	testEmbeddedConfigurationConstant      = "common:\n  log_level: debug\n"
	testConfigurationNameConstant          = "config"
	testConfigurationTypeConstant          = "yaml"
	configurationSubtestTemplateConstant   = "%d_%s"
	testCaseEmbeddedMessageConstant        = "embedded configuration merges"
	testCaseDefaultsMessageConstant        = "defaults are applied"
	testCaseFileMessageConstant            = "config file overrides defaults"
	testCaseEnvironmentMessageConstant     = "environment overrides file"
	testMalformedConfigurationFileConstant = "common: [\n"
)

type configurationFixture struct {
	Common configurationCommonFixture `mapstructure:"common"`
}

type configurationCommonFixture struct {
	LogLevel string `mapstructure:"log_level"`
}

func TestConfigurationLoaderLoadConfiguration(testInstance *testing.T) {
	testCases := []struct {
		name                string
		embeddedLogLevel    string
		defaultLogLevel     string
		fileLogLevel        string
		environmentLogLevel string
		expectedLogLevel    string
	}{
		{
			name:             testCaseEmbeddedMessageConstant,
			embeddedLogLevel: "debug",
			expectedLogLevel: "debug",
		},
		{
			name:             testCaseDefaultsMessageConstant,
			defaultLogLevel:  "info",
			expectedLogLevel: "info",
		},
		{
			name:             testCaseFileMessageConstant,
			defaultLogLevel:  "info",
			fileLogLevel:     "debug",
			expectedLogLevel: "debug",
		},
		{
			name:                testCaseEnvironmentMessageConstant,
			defaultLogLevel:     "info",
			fileLogLevel:        "warn",
			environmentLogLevel: "error",
			expectedLogLevel:    "error",
		},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf(configurationSubtestTemplateConstant, testCaseIndex, testCase.name), func(testInstance *testing.T) {
			tempDirectory := testInstance.TempDir()

			configurationFilePath := ""
			if len(testCase.fileLogLevel) > 0 {
				configurationFilePath = filepath.Join(tempDirectory, testConfigFileNameConstant)
				configurationContent := fmt.Sprintf(testConfigContentTemplateConstant, testCase.fileLogLevel)
				require.NoError(testInstance, os.WriteFile(configurationFilePath, []byte(configurationContent), 0o600))
			}

			if len(testCase.environmentLogLevel) > 0 {
				testInstance.Setenv(testLogLevelEnvironmentNameConstant, testCase.environmentLogLevel)
			}

			loader := utils.NewConfigurationLoader(
				testConfigurationNameConstant,
				testConfigurationTypeConstant,
				testEnvironmentPrefixConstant,
				[]string{tempDirectory},
			)
			if len(testCase.embeddedLogLevel) > 0 {
				loader.SetEmbeddedConfiguration([]byte(testEmbeddedConfigurationConstant))
			}

			defaultValues := map[string]any{}
			if len(testCase.defaultLogLevel) > 0 {
				defaultValues[testLogLevelKeyConstant] = testCase.defaultLogLevel
			}

			var loadedFixture configurationFixture
			loadedMetadata, loadError := loader.LoadConfiguration(configurationFilePath, defaultValues, &loadedFixture)
			require.NoError(testInstance, loadError)
			require.Equal(testInstance, testCase.expectedLogLevel, loadedFixture.Common.LogLevel)

			if len(configurationFilePath) > 0 {
				require.Equal(testInstance, configurationFilePath, loadedMetadata.ConfigFileUsed)
			}
		})
	}
}

func TestConfigurationLoaderReportsMalformedFile(testInstance *testing.T) {
	tempDirectory := testInstance.TempDir()
	configurationFilePath := filepath.Join(tempDirectory, testConfigFileNameConstant)
	require.NoError(testInstance, os.WriteFile(configurationFilePath, []byte(testMalformedConfigurationFileConstant), 0o600))

	loader := utils.NewConfigurationLoader(
		testConfigurationNameConstant,
		testConfigurationTypeConstant,
		testEnvironmentPrefixConstant,
		[]string{tempDirectory},
	)

	var loadedFixture configurationFixture
	_, loadError := loader.LoadConfiguration(configurationFilePath, nil, &loadedFixture)
	require.Error(testInstance, loadError)
	require.ErrorContains(testInstance, loadError, "failed to read configuration")
}
