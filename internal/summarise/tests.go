package summarise

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/canonical/charm-analysis/internal/charms"
)

const (
	toxIniFileNameConstant             = "tox.ini"
	testsDirectoryNameConstant         = "tests"
	pythonFileSuffixConstant           = ".py"
	iniConfigurationTypeConstant       = "ini"
	toxIniParseErrorTemplateConstant   = "unable to parse %s: %w"
	testsWalkErrorTemplateConstant     = "unable to scan tests in %s: %w"
	testEnvironmentSectionPrefix       = "testenv:"
	sectionKeyDelimiterConstant        = "."
	commandsOptionKeyConstant          = "commands"
	pyrightCheckerMarkerConstant       = "pyright"
	mypyCheckerMarkerConstant          = "mypy"
	importStatementPrefixConstant      = "import "
	fromStatementPrefixConstant        = "from "
	importKeywordConstant              = " import "
	importAliasKeywordConstant         = " as "
	importListSeparatorConstant        = ","
	commentMarkerConstant              = "#"
	scenarioUsageLogMessageConstant    = "project uses Scenario"
	zazaUsageLogMessageConstant        = "project uses Zaza"
	toxUsageSummaryTemplateConstant    = "%d out of %d (%.1f%%) use tox.\n\n"
	unitLibrariesTableTitleConstant    = "Unit Test Libraries"
	unitLibrariesTableHeadingConstant  = "Library"
	frameworksTableTitleConstant       = "Testing Frameworks"
	frameworksTableHeadingConstant     = "Framework"
	environmentsTableTitleConstant     = "Common Tox Environments"
	environmentsTableHeadingConstant   = "Environment"
	staticTableTitleConstant           = "Static Checking Tox Environments"
	staticTableHeadingConstant         = "Environment"
	environmentEntryLimitConstant      = 10
	unittestImportNameConstant         = "unittest"
	pytestImportNameConstant           = "pytest"
	harnessImportNameConstant          = "ops.testing"
	scenarioImportNameConstant         = "scenario"
	pytestOperatorImportNameConstant   = "pytest_operator.plugin"
	zazaImportNameConstant             = "zaza"
	harnessFrameworkLabelConstant      = "Harness"
	scenarioFrameworkLabelConstant     = "Scenario"
	pytestOperatorFrameworkLabel       = "pytest-operator"
	zazaFrameworkLabelConstant         = "zaza"
)

// TestsSummary aggregates test-tooling statistics across the cached charms.
type TestsSummary struct {
	TotalProjects      int
	UsingTox           int
	ToxEnvironments    *Tally
	StaticEnvironments *Tally
	TestImports        *Tally
}

// TestsAnalyzer builds test-tooling summaries from the cached charm projects.
type TestsAnalyzer struct {
	logger    *zap.Logger
	inventory *charms.Inventory
}

// NewTestsAnalyzer constructs a TestsAnalyzer.
func NewTestsAnalyzer(logger *zap.Logger, inventory *charms.Inventory) *TestsAnalyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if inventory == nil {
		inventory = charms.NewInventory(logger)
	}
	return &TestsAnalyzer{logger: logger, inventory: inventory}
}

// Summarise inspects every project's tox configuration and test imports.
func (analyzer *TestsAnalyzer) Summarise(cacheRoot string) (*TestsSummary, error) {
	projects, _, inventoryError := analyzer.inventory.Projects(cacheRoot)
	if inventoryError != nil {
		return nil, inventoryError
	}

	summary := &TestsSummary{
		ToxEnvironments:    NewTally(),
		StaticEnvironments: NewTally(),
		TestImports:        NewTally(),
	}

	for _, project := range projects {
		summary.TotalProjects++

		toxIniPath := filepath.Join(project.Path, toxIniFileNameConstant)
		if toxIniContent, readError := os.ReadFile(toxIniPath); readError == nil {
			summary.UsingTox++
			if parseError := analyzer.tallyToxEnvironments(summary, toxIniPath, toxIniContent); parseError != nil {
				return nil, parseError
			}
		}

		testsPath := filepath.Join(project.Path, testsDirectoryNameConstant)
		if _, statError := os.Stat(testsPath); statError != nil {
			continue
		}
		projectImports, scanError := collectTestImports(testsPath)
		if scanError != nil {
			return nil, scanError
		}
		if projectImports[scenarioImportNameConstant] {
			analyzer.logger.Info(scenarioUsageLogMessageConstant, zap.String("project", project.Name))
		}
		if projectImports[zazaImportNameConstant] {
			analyzer.logger.Info(zazaUsageLogMessageConstant, zap.String("project", project.Name))
		}
		for importedModule := range projectImports {
			summary.TestImports.Add(importedModule)
		}
	}

	return summary, nil
}

// tallyToxEnvironments records testenv sections and flags environments whose
// commands run a static checker.
func (analyzer *TestsAnalyzer) tallyToxEnvironments(summary *TestsSummary, toxIniPath string, toxIniContent []byte) error {
	toxConfiguration := viper.New()
	toxConfiguration.SetConfigType(iniConfigurationTypeConstant)
	if readError := toxConfiguration.ReadConfig(bytes.NewReader(toxIniContent)); readError != nil {
		return fmt.Errorf(toxIniParseErrorTemplateConstant, toxIniPath, readError)
	}

	seenEnvironments := map[string]bool{}
	for _, configurationKey := range toxConfiguration.AllKeys() {
		sectionName, _, keyFound := strings.Cut(configurationKey, sectionKeyDelimiterConstant)
		if !keyFound || !strings.HasPrefix(sectionName, testEnvironmentSectionPrefix) {
			continue
		}
		environmentName := strings.TrimPrefix(sectionName, testEnvironmentSectionPrefix)
		if seenEnvironments[environmentName] {
			continue
		}
		seenEnvironments[environmentName] = true

		summary.ToxEnvironments.Add(environmentName)
		environmentCommands := toxConfiguration.GetString(sectionName + sectionKeyDelimiterConstant + commandsOptionKeyConstant)
		if strings.Contains(environmentCommands, pyrightCheckerMarkerConstant) || strings.Contains(environmentCommands, mypyCheckerMarkerConstant) {
			summary.StaticEnvironments.Add(environmentName)
		}
	}
	return nil
}

// collectTestImports walks a tests directory and extracts the module names
// imported by its Python files using line-based parsing.
func collectTestImports(testsPath string) (map[string]bool, error) {
	importedModules := map[string]bool{}

	walkError := filepath.WalkDir(testsPath, func(entryPath string, entry fs.DirEntry, entryError error) error {
		if entryError != nil {
			return entryError
		}
		if entry.IsDir() {
			if strings.HasPrefix(entry.Name(), ".") && entryPath != testsPath {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(entry.Name(), pythonFileSuffixConstant) {
			return nil
		}

		fileContent, readError := os.ReadFile(entryPath)
		if readError != nil {
			return readError
		}
		for _, importedModule := range pythonImports(string(fileContent)) {
			importedModules[importedModule] = true
		}
		return nil
	})
	if walkError != nil {
		return nil, fmt.Errorf(testsWalkErrorTemplateConstant, testsPath, walkError)
	}
	return importedModules, nil
}

// pythonImports extracts module names from import statements, one line at a
// time. Only top-of-line import and from statements are considered.
func pythonImports(fileContent string) []string {
	var importedModules []string

	for _, rawLine := range strings.Split(fileContent, "\n") {
		line := strings.TrimSpace(rawLine)
		if commentIndex := strings.Index(line, commentMarkerConstant); commentIndex >= 0 {
			line = strings.TrimSpace(line[:commentIndex])
		}

		if strings.HasPrefix(line, fromStatementPrefixConstant) {
			remainder := strings.TrimPrefix(line, fromStatementPrefixConstant)
			moduleName, _, importFound := strings.Cut(remainder, importKeywordConstant)
			if !importFound {
				continue
			}
			moduleName = strings.TrimSpace(moduleName)
			if len(moduleName) > 0 {
				importedModules = append(importedModules, moduleName)
			}
			continue
		}

		if strings.HasPrefix(line, importStatementPrefixConstant) {
			remainder := strings.TrimPrefix(line, importStatementPrefixConstant)
			for _, importedName := range strings.Split(remainder, importListSeparatorConstant) {
				moduleName := strings.TrimSpace(importedName)
				if aliasIndex := strings.Index(moduleName, importAliasKeywordConstant); aliasIndex >= 0 {
					moduleName = strings.TrimSpace(moduleName[:aliasIndex])
				}
				if len(moduleName) > 0 {
					importedModules = append(importedModules, moduleName)
				}
			}
		}
	}

	return importedModules
}

// WriteReport renders the test-tooling summary tables.
func (summary *TestsSummary) WriteReport(writer io.Writer) {
	toxPercentage := 0.0
	if summary.TotalProjects > 0 {
		toxPercentage = float64(summary.UsingTox) / float64(summary.TotalProjects) * 100
	}
	fmt.Fprintf(writer, toxUsageSummaryTemplateConstant, summary.UsingTox, summary.TotalProjects, toxPercentage)

	WriteCountTable(writer, unitLibrariesTableTitleConstant, unitLibrariesTableHeadingConstant, summary.UsingTox, []TallyEntry{
		{Label: unittestImportNameConstant, Count: summary.TestImports.Count(unittestImportNameConstant)},
		{Label: pytestImportNameConstant, Count: summary.TestImports.Count(pytestImportNameConstant)},
	})

	WriteCountTable(writer, frameworksTableTitleConstant, frameworksTableHeadingConstant, summary.UsingTox, []TallyEntry{
		{Label: harnessFrameworkLabelConstant, Count: summary.TestImports.Count(harnessImportNameConstant)},
		{Label: scenarioFrameworkLabelConstant, Count: summary.TestImports.Count(scenarioImportNameConstant)},
		{Label: pytestOperatorFrameworkLabel, Count: summary.TestImports.Count(pytestOperatorImportNameConstant)},
		{Label: zazaFrameworkLabelConstant, Count: summary.TestImports.Count(zazaImportNameConstant)},
	})

	WriteCountTable(writer, environmentsTableTitleConstant, environmentsTableHeadingConstant, summary.UsingTox, summary.ToxEnvironments.Top(environmentEntryLimitConstant))
	WriteCountTable(writer, staticTableTitleConstant, staticTableHeadingConstant, summary.UsingTox, summary.StaticEnvironments.SortedByCount())
}
