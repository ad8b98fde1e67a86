package summarise

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"

	"github.com/canonical/charm-analysis/internal/charms"
)

const (
	requirementsFileNameConstant    = "requirements.txt"
	requirementsDevFileNameConstant = "requirements-dev.txt"
	pyprojectFileNameConstant       = "pyproject.toml"

	pyprojectParseErrorTemplateConstant = "unable to parse %s: %w"
	latestVersionLabelConstant          = "latest"
	hashOptionPrefixConstant            = "--hash"
	lineContinuationSuffixConstant      = "\\"
	requirementsCommentMarkConstant     = "#"
	trackedDependencyNameConstant       = "ops"
	specifierDelimitersConstant         = "=<>!~"

	dependencySourcesTableTitleConstant = "Dependency Sources"
	dependencySourcesTableHeading       = "Source"
	opsVersionsTableTitleConstant       = "Ops Versions"
	opsVersionsTableHeadingConstant     = "Version"
	commonDependenciesTableTitle        = "Common Dependencies"
	commonDependenciesTableHeading      = "Package"
	pinnedDependenciesTableTitle        = "Common Dependencies and Version"
	pinnedDependenciesTableHeading      = "Package"
	optionalSectionsTableTitleConstant  = "pyproject.toml Optional Dependency Sections"
	optionalSectionsTableHeading        = "Section"
	commonDependencyLimitConstant       = 100
	pinnedDependencyLimitConstant       = 5
)

type pyprojectDocument struct {
	Dependencies []string `toml:"dependencies"`
	Project      struct {
		Dependencies         []string            `toml:"dependencies"`
		OptionalDependencies map[string][]string `toml:"optional-dependencies"`
	} `toml:"project"`
}

// DependenciesSummary aggregates dependency statistics across the cached charms.
type DependenciesSummary struct {
	TotalProjects      int
	DependencySources  *Tally
	OpsVersions        *Tally
	Dependencies       *Tally
	PinnedDependencies *Tally
	OptionalSections   *Tally
}

// DependenciesAnalyzer builds dependency summaries from the cached charm projects.
type DependenciesAnalyzer struct {
	logger    *zap.Logger
	inventory *charms.Inventory
}

// NewDependenciesAnalyzer constructs a DependenciesAnalyzer.
func NewDependenciesAnalyzer(logger *zap.Logger, inventory *charms.Inventory) *DependenciesAnalyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if inventory == nil {
		inventory = charms.NewInventory(logger)
	}
	return &DependenciesAnalyzer{logger: logger, inventory: inventory}
}

// Summarise extracts dependency statistics from every project's dependency files.
//
// A project can contribute from several sources at once; each is counted.
func (analyzer *DependenciesAnalyzer) Summarise(cacheRoot string) (*DependenciesSummary, error) {
	projects, _, inventoryError := analyzer.inventory.Projects(cacheRoot)
	if inventoryError != nil {
		return nil, inventoryError
	}

	summary := &DependenciesSummary{
		DependencySources:  NewTally(),
		OpsVersions:        NewTally(),
		Dependencies:       NewTally(),
		PinnedDependencies: NewTally(),
		OptionalSections:   NewTally(),
	}

	for _, project := range projects {
		summary.TotalProjects++

		requirementsPath := filepath.Join(project.Path, requirementsFileNameConstant)
		if requirementsContent, readError := os.ReadFile(requirementsPath); readError == nil {
			summary.DependencySources.Add(requirementsFileNameConstant)
			analyzer.tallyRequirements(summary, string(requirementsContent), true)
		}

		requirementsDevPath := filepath.Join(project.Path, requirementsDevFileNameConstant)
		if requirementsDevContent, readError := os.ReadFile(requirementsDevPath); readError == nil {
			summary.DependencySources.Add(requirementsDevFileNameConstant)
			analyzer.tallyRequirements(summary, string(requirementsDevContent), false)
		}

		pyprojectPath := filepath.Join(project.Path, pyprojectFileNameConstant)
		if pyprojectContent, readError := os.ReadFile(pyprojectPath); readError == nil {
			if pyprojectError := analyzer.tallyPyproject(summary, pyprojectPath, pyprojectContent); pyprojectError != nil {
				return nil, pyprojectError
			}
		}
	}

	return summary, nil
}

func (analyzer *DependenciesAnalyzer) tallyRequirements(summary *DependenciesSummary, requirementsContent string, trackOpsVersions bool) {
	for _, rawLine := range strings.Split(requirementsContent, "\n") {
		specifierLine := rawLine
		if commentIndex := strings.Index(specifierLine, requirementsCommentMarkConstant); commentIndex >= 0 {
			specifierLine = specifierLine[:commentIndex]
		}
		specifierLine = strings.TrimSpace(specifierLine)
		if len(specifierLine) == 0 || strings.HasPrefix(specifierLine, hashOptionPrefixConstant) {
			continue
		}
		specifierLine = strings.TrimSpace(strings.TrimSuffix(specifierLine, lineContinuationSuffixConstant))

		analyzer.tallySpecifier(summary, specifierLine, trackOpsVersions)
	}
}

func (analyzer *DependenciesAnalyzer) tallyPyproject(summary *DependenciesSummary, pyprojectPath string, pyprojectContent []byte) error {
	var document pyprojectDocument
	if unmarshalError := toml.Unmarshal(pyprojectContent, &document); unmarshalError != nil {
		return fmt.Errorf(pyprojectParseErrorTemplateConstant, pyprojectPath, unmarshalError)
	}

	declaredDependencies := document.Project.Dependencies
	if len(declaredDependencies) == 0 {
		declaredDependencies = document.Dependencies
	}
	if len(declaredDependencies) > 0 {
		summary.DependencySources.Add(pyprojectFileNameConstant)
		for _, declaredDependency := range declaredDependencies {
			analyzer.tallySpecifier(summary, strings.TrimSpace(declaredDependency), true)
		}
	}

	for sectionName := range document.Project.OptionalDependencies {
		summary.OptionalSections.Add(sectionName)
	}
	return nil
}

func (analyzer *DependenciesAnalyzer) tallySpecifier(summary *DependenciesSummary, specifierLine string, trackOpsVersions bool) {
	if len(specifierLine) == 0 {
		return
	}

	dependencyName, versionSpecifier := splitSpecifier(specifierLine)
	if trackOpsVersions && strings.EqualFold(dependencyName, trackedDependencyNameConstant) {
		if len(versionSpecifier) == 0 {
			summary.OpsVersions.Add(latestVersionLabelConstant)
		} else {
			summary.OpsVersions.Add(versionSpecifier)
		}
		return
	}

	summary.Dependencies.Add(dependencyName)
	summary.PinnedDependencies.Add(specifierLine)
}

// splitSpecifier separates a requirement line into the distribution name and
// the remaining version specifier text.
func splitSpecifier(specifierLine string) (string, string) {
	delimiterIndex := strings.IndexAny(specifierLine, specifierDelimitersConstant)
	if delimiterIndex < 0 {
		return strings.TrimSpace(specifierLine), ""
	}
	return strings.TrimSpace(specifierLine[:delimiterIndex]), strings.TrimSpace(specifierLine[delimiterIndex:])
}

// WriteReport renders the dependency summary tables.
func (summary *DependenciesSummary) WriteReport(writer io.Writer) {
	WriteCountTable(writer, dependencySourcesTableTitleConstant, dependencySourcesTableHeading, summary.TotalProjects, summary.DependencySources.SortedByLabel())
	WriteCountTable(writer, opsVersionsTableTitleConstant, opsVersionsTableHeadingConstant, summary.TotalProjects, summary.OpsVersions.SortedByLabel())
	WriteCountTable(writer, commonDependenciesTableTitle, commonDependenciesTableHeading, summary.TotalProjects, summary.Dependencies.Top(commonDependencyLimitConstant))
	WriteCountTable(writer, pinnedDependenciesTableTitle, pinnedDependenciesTableHeading, summary.TotalProjects, summary.PinnedDependencies.Top(pinnedDependencyLimitConstant))
	WriteCountTable(writer, optionalSectionsTableTitleConstant, optionalSectionsTableHeading, summary.TotalProjects, summary.OptionalSections.SortedByLabel())
}
