package summarise

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/canonical/charm-analysis/internal/charms"
)

const (
	metadataFileNameConstant            = "metadata.yaml"
	metadataParseErrorTemplateConstant  = "unable to parse %s: %w"
	missingMetadataLogMessageConstant   = "cannot find metadata.yaml"
	jujuAssumptionMarkerConstant        = "juju"
	assumesAnyOfKeyConstant             = "any-of"
	assumesAllOfKeyConstant             = "all-of"
	relationRowTemplateConstant         = "%s : %s"
	jujuVersionsTableTitleConstant      = "Juju Versions"
	jujuVersionsTableHeadingConstant    = "Version"
	assumesTableTitleConstant           = "Assumes"
	assumesTableHeadingConstant         = "Requirement"
	containerCountsTableTitleConstant   = "Container Counts"
	containerCountsTableHeadingConstant = "Containers"
	resourcesTableTitleConstant         = "Common Resources"
	resourcesTableHeadingConstant       = "Resource"
	relationsTableTitleConstant         = "Common Relations"
	relationsTableHeadingConstant       = "Relation"
	storageTableTitleConstant           = "Storage Types"
	storageTableHeadingConstant         = "Storage"
	commonEntryLimitConstant            = 5
)

type metadataRelation struct {
	Interface string `yaml:"interface"`
}

type metadataStorage struct {
	Type string `yaml:"type"`
}

type metadataDocument struct {
	Assumes    []any                       `yaml:"assumes"`
	Containers map[string]any              `yaml:"containers"`
	Resources  map[string]any              `yaml:"resources"`
	Requires   map[string]metadataRelation `yaml:"requires"`
	Storage    map[string]metadataStorage  `yaml:"storage"`
}

// MetadataSummary aggregates metadata statistics across the cached charms.
type MetadataSummary struct {
	TotalProjects   int
	MissingMetadata int
	JujuVersions    *Tally
	Assumes         *Tally
	ContainerCounts *Tally
	Resources       *Tally
	Relations       *Tally
	StorageTypes    *Tally
}

// MetadataAnalyzer builds metadata summaries from the cached charm projects.
type MetadataAnalyzer struct {
	logger    *zap.Logger
	inventory *charms.Inventory
}

// NewMetadataAnalyzer constructs a MetadataAnalyzer.
func NewMetadataAnalyzer(logger *zap.Logger, inventory *charms.Inventory) *MetadataAnalyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if inventory == nil {
		inventory = charms.NewInventory(logger)
	}
	return &MetadataAnalyzer{logger: logger, inventory: inventory}
}

// Summarise parses every project's metadata.yaml and aggregates the statistics.
//
// Projects without a metadata.yaml are counted and logged but do not stop the
// analysis; a malformed document does.
func (analyzer *MetadataAnalyzer) Summarise(cacheRoot string) (*MetadataSummary, error) {
	projects, _, inventoryError := analyzer.inventory.Projects(cacheRoot)
	if inventoryError != nil {
		return nil, inventoryError
	}

	summary := &MetadataSummary{
		JujuVersions:    NewTally(),
		Assumes:         NewTally(),
		ContainerCounts: NewTally(),
		Resources:       NewTally(),
		Relations:       NewTally(),
		StorageTypes:    NewTally(),
	}

	for _, project := range projects {
		summary.TotalProjects++

		metadataPath := filepath.Join(project.Path, metadataFileNameConstant)
		metadataContent, readError := os.ReadFile(metadataPath)
		if readError != nil {
			summary.MissingMetadata++
			analyzer.logger.Warn(missingMetadataLogMessageConstant, zap.String("project", project.Name))
			continue
		}

		var document metadataDocument
		if unmarshalError := yaml.Unmarshal(metadataContent, &document); unmarshalError != nil {
			return nil, fmt.Errorf(metadataParseErrorTemplateConstant, metadataPath, unmarshalError)
		}

		analyzer.tallyAssumptions(summary, document.Assumes)
		summary.ContainerCounts.Add(strconv.Itoa(len(document.Containers)))
		for resourceName := range document.Resources {
			summary.Resources.Add(resourceName)
		}
		for relationName, relation := range document.Requires {
			summary.Relations.Add(fmt.Sprintf(relationRowTemplateConstant, relationName, relation.Interface))
		}
		for _, storage := range document.Storage {
			summary.StorageTypes.Add(storage.Type)
		}
	}

	return summary, nil
}

// tallyAssumptions splits assumes entries into juju version requirements and
// plain feature requirements. Nested any-of and all-of groups are flattened.
func (analyzer *MetadataAnalyzer) tallyAssumptions(summary *MetadataSummary, assumptions []any) {
	for _, assumption := range assumptions {
		switch typedAssumption := assumption.(type) {
		case string:
			analyzer.tallyAssumption(summary, typedAssumption)
		case map[string]any:
			for _, groupKey := range []string{assumesAnyOfKeyConstant, assumesAllOfKeyConstant} {
				groupedAssumptions, groupFound := typedAssumption[groupKey].([]any)
				if !groupFound {
					continue
				}
				for _, groupedAssumption := range groupedAssumptions {
					assumptionText, isText := groupedAssumption.(string)
					if isText {
						analyzer.tallyAssumption(summary, assumptionText)
					}
				}
			}
		}
	}
}

func (analyzer *MetadataAnalyzer) tallyAssumption(summary *MetadataSummary, assumption string) {
	if strings.Contains(assumption, jujuAssumptionMarkerConstant) {
		summary.JujuVersions.Add(assumption)
		return
	}
	summary.Assumes.Add(assumption)
}

// WriteReport renders the metadata summary tables.
func (summary *MetadataSummary) WriteReport(writer io.Writer) {
	WriteCountTable(writer, jujuVersionsTableTitleConstant, jujuVersionsTableHeadingConstant, summary.TotalProjects, summary.JujuVersions.SortedByLabel())
	WriteCountTable(writer, assumesTableTitleConstant, assumesTableHeadingConstant, summary.TotalProjects, summary.Assumes.SortedByLabel())
	WriteCountTable(writer, containerCountsTableTitleConstant, containerCountsTableHeadingConstant, summary.TotalProjects, summary.ContainerCounts.SortedByLabel())
	WriteCountTable(writer, resourcesTableTitleConstant, resourcesTableHeadingConstant, summary.TotalProjects, summary.Resources.Top(commonEntryLimitConstant))
	WriteCountTable(writer, relationsTableTitleConstant, relationsTableHeadingConstant, summary.TotalProjects, summary.Relations.Top(commonEntryLimitConstant))
	WriteCountTable(writer, storageTableTitleConstant, storageTableHeadingConstant, summary.TotalProjects, summary.StorageTypes.SortedByLabel())
}
