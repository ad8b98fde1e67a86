package supertox

import (
	"fmt"
	"os"
	"sort"

	"github.com/pelletier/go-toml/v2"
)

const (
	exclusionsReadErrorTemplateConstant  = "unable to read exclusion list %s: %w"
	exclusionsParseErrorTemplateConstant = "unable to parse exclusion list %s: %w"
)

// ExclusionList maps charm directory names to the exclusion category naming them.
//
// The source document is a TOML table of free-form categories, each holding
// an array of directory names:
//
//	[ignore]
//	expensive = ["kafka-k8s-operator"]
//	manual = ["mysql-operator"]
type ExclusionList struct {
	categoriesByName map[string]string
}

type exclusionDocument struct {
	Ignore map[string][]string `toml:"ignore"`
}

// NewExclusionList builds an ExclusionList from category to names pairs.
//
// A name listed under several categories keeps the alphabetically first
// category so that lookups stay deterministic.
func NewExclusionList(namesByCategory map[string][]string) *ExclusionList {
	categoryNames := make([]string, 0, len(namesByCategory))
	for categoryName := range namesByCategory {
		categoryNames = append(categoryNames, categoryName)
	}
	sort.Strings(categoryNames)

	categoriesByName := map[string]string{}
	for _, categoryName := range categoryNames {
		for _, excludedName := range namesByCategory[categoryName] {
			if _, alreadyExcluded := categoriesByName[excludedName]; alreadyExcluded {
				continue
			}
			categoriesByName[excludedName] = categoryName
		}
	}
	return &ExclusionList{categoriesByName: categoriesByName}
}

// LoadExclusionsFile parses the TOML exclusion document at the provided path.
func LoadExclusionsFile(exclusionsPath string) (*ExclusionList, error) {
	documentContent, readError := os.ReadFile(exclusionsPath)
	if readError != nil {
		return nil, fmt.Errorf(exclusionsReadErrorTemplateConstant, exclusionsPath, readError)
	}

	var document exclusionDocument
	if unmarshalError := toml.Unmarshal(documentContent, &document); unmarshalError != nil {
		return nil, fmt.Errorf(exclusionsParseErrorTemplateConstant, exclusionsPath, unmarshalError)
	}
	return NewExclusionList(document.Ignore), nil
}

// Lookup reports the category excluding the named directory, if any.
func (exclusions *ExclusionList) Lookup(directoryName string) (string, bool) {
	if exclusions == nil {
		return "", false
	}
	categoryName, excluded := exclusions.categoriesByName[directoryName]
	return categoryName, excluded
}

// Size returns how many directory names the list excludes.
func (exclusions *ExclusionList) Size() int {
	if exclusions == nil {
		return 0
	}
	return len(exclusions.categoriesByName)
}
