package supertox

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
)

const (
	requirementsFileNameConstant         = "requirements.txt"
	requirementsCompanionPatternConstant = "requirements-*.txt"
	pyprojectFileNameConstant            = "pyproject.toml"

	gitRequirementPrefixConstant   = "git+"
	requirementCommentMarkConstant = "#"
	requirementHashFlagConstant    = "--hash"
	lineSeparatorConstant          = "\n"

	gitSourceTemplateConstant          = "git+%s"
	gitSourceWithBranchTemplate        = "git+%s@%s"
	directReferenceTemplateConstant    = "%s @ %s"
	nothingToPatchTemplateConstant     = "no %s or %s to patch in %s"
	patchReadErrorTemplateConstant     = "unable to read %s: %w"
	patchWriteErrorTemplateConstant    = "unable to write %s: %w"
	patchGlobErrorTemplateConstant     = "unable to match companion requirements in %s: %w"
	pyprojectParseErrorTemplate        = "unable to parse %s: %w"
	pyprojectRenderErrorTemplate       = "unable to render %s: %w"
	droppedRequirementLogMessage       = "dropping unparseable requirement"
	projectTableKeyConstant            = "project"
	dependenciesKeyConstant            = "dependencies"
	logFieldFileConstant               = "file"
	logFieldLineConstant               = "line"
	requirementNameDelimitersConstant  = " <>=!~;([,"
	dependencyNameSeparatorUnderscore  = "_"
	dependencyNameSeparatorHyphenConst = "-"
)

// OverrideSource describes a git-sourced replacement for one dependency.
type OverrideSource struct {
	DependencyName string
	Location       string
	Branch         string
}

// PreparationError indicates a project has no dependency file that can be patched.
type PreparationError struct {
	ProjectPath string
}

// Error describes the unpatchable project.
func (preparation PreparationError) Error() string {
	return fmt.Sprintf(nothingToPatchTemplateConstant, requirementsFileNameConstant, pyprojectFileNameConstant, preparation.ProjectPath)
}

// DependencyPatch remembers the pre-patch content of every rewritten file.
type DependencyPatch struct {
	originalContents map[string][]byte
}

// DependencyPatcher rewrites a project's dependency files to take one
// dependency from a git source instead of the published release.
type DependencyPatcher struct {
	logger *zap.Logger
}

// NewDependencyPatcher constructs a DependencyPatcher with the supplied logger.
func NewDependencyPatcher(logger *zap.Logger) *DependencyPatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DependencyPatcher{logger: logger}
}

// Apply rewrites the project's dependency files in place and returns a patch
// that restores the previous content.
//
// requirements.txt and its requirements-*.txt companions are preferred;
// pyproject.toml is patched when no requirements file exists. Projects with
// neither produce a PreparationError.
func (patcher *DependencyPatcher) Apply(projectPath string, override OverrideSource) (*DependencyPatch, error) {
	patch := &DependencyPatch{originalContents: map[string][]byte{}}

	requirementsPath := filepath.Join(projectPath, requirementsFileNameConstant)
	if pathExists(requirementsPath) {
		requirementsPaths := []string{requirementsPath}
		companionPaths, globError := doublestar.FilepathGlob(filepath.Join(projectPath, requirementsCompanionPatternConstant))
		if globError != nil {
			return nil, fmt.Errorf(patchGlobErrorTemplateConstant, projectPath, globError)
		}
		requirementsPaths = append(requirementsPaths, companionPaths...)

		for _, filePath := range requirementsPaths {
			if patchError := patcher.patchRequirementsFile(patch, filePath, override); patchError != nil {
				// Put back any file rewritten before the failure.
				_ = patch.Restore()
				return nil, patchError
			}
		}
		return patch, nil
	}

	pyprojectPath := filepath.Join(projectPath, pyprojectFileNameConstant)
	if pathExists(pyprojectPath) {
		if patchError := patcher.patchPyprojectFile(patch, pyprojectPath, override); patchError != nil {
			return nil, patchError
		}
		return patch, nil
	}

	return nil, PreparationError{ProjectPath: projectPath}
}

// Restore writes every patched file back to its pre-patch content.
func (patch *DependencyPatch) Restore() error {
	for filePath, originalContent := range patch.originalContents {
		if writeError := os.WriteFile(filePath, originalContent, 0o644); writeError != nil {
			return fmt.Errorf(patchWriteErrorTemplateConstant, filePath, writeError)
		}
	}
	return nil
}

func (patcher *DependencyPatcher) patchRequirementsFile(patch *DependencyPatch, filePath string, override OverrideSource) error {
	originalContent, readError := os.ReadFile(filePath)
	if readError != nil {
		return fmt.Errorf(patchReadErrorTemplateConstant, filePath, readError)
	}
	patch.originalContents[filePath] = originalContent

	var adjustedLines []string
	for _, rawLine := range strings.Split(string(originalContent), lineSeparatorConstant) {
		strippedLine := rawLine
		if commentIndex := strings.Index(strippedLine, requirementCommentMarkConstant); commentIndex >= 0 {
			strippedLine = strippedLine[:commentIndex]
		}
		strippedLine = strings.TrimSpace(strippedLine)
		if len(strippedLine) == 0 || strings.HasPrefix(strippedLine, requirementHashFlagConstant) {
			continue
		}
		if strings.HasPrefix(strippedLine, gitRequirementPrefixConstant) {
			adjustedLines = append(adjustedLines, strippedLine)
			continue
		}
		declaredName, nameFound := requirementName(strippedLine)
		if !nameFound {
			patcher.logger.Warn(
				droppedRequirementLogMessage,
				zap.String(logFieldFileConstant, filePath),
				zap.String(logFieldLineConstant, strippedLine),
			)
			continue
		}
		if !dependencyNamesEqual(declaredName, override.DependencyName) {
			adjustedLines = append(adjustedLines, strippedLine)
		}
	}
	adjustedLines = append(adjustedLines, formatGitSource(override))

	adjustedContent := strings.Join(adjustedLines, lineSeparatorConstant) + lineSeparatorConstant
	if writeError := os.WriteFile(filePath, []byte(adjustedContent), 0o644); writeError != nil {
		return fmt.Errorf(patchWriteErrorTemplateConstant, filePath, writeError)
	}
	return nil
}

func (patcher *DependencyPatcher) patchPyprojectFile(patch *DependencyPatch, filePath string, override OverrideSource) error {
	originalContent, readError := os.ReadFile(filePath)
	if readError != nil {
		return fmt.Errorf(patchReadErrorTemplateConstant, filePath, readError)
	}

	var document map[string]any
	if unmarshalError := toml.Unmarshal(originalContent, &document); unmarshalError != nil {
		return fmt.Errorf(pyprojectParseErrorTemplate, filePath, unmarshalError)
	}

	dependencyHost := document
	if projectTable, projectFound := document[projectTableKeyConstant].(map[string]any); projectFound {
		dependencyHost = projectTable
	}

	var adjustedDependencies []any
	if declaredDependencies, dependenciesFound := dependencyHost[dependenciesKeyConstant].([]any); dependenciesFound {
		for _, declaredDependency := range declaredDependencies {
			dependencyText, isText := declaredDependency.(string)
			if !isText {
				adjustedDependencies = append(adjustedDependencies, declaredDependency)
				continue
			}
			declaredName, nameFound := requirementName(strings.TrimSpace(dependencyText))
			if nameFound && dependencyNamesEqual(declaredName, override.DependencyName) {
				continue
			}
			adjustedDependencies = append(adjustedDependencies, dependencyText)
		}
	}
	adjustedDependencies = append(
		adjustedDependencies,
		fmt.Sprintf(directReferenceTemplateConstant, override.DependencyName, formatGitSource(override)),
	)
	dependencyHost[dependenciesKeyConstant] = adjustedDependencies

	adjustedContent, marshalError := toml.Marshal(document)
	if marshalError != nil {
		return fmt.Errorf(pyprojectRenderErrorTemplate, filePath, marshalError)
	}

	patch.originalContents[filePath] = originalContent
	if writeError := os.WriteFile(filePath, adjustedContent, 0o644); writeError != nil {
		return fmt.Errorf(patchWriteErrorTemplateConstant, filePath, writeError)
	}
	return nil
}

func formatGitSource(override OverrideSource) string {
	if len(override.Branch) > 0 {
		return fmt.Sprintf(gitSourceWithBranchTemplate, override.Location, override.Branch)
	}
	return fmt.Sprintf(gitSourceTemplateConstant, override.Location)
}

// requirementName extracts the distribution name from a requirement specifier line.
func requirementName(specifierLine string) (string, bool) {
	delimiterIndex := strings.IndexAny(specifierLine, requirementNameDelimitersConstant)
	nameCandidate := specifierLine
	if delimiterIndex >= 0 {
		nameCandidate = specifierLine[:delimiterIndex]
	}
	nameCandidate = strings.TrimSpace(nameCandidate)
	if len(nameCandidate) == 0 {
		return "", false
	}
	return nameCandidate, true
}

// dependencyNamesEqual compares distribution names the way installers do,
// ignoring case and treating hyphens and underscores as equivalent.
func dependencyNamesEqual(firstName string, secondName string) bool {
	return normalizeDependencyName(firstName) == normalizeDependencyName(secondName)
}

func normalizeDependencyName(dependencyName string) string {
	return strings.ReplaceAll(strings.ToLower(dependencyName), dependencyNameSeparatorUnderscore, dependencyNameSeparatorHyphenConst)
}

func pathExists(path string) bool {
	_, statError := os.Stat(path)
	return statError == nil
}
