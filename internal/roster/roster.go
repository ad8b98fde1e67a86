// Package roster loads the tabular charm list consumed by the sync tool.
//
// The list is a CSV document with one row per charm, naming the charm, its
// repository location, and optionally a branch to track instead of the
// default one.
package roster

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	charmNameColumnConstant         = "Charm Name"
	repositoryColumnConstant        = "Repository"
	branchColumnConstant            = "Branch (if not the default)"
	rosterOpenErrorTemplateConstant = "unable to open charm list %s: %w"
	rosterReadErrorTemplateConstant = "unable to read charm list: %w"
	missingColumnTemplateConstant   = "charm list is missing required column %q"
	emptyRosterMessageConstant      = "charm list contains no header row"
)

// ErrEmptyRoster indicates the charm list had no header row.
var ErrEmptyRoster = errors.New(emptyRosterMessageConstant)

// Reference identifies one charm repository from the charm list.
type Reference struct {
	CharmName      string
	RemoteLocation string
	BranchName     string
}

// MissingColumnError indicates a required header column was absent.
type MissingColumnError struct {
	ColumnName string
}

// Error describes the missing column.
func (missingColumn MissingColumnError) Error() string {
	return fmt.Sprintf(missingColumnTemplateConstant, missingColumn.ColumnName)
}

// LoadFile reads charm references from the CSV file at the provided path.
func LoadFile(rosterPath string) ([]Reference, error) {
	rosterFile, openError := os.Open(rosterPath)
	if openError != nil {
		return nil, fmt.Errorf(rosterOpenErrorTemplateConstant, rosterPath, openError)
	}
	defer rosterFile.Close()

	return Load(rosterFile)
}

// Load reads charm references from CSV content.
//
// Rows without a repository are silently skipped, matching rows that merely
// reserve a name in the source spreadsheet.
func Load(rosterReader io.Reader) ([]Reference, error) {
	csvReader := csv.NewReader(rosterReader)
	csvReader.FieldsPerRecord = -1

	headerRow, headerError := csvReader.Read()
	if headerError != nil {
		if errors.Is(headerError, io.EOF) {
			return nil, ErrEmptyRoster
		}
		return nil, fmt.Errorf(rosterReadErrorTemplateConstant, headerError)
	}

	columnIndexes := map[string]int{}
	for columnIndex, columnName := range headerRow {
		columnIndexes[strings.TrimSpace(columnName)] = columnIndex
	}

	charmNameIndex, charmNameFound := columnIndexes[charmNameColumnConstant]
	if !charmNameFound {
		return nil, MissingColumnError{ColumnName: charmNameColumnConstant}
	}
	repositoryIndex, repositoryFound := columnIndexes[repositoryColumnConstant]
	if !repositoryFound {
		return nil, MissingColumnError{ColumnName: repositoryColumnConstant}
	}
	branchIndex, branchFound := columnIndexes[branchColumnConstant]

	var references []Reference
	for {
		dataRow, rowError := csvReader.Read()
		if rowError != nil {
			if errors.Is(rowError, io.EOF) {
				break
			}
			return nil, fmt.Errorf(rosterReadErrorTemplateConstant, rowError)
		}

		remoteLocation := fieldAtIndex(dataRow, repositoryIndex)
		if len(remoteLocation) == 0 {
			continue
		}

		reference := Reference{
			CharmName:      fieldAtIndex(dataRow, charmNameIndex),
			RemoteLocation: remoteLocation,
		}
		if branchFound {
			reference.BranchName = fieldAtIndex(dataRow, branchIndex)
		}
		references = append(references, reference)
	}

	return references, nil
}

func fieldAtIndex(dataRow []string, fieldIndex int) string {
	if fieldIndex < 0 || fieldIndex >= len(dataRow) {
		return ""
	}
	return strings.TrimSpace(dataRow[fieldIndex])
}
