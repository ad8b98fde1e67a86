package summarise

import (
	"fmt"
	"io"
	"text/tabwriter"
)

const (
	tableTitleTemplateConstant  = "%s\n"
	tableHeaderTemplateConstant = "%s\tCount\tPercentage\n"
	tableRowTemplateConstant    = "%s\t%d\t%.1f%%\n"
	tableTrailerConstant        = "\n"
	tableTabwriterPadding       = 2
)

// WriteCountTable renders labeled counts with their percentage of a total.
//
// A zero total renders every percentage as zero rather than dividing by it.
func WriteCountTable(writer io.Writer, title string, labelHeading string, total int, entries []TallyEntry) {
	fmt.Fprintf(writer, tableTitleTemplateConstant, title)

	countTable := tabwriter.NewWriter(writer, 0, 0, tableTabwriterPadding, ' ', 0)
	fmt.Fprintf(countTable, tableHeaderTemplateConstant, labelHeading)
	for _, entry := range entries {
		percentage := 0.0
		if total > 0 {
			percentage = float64(entry.Count) / float64(total) * 100
		}
		fmt.Fprintf(countTable, tableRowTemplateConstant, entry.Label, entry.Count, percentage)
	}
	countTable.Flush()
	fmt.Fprint(writer, tableTrailerConstant)
}
