package supertox

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
)

const (
	reportSummaryTemplateConstant    = "%d out of %d (%.0f%%) runs passed.\n"
	reportNoRunsMessageConstant      = "No tox runs were executed.\n"
	reportSkippedHeaderConstant      = "Skipped:\n"
	reportFailureHeaderConstant      = "Did not pass:\n"
	reportSkippedRowTemplateConstant = "  %s\t%s\n"
	reportFailureRowTemplateConstant = "  %s\t%s\texit code %d\n"
	reportErroredRowTemplateConstant = "  %s\t%s\t%v\n"
	reportStateFailedLabelConstant   = "failed"
	reportStateErroredLabelConstant  = "errored"
	reportTabwriterPaddingConstant   = 2
)

// WriteReport prints the aggregate outcome of a batch test run.
//
// The report is printed even when every run failed; skipped repositories are
// grouped with their exclusion category and failures carry their exit codes.
func WriteReport(writer io.Writer, outcomes []Outcome) {
	succeededCount := 0
	failedCount := 0
	erroredCount := 0
	var skippedOutcomes []Outcome
	var failedOutcomes []Outcome

	for _, outcome := range outcomes {
		switch outcome.State {
		case StateSucceeded:
			succeededCount++
		case StateFailed:
			failedCount++
			failedOutcomes = append(failedOutcomes, outcome)
		case StateErrored:
			erroredCount++
			failedOutcomes = append(failedOutcomes, outcome)
		case StateSkipped:
			skippedOutcomes = append(skippedOutcomes, outcome)
		}
	}

	executedCount := succeededCount + failedCount + erroredCount
	if executedCount == 0 {
		fmt.Fprint(writer, reportNoRunsMessageConstant)
	} else {
		passPercentage := float64(succeededCount) / float64(executedCount) * 100
		fmt.Fprintf(writer, reportSummaryTemplateConstant, succeededCount, executedCount, passPercentage)
	}

	if len(skippedOutcomes) > 0 {
		sort.Slice(skippedOutcomes, func(firstIndex, secondIndex int) bool {
			if skippedOutcomes[firstIndex].SkipCategory != skippedOutcomes[secondIndex].SkipCategory {
				return skippedOutcomes[firstIndex].SkipCategory < skippedOutcomes[secondIndex].SkipCategory
			}
			return skippedOutcomes[firstIndex].ProjectName < skippedOutcomes[secondIndex].ProjectName
		})

		fmt.Fprint(writer, reportSkippedHeaderConstant)
		skippedTable := tabwriter.NewWriter(writer, 0, 0, reportTabwriterPaddingConstant, ' ', 0)
		for _, outcome := range skippedOutcomes {
			fmt.Fprintf(skippedTable, reportSkippedRowTemplateConstant, outcome.ProjectName, outcome.SkipCategory)
		}
		skippedTable.Flush()
	}

	if len(failedOutcomes) > 0 {
		fmt.Fprint(writer, reportFailureHeaderConstant)
		failureTable := tabwriter.NewWriter(writer, 0, 0, reportTabwriterPaddingConstant, ' ', 0)
		for _, outcome := range failedOutcomes {
			if outcome.State == StateFailed {
				fmt.Fprintf(failureTable, reportFailureRowTemplateConstant, outcome.ProjectName, reportStateFailedLabelConstant, outcome.ExitCode)
				continue
			}
			fmt.Fprintf(failureTable, reportErroredRowTemplateConstant, outcome.ProjectName, reportStateErroredLabelConstant, outcome.Failure)
		}
		failureTable.Flush()
	}
}

// CountFailures returns how many outcomes failed or errored.
func CountFailures(outcomes []Outcome) int {
	failureCount := 0
	for _, outcome := range outcomes {
		if outcome.State == StateFailed || outcome.State == StateErrored {
			failureCount++
		}
	}
	return failureCount
}
