package sync

import (
	"fmt"
	"io"
)

const (
	reportSummaryTemplateConstant = "Synced %d repositories: %d cloned, %d pulled, %d failed.\n"
	reportFailureHeaderConstant   = "Failures:\n"
	reportFailureLineTemplate     = "  %s (%s): %v\n"
)

// WriteReport prints a human-readable summary of the sync outcomes.
func WriteReport(writer io.Writer, outcomes []Outcome) {
	clonedCount := 0
	pulledCount := 0
	failedCount := 0
	for _, outcome := range outcomes {
		if outcome.Failure != nil {
			failedCount++
			continue
		}
		switch outcome.Action {
		case ActionCloned:
			clonedCount++
		case ActionPulled:
			pulledCount++
		}
	}

	fmt.Fprintf(writer, reportSummaryTemplateConstant, len(outcomes), clonedCount, pulledCount, failedCount)

	if failedCount == 0 {
		return
	}
	fmt.Fprint(writer, reportFailureHeaderConstant)
	for _, outcome := range outcomes {
		if outcome.Failure == nil {
			continue
		}
		fmt.Fprintf(writer, reportFailureLineTemplate, outcome.CharmName, outcome.RemoteLocation, outcome.Failure)
	}
}

// CountFailures returns how many outcomes recorded a failure.
func CountFailures(outcomes []Outcome) int {
	failureCount := 0
	for _, outcome := range outcomes {
		if outcome.Failure != nil {
			failureCount++
		}
	}
	return failureCount
}
