package cleanup

import (
	"fmt"
	"io"
	"strings"
)

const (
	sizeUnitDivisorConstant = 1024

	fullDryRunTemplateConstant       = "Would remove entire cache folder: %s\n"
	fullRemovedTemplateConstant      = "Removed entire cache folder: %s\n"
	fullDryRunSizeTemplateConstant   = "Estimated space to reclaim: %s\n"
	fullRemovedSizeTemplateConstant  = "Space reclaimed: %s\n"
	itemDryRunTemplateConstant       = "Would remove: %s (%s)\n"
	gitCleanDryRunHeaderTemplate     = "Would git-clean in %s:\n"
	gitCleanListingLineTemplate      = "  %s\n"
	summaryDryRunTemplateConstant    = "\nWould remove %d items.\n"
	summaryRemovedTemplateConstant   = "\nRemoved %d items.\n"
	summaryDryRunSizeTemplate        = "Estimated space reclaimed: %s\n"
	summaryRemovedSizeTemplate       = "Space reclaimed: %s\n"
	gitCleanEstimateNoteConstant     = "(Note: git clean savings not included in estimate.)\n"
	nothingToCleanMessageConstant    = "Cache folder does not exist, nothing to clean.\n"
	sizeWithUnitTemplateConstant     = "%.1f %s"
)

var sizeUnitNames = []string{"B", "KB", "MB", "GB", "TB"}

// FormatSize renders a byte count with a human-readable unit.
func FormatSize(sizeBytes int64) string {
	size := float64(sizeBytes)
	for _, unitName := range sizeUnitNames[:len(sizeUnitNames)-1] {
		if size < sizeUnitDivisorConstant {
			return fmt.Sprintf(sizeWithUnitTemplateConstant, size, unitName)
		}
		size /= sizeUnitDivisorConstant
	}
	return fmt.Sprintf(sizeWithUnitTemplateConstant, size, sizeUnitNames[len(sizeUnitNames)-1])
}

// WriteReport prints what a cleanup run removed, or would remove.
func WriteReport(writer io.Writer, result *Result, cacheRoot string) {
	if result.CacheRootMissing {
		fmt.Fprint(writer, nothingToCleanMessageConstant)
		return
	}

	if result.CacheRootRemoved {
		if result.DryRun {
			fmt.Fprintf(writer, fullDryRunTemplateConstant, cacheRoot)
			fmt.Fprintf(writer, fullDryRunSizeTemplateConstant, FormatSize(result.BytesReclaimed))
			return
		}
		fmt.Fprintf(writer, fullRemovedTemplateConstant, cacheRoot)
		fmt.Fprintf(writer, fullRemovedSizeTemplateConstant, FormatSize(result.BytesReclaimed))
		return
	}

	if result.DryRun {
		for _, junkItem := range result.Items {
			fmt.Fprintf(writer, itemDryRunTemplateConstant, junkItem.Path, FormatSize(junkItem.Size))
		}
		for _, gitCleanListing := range result.GitCleanListings {
			fmt.Fprintf(writer, gitCleanDryRunHeaderTemplate, gitCleanListing.RepositoryName)
			for _, listingLine := range strings.Split(gitCleanListing.Listing, "\n") {
				fmt.Fprintf(writer, gitCleanListingLineTemplate, listingLine)
			}
		}
		fmt.Fprintf(writer, summaryDryRunTemplateConstant, len(result.Items))
		fmt.Fprintf(writer, summaryDryRunSizeTemplate, FormatSize(result.BytesReclaimed))
		fmt.Fprint(writer, gitCleanEstimateNoteConstant)
		return
	}

	fmt.Fprintf(writer, summaryRemovedTemplateConstant, len(result.Items))
	fmt.Fprintf(writer, summaryRemovedSizeTemplate, FormatSize(result.BytesReclaimed))
}
