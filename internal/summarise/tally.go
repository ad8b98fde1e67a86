package summarise

import "sort"

// TallyEntry pairs a counted label with its occurrence count.
type TallyEntry struct {
	Label string
	Count int
}

// Tally counts labeled occurrences while remembering first-insertion order.
type Tally struct {
	countsByLabel map[string]int
	orderedLabels []string
}

// NewTally constructs an empty Tally.
func NewTally() *Tally {
	return &Tally{countsByLabel: map[string]int{}}
}

// Add increments the count for the provided label.
func (tally *Tally) Add(label string) {
	tally.AddCount(label, 1)
}

// AddCount increments the count for the provided label by the given amount.
func (tally *Tally) AddCount(label string, amount int) {
	if _, seen := tally.countsByLabel[label]; !seen {
		tally.orderedLabels = append(tally.orderedLabels, label)
	}
	tally.countsByLabel[label] += amount
}

// Count returns the current count for the provided label.
func (tally *Tally) Count(label string) int {
	return tally.countsByLabel[label]
}

// Len returns how many distinct labels the tally holds.
func (tally *Tally) Len() int {
	return len(tally.orderedLabels)
}

// Entries returns the counted labels in first-insertion order.
func (tally *Tally) Entries() []TallyEntry {
	entries := make([]TallyEntry, 0, len(tally.orderedLabels))
	for _, label := range tally.orderedLabels {
		entries = append(entries, TallyEntry{Label: label, Count: tally.countsByLabel[label]})
	}
	return entries
}

// SortedByLabel returns the entries in alphabetical label order.
func (tally *Tally) SortedByLabel() []TallyEntry {
	entries := tally.Entries()
	sort.Slice(entries, func(firstIndex, secondIndex int) bool {
		return entries[firstIndex].Label < entries[secondIndex].Label
	})
	return entries
}

// SortedByCount returns the entries ordered by descending count, breaking
// ties by first-insertion order.
func (tally *Tally) SortedByCount() []TallyEntry {
	entries := tally.Entries()
	sort.SliceStable(entries, func(firstIndex, secondIndex int) bool {
		return entries[firstIndex].Count > entries[secondIndex].Count
	})
	return entries
}

// Top returns at most limit entries ordered by descending count.
func (tally *Tally) Top(limit int) []TallyEntry {
	entries := tally.SortedByCount()
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	return entries
}
