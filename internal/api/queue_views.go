package api

import (
	"cmp"
	"slices"
	"time"
)

// SortQueueItemsNewestFirst returns a copy of items ordered by CreatedAt
// descending. Items created in the same instant fall back to ID order, which
// for ULIDs is creation order as well.
func SortQueueItemsNewestFirst(items []QueueItem) []QueueItem {
	if len(items) == 0 {
		return nil
	}
	sorted := slices.Clone(items)
	slices.SortStableFunc(sorted, func(a, b QueueItem) int {
		if c := ParseQueueTime(b.CreatedAt).Compare(ParseQueueTime(a.CreatedAt)); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return sorted
}

// ParseQueueTime parses an API timestamp. Empty or malformed values yield the
// zero time.
func ParseQueueTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
