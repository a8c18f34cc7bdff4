package api

import (
	"sort"
	"strconv"
	"time"
)

// SortJobsNewestFirst orders jobs by CreatedAt descending, breaking ties by ID descending.
func SortJobsNewestFirst(jobs []Job) []Job {
	if len(jobs) == 0 {
		return nil
	}
	sorted := make([]Job, len(jobs))
	copy(sorted, jobs)
	sort.SliceStable(sorted, func(i, j int) bool {
		ti := ParseTime(sorted[i].CreatedAt)
		tj := ParseTime(sorted[j].CreatedAt)
		if ti.Equal(tj) {
			return sorted[i].ID > sorted[j].ID
		}
		return ti.After(tj)
	})
	return sorted
}

// ParseTime parses an API timestamp. Unparseable values yield the zero time.
func ParseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	return time.Time{}
}

// ShortID returns the first eight characters of a job id for display.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// ProgressLabel renders job progress for tables.
func ProgressLabel(job Job) string {
	switch job.Status {
	case "pending":
		return "-"
	case "completed":
		return "100%"
	}
	return strconv.Itoa(job.Progress) + "%"
}
