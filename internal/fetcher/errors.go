package fetcher

import "fmt"

// FetchError is returned when the external API answers with a non-2xx
// status or cannot be reached at all. It is fatal to the run that caused
// it; the fetch client itself never retries.
type FetchError struct {
	SourceKey  string
	StatusCode int
	Status     string
}

func (e *FetchError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("fetch failed for source %s: %s", e.SourceKey, e.Status)
	}
	return fmt.Sprintf("fetch failed for source %s: %d %s", e.SourceKey, e.StatusCode, e.Status)
}
