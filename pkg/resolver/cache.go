package resolver

import "sort"

type cachedOrganizer struct {
	ID   string
	Name string
}

// Cache is the per-run resolution memory: source name to target ID for
// each entity kind, plus unmatched sets that short-circuit repeat
// lookups. One Cache is created per run and discarded with it; nothing
// persists across runs.
type Cache struct {
	venues     map[string]string
	organizers map[string]cachedOrganizer
	categories map[string]string

	unmatchedVenues     map[string]bool
	unmatchedOrganizers map[string]bool
	unmatchedCategories map[string]bool

	categoriesLoaded bool
}

func NewCache() *Cache {
	return &Cache{
		venues:              map[string]string{},
		organizers:          map[string]cachedOrganizer{},
		categories:          map[string]string{},
		unmatchedVenues:     map[string]bool{},
		unmatchedOrganizers: map[string]bool{},
		unmatchedCategories: map[string]bool{},
	}
}

// UnmatchedReport is the unmatched-entities run artifact.
type UnmatchedReport struct {
	Venues     []string `json:"venues"`
	Organizers []string `json:"organizers"`
	Categories []string `json:"categories"`
}

func (c *Cache) UnmatchedReport() UnmatchedReport {
	return UnmatchedReport{
		Venues:     sortedKeys(c.unmatchedVenues),
		Organizers: sortedKeys(c.unmatchedOrganizers),
		Categories: sortedKeys(c.unmatchedCategories),
	}
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
