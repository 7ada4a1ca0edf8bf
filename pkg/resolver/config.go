package resolver

// LocationDefault is one level of the fallback mastered hierarchy.
type LocationDefault struct {
	ID   string
	Name string
}

// Config externalizes every fallback literal the resolution chains use,
// so the policy is data-driven and testable without code changes.
type Config struct {
	// Venue creation fallback ("Boston defaults").
	DefaultCity      string
	DefaultRegion    string
	DefaultLatitude  float64
	DefaultLongitude float64

	// Name of the sentinel venue used when a source venue cannot be
	// matched but a placeholder exists on the target side.
	NotFoundVenueName string

	// Organizer fallbacks.
	DefaultOrganizerName string
	// MockOrganizers maps organizer names straight to synthetic IDs.
	// Empty in production; populated in test environments where the
	// target has no organizer records.
	MockOrganizers map[string]string

	// Category normalization.
	CategoryMap         map[string]string
	IgnoredCategories   map[string]bool
	UnknownCategoryName string
	CategoryBulkLimit   int

	// Geography.
	DefaultMasteredCity     LocationDefault
	DefaultMasteredDivision LocationDefault
	DefaultMasteredRegion   LocationDefault
	NearestCityMaxKM        float64
}

// DefaultConfig carries the production fallback policy.
func DefaultConfig() Config {
	return Config{
		DefaultCity:      "Boston",
		DefaultRegion:    "MA",
		DefaultLatitude:  42.3601,
		DefaultLongitude: -71.0589,

		NotFoundVenueName: "Venue Not Found",

		DefaultOrganizerName: "Un-Identified",
		MockOrganizers:       map[string]string{},

		CategoryMap: map[string]string{
			"Art":                         "Arts",
			"Art & Exhibitions":           "Arts",
			"Music":                       "Music",
			"Concerts & Live Music":       "Music",
			"Theater":                     "Theatre",
			"Theatre & Performing Arts":   "Theatre",
			"Comedy":                      "Comedy",
			"Family":                      "Family & Kids",
			"Kids & Family":               "Family & Kids",
			"Food":                        "Food & Drink",
			"Food & Drink":                "Food & Drink",
			"Festivals":                   "Festivals & Fairs",
			"Festivals & Fairs":           "Festivals & Fairs",
			"Sports":                      "Sports & Fitness",
			"Fitness":                     "Sports & Fitness",
			"Lectures":                    "Talks & Readings",
			"Talks":                       "Talks & Readings",
			"Nightlife":                   "Nightlife",
		},
		IgnoredCategories:   map[string]bool{"Canceled": true, "Other": true},
		UnknownCategoryName: "Unknown",
		CategoryBulkLimit:   200,

		DefaultMasteredCity:     LocationDefault{ID: "city-boston", Name: "Boston"},
		DefaultMasteredDivision: LocationDefault{ID: "division-suffolk", Name: "Suffolk County"},
		DefaultMasteredRegion:   LocationDefault{ID: "region-ma", Name: "Massachusetts"},
		NearestCityMaxKM:        5,
	}
}
