// Package mapper turns a resolved source event into the target event
// schema and validates the result. Both operations are pure: no network,
// no mutation of their inputs.
package mapper

import (
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/hubevents/btcimport/pkg/btccal"
	"github.com/hubevents/btcimport/pkg/emapi"
	"github.com/hubevents/btcimport/pkg/resolver"
)

// sourceTimeLayout is the calendar's timestamp format.
const sourceTimeLayout = "2006-01-02 15:04:05"

// MapEvent builds the target event. The UTC timestamp pair is preferred;
// the local pair is only used when UTC is absent. expiresAt lands exactly
// one calendar day after the end date.
func MapEvent(src btccal.Event, res *resolver.Resolved, appID string, now time.Time) emapi.Event {
	start, end := pickTimes(src)

	ev := emapi.Event{
		AppID:       appID,
		Title:       src.Title,
		Description: htmlToText(src.Description),
		AllDay:      src.AllDay,

		IsDiscovered:   true,
		IsOwnerManaged: false,
		IsActive:       true,
		IsFeatured:     false,
		IsCanceled:     false,

		DiscoveredFirstDate: now.UTC().Format(time.RFC3339),
		DiscoveredLastDate:  now.UTC().Format(time.RFC3339),
		DiscoveredComments:  fmt.Sprintf("Imported from BTC calendar, source event %d", src.ID),
		SourceEventID:       src.ID,
	}

	if !start.IsZero() {
		ev.StartDate = start.Format(time.RFC3339)
	}
	if !end.IsZero() {
		ev.EndDate = end.Format(time.RFC3339)
		ev.ExpiresAt = end.AddDate(0, 0, 1).Format(time.RFC3339)
	}

	if res != nil {
		ev.VenueID = res.VenueID
		ev.OrganizerID = res.OrganizerID
		ev.OrganizerName = res.OrganizerName
		ev.CategoryFirstID = res.CategoryFirstID
		ev.CategoryFirst = res.CategoryFirst
		ev.CategorySecondID = res.CategorySecondID
		ev.CategorySecond = res.CategorySecond

		if g := res.Geography; g != nil {
			ev.VenueGeolocation = g.VenueGeolocation
			ev.CityGeolocation = g.CityGeolocation
			ev.IsValidVenueGeolocation = g.IsValidVenueGeolocation
			ev.MasteredCityID = g.CityID
			ev.MasteredCity = g.CityName
			ev.MasteredDivisionID = g.DivisionID
			ev.MasteredDivision = g.DivisionName
			ev.MasteredRegionID = g.RegionID
			ev.MasteredRegion = g.RegionName
		}
	}

	return ev
}

// pickTimes parses the preferred timestamp pair. Local timestamps carry
// no zone information, so both pairs are taken at face value as UTC.
func pickTimes(src btccal.Event) (time.Time, time.Time) {
	startRaw, endRaw := src.UTCStartDate, src.UTCEndDate
	if startRaw == "" || endRaw == "" {
		startRaw, endRaw = src.StartDate, src.EndDate
	}
	start, err := time.ParseInLocation(sourceTimeLayout, startRaw, time.UTC)
	if err != nil {
		start = time.Time{}
	}
	end, err := time.ParseInLocation(sourceTimeLayout, endRaw, time.UTC)
	if err != nil {
		end = time.Time{}
	}
	return start, end
}

func htmlToText(s string) string {
	if s == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// Result reports validation findings. Errors can be non-empty while Valid
// stays true: see the secondary-category check below.
type Result struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

var requiredFields = []string{
	"appid", "title", "startDate", "endDate", "expiresAt",
	"venueId", "categoryFirstId", "discoveredFirstDate",
}

// Validate checks the mapped event before a write is attempted. It never
// mutates the event.
func Validate(ev emapi.Event) Result {
	res := Result{Valid: true}

	required := map[string]string{
		"appid":               ev.AppID,
		"title":               ev.Title,
		"startDate":           ev.StartDate,
		"endDate":             ev.EndDate,
		"expiresAt":           ev.ExpiresAt,
		"venueId":             ev.VenueID,
		"categoryFirstId":     ev.CategoryFirstID,
		"discoveredFirstDate": ev.DiscoveredFirstDate,
	}
	for _, f := range requiredFields {
		if required[f] == "" {
			res.Valid = false
			res.Errors = append(res.Errors, fmt.Sprintf("missing required field %s", f))
		}
	}

	dates := map[string]string{
		"startDate":           ev.StartDate,
		"endDate":             ev.EndDate,
		"expiresAt":           ev.ExpiresAt,
		"discoveredFirstDate": ev.DiscoveredFirstDate,
		"discoveredLastDate":  ev.DiscoveredLastDate,
	}
	parsed := map[string]time.Time{}
	for _, f := range []string{"startDate", "endDate", "expiresAt", "discoveredFirstDate", "discoveredLastDate"} {
		v := dates[f]
		if v == "" {
			continue // missing-ness is the required-field check's job
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			res.Valid = false
			res.Errors = append(res.Errors, fmt.Sprintf("field %s is not a valid date: %q", f, v))
			continue
		}
		parsed[f] = t
	}

	if s, okS := parsed["startDate"]; okS {
		if e, okE := parsed["endDate"]; okE && s.After(e) {
			res.Valid = false
			res.Errors = append(res.Errors, "startDate is after endDate")
		}
	}

	// A secondary category ID without its name is recorded but does not
	// invalidate the event. Intentional-vs-defect is unconfirmed with
	// product; behavior preserved as-is.
	if ev.CategorySecondID != "" && ev.CategorySecond == "" {
		res.Errors = append(res.Errors, "categorySecondId present without categorySecond")
	}

	return res
}
