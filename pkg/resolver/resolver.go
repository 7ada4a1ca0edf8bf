// Package resolver maps loosely-identified source references (venue,
// organizer, category names) to canonical target-side IDs. Each kind
// walks a fixed fallback chain, consults the per-run cache first, and
// never returns a Go error: exhaustion degrades to an unmatched result
// and a log entry, so one bad reference never stops the run.
package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/hubevents/btcimport/pkg/btccal"
	"github.com/hubevents/btcimport/pkg/emapi"
	"github.com/hubevents/btcimport/pkg/errlog"
)

type Status string

const (
	// StatusResolved carries a canonical target ID.
	StatusResolved Status = "resolved"
	// StatusUnmatched means every fallback tier came up empty.
	StatusUnmatched Status = "unmatched"
	// StatusIgnored marks names the import deliberately drops
	// (e.g. the "Canceled" category); not a failure.
	StatusIgnored Status = "ignored"
	// StatusFailed means a lookup itself broke; distinct from a clean
	// miss so callers can tell outage from absence.
	StatusFailed Status = "failed"
)

type Resolution struct {
	Status Status `json:"status"`
	ID     string `json:"id,omitempty"`
	Name   string `json:"name,omitempty"`
}

func (r Resolution) Resolved() bool { return r.Status == StatusResolved }

func resolved(id, name string) Resolution {
	return Resolution{Status: StatusResolved, ID: id, Name: name}
}

type Resolver struct {
	api    *emapi.Client
	cfg    Config
	cache  *Cache
	errors *errlog.Logger
}

// New builds a resolver around an explicit cache. The cache is owned by
// the caller (the orchestrator creates one per run).
func New(api *emapi.Client, cfg Config, cache *Cache, errors *errlog.Logger) *Resolver {
	return &Resolver{api: api, cfg: cfg, cache: cache, errors: errors}
}

func (r *Resolver) Cache() *Cache { return r.cache }

// Resolved is the per-event resolution bag handed to the mapper.
type Resolved struct {
	OK               bool                `json:"resolved"`
	VenueID          string              `json:"venueId,omitempty"`
	OrganizerID      string              `json:"organizerId,omitempty"`
	OrganizerName    string              `json:"organizerName,omitempty"`
	CategoryFirstID  string              `json:"categoryFirstId,omitempty"`
	CategoryFirst    string              `json:"categoryFirst,omitempty"`
	CategorySecondID string              `json:"categorySecondId,omitempty"`
	CategorySecond   string              `json:"categorySecond,omitempty"`
	Geography        *Geography          `json:"geography,omitempty"`
	Errors           []string            `json:"errors,omitempty"`
}

// Resolve runs all entity chains for one source event.
func (r *Resolver) Resolve(ctx context.Context, ev btccal.Event) *Resolved {
	out := &Resolved{}

	venue := r.ResolveVenue(ctx, ev.Venue)
	if venue.Resolved() {
		out.VenueID = venue.ID
		out.Geography = r.VenueGeography(ctx, venue.ID)
	} else {
		out.Errors = append(out.Errors, fmt.Sprintf("venue %q not resolved (%s)", ev.Venue.Name, venue.Status))
	}

	organizer := r.ResolveOrganizer(ctx, ev.Organizers)
	if organizer.Resolved() {
		out.OrganizerID = organizer.ID
		out.OrganizerName = organizer.Name
	} else {
		out.Errors = append(out.Errors, fmt.Sprintf("organizer not resolved (%s)", organizer.Status))
	}

	for _, cat := range ev.Categories {
		if out.CategorySecondID != "" {
			break
		}
		res := r.ResolveCategory(ctx, cat)
		switch res.Status {
		case StatusResolved:
			if out.CategoryFirstID == "" {
				out.CategoryFirstID, out.CategoryFirst = res.ID, res.Name
			} else {
				out.CategorySecondID, out.CategorySecond = res.ID, res.Name
			}
		case StatusIgnored:
			// dropped on purpose, not an error
		default:
			out.Errors = append(out.Errors, fmt.Sprintf("category %q not resolved (%s)", cat.Name, res.Status))
		}
	}

	out.OK = len(out.Errors) == 0
	return out
}

// ResolveVenue walks: cache -> exact name match -> NotFound sentinel ->
// create with the configured default city/region/coordinates ->
// unmatched. The first tier that produces an ID wins and is cached.
func (r *Resolver) ResolveVenue(ctx context.Context, v btccal.Venue) Resolution {
	name := strings.TrimSpace(v.Name)
	if name == "" {
		return Resolution{Status: StatusUnmatched}
	}
	if id, ok := r.cache.venues[name]; ok {
		return resolved(id, name)
	}
	if r.cache.unmatchedVenues[name] {
		return Resolution{Status: StatusUnmatched}
	}

	res := r.resolveVenueUncached(ctx, v, name)
	switch res.Status {
	case StatusResolved:
		r.cache.venues[name] = res.ID
	case StatusUnmatched:
		r.cache.unmatchedVenues[name] = true
		r.errors.Warning(errlog.CategoryEntityResolution, errlog.StageEntityResolution,
			fmt.Sprintf("venue %q unmatched after all fallbacks", name), nil)
	}
	return res
}

func (r *Resolver) resolveVenueUncached(ctx context.Context, v btccal.Venue, name string) Resolution {
	lookupFailed := false

	venues, err := r.api.FindVenuesByName(ctx, name)
	if err != nil {
		lookupFailed = true
		r.errors.Error(errlog.CategoryEntityResolution, errlog.StageEntityResolution,
			fmt.Sprintf("venue lookup failed for %q", name), nil, err)
	}
	for _, cand := range venues {
		if strings.EqualFold(strings.TrimSpace(cand.Name), name) {
			return resolved(cand.ID, name)
		}
	}

	if r.cfg.NotFoundVenueName != "" {
		sentinels, err := r.api.FindVenuesByName(ctx, r.cfg.NotFoundVenueName)
		if err != nil {
			lookupFailed = true
			r.errors.Error(errlog.CategoryEntityResolution, errlog.StageEntityResolution,
				"sentinel venue lookup failed", nil, err)
		}
		if len(sentinels) > 0 {
			return resolved(sentinels[0].ID, name)
		}
	}

	valid := true
	created, err := r.api.CreateVenue(ctx, emapi.Venue{
		Name:                    name,
		Address:                 v.Address,
		City:                    r.cfg.DefaultCity,
		Region:                  r.cfg.DefaultRegion,
		Latitude:                r.cfg.DefaultLatitude,
		Longitude:               r.cfg.DefaultLongitude,
		IsValidVenueGeolocation: &valid,
		IsExternallySourced:     true,
	})
	if err != nil {
		r.errors.Error(errlog.CategoryEntityResolution, errlog.StageEntityResolution,
			fmt.Sprintf("fallback venue creation failed for %q", name), nil, err)
		if lookupFailed {
			return Resolution{Status: StatusFailed}
		}
		return Resolution{Status: StatusUnmatched}
	}
	r.errors.Info(errlog.CategoryEntityResolution, errlog.StageEntityResolution,
		fmt.Sprintf("created fallback venue %q (%s)", name, created.ID),
		map[string]interface{}{"venueId": created.ID})
	return resolved(created.ID, name)
}

// ResolveOrganizer treats the first element of an organizer array as
// canonical. Chain: cache -> btcNiceName -> display name -> configured
// default organizer -> mock allow-list -> unmatched.
func (r *Resolver) ResolveOrganizer(ctx context.Context, orgs []btccal.Organizer) Resolution {
	if len(orgs) == 0 {
		return Resolution{Status: StatusUnmatched}
	}
	org := orgs[0]
	name := strings.TrimSpace(org.Name)
	if name == "" {
		return Resolution{Status: StatusUnmatched}
	}

	if hit, ok := r.cache.organizers[name]; ok {
		return resolved(hit.ID, hit.Name)
	}
	if r.cache.unmatchedOrganizers[name] {
		return Resolution{Status: StatusUnmatched}
	}

	res := r.resolveOrganizerUncached(ctx, org, name)
	switch res.Status {
	case StatusResolved:
		r.cache.organizers[name] = cachedOrganizer{ID: res.ID, Name: res.Name}
	case StatusUnmatched:
		r.cache.unmatchedOrganizers[name] = true
		r.errors.Warning(errlog.CategoryEntityResolution, errlog.StageEntityResolution,
			fmt.Sprintf("organizer %q unmatched after all fallbacks", name), nil)
	}
	return res
}

func (r *Resolver) resolveOrganizerUncached(ctx context.Context, org btccal.Organizer, name string) Resolution {
	lookupFailed := false

	if org.Slug != "" {
		found, err := r.api.FindOrganizers(ctx, emapi.OrganizerQuery{BTCNiceName: org.Slug})
		if err != nil {
			lookupFailed = true
			r.errors.Error(errlog.CategoryEntityResolution, errlog.StageEntityResolution,
				fmt.Sprintf("organizer nice-name lookup failed for %q", org.Slug), nil, err)
		}
		if len(found) > 0 {
			return resolved(found[0].ID, found[0].Name)
		}
	}

	found, err := r.api.FindOrganizers(ctx, emapi.OrganizerQuery{Name: name})
	if err != nil {
		lookupFailed = true
		r.errors.Error(errlog.CategoryEntityResolution, errlog.StageEntityResolution,
			fmt.Sprintf("organizer name lookup failed for %q", name), nil, err)
	}
	if len(found) > 0 {
		return resolved(found[0].ID, found[0].Name)
	}

	if r.cfg.DefaultOrganizerName != "" {
		found, err := r.api.FindOrganizers(ctx, emapi.OrganizerQuery{Name: r.cfg.DefaultOrganizerName})
		if err != nil {
			lookupFailed = true
			r.errors.Error(errlog.CategoryEntityResolution, errlog.StageEntityResolution,
				"default organizer lookup failed", nil, err)
		}
		if len(found) > 0 {
			return resolved(found[0].ID, found[0].Name)
		}
	}

	if id, ok := r.cfg.MockOrganizers[name]; ok {
		return resolved(id, name)
	}

	if lookupFailed {
		return Resolution{Status: StatusFailed}
	}
	return Resolution{Status: StatusUnmatched}
}

// ResolveCategory applies the static source-to-canonical mapping first.
// Names in the ignore set resolve to StatusIgnored without being counted
// unmatched. The first category resolve of a run bulk-loads all canonical
// categories to keep per-event lookups off the network.
func (r *Resolver) ResolveCategory(ctx context.Context, cat btccal.Category) Resolution {
	name := strings.TrimSpace(cat.Name)
	if name == "" {
		return Resolution{Status: StatusUnmatched}
	}

	canonical := name
	if mapped, ok := r.cfg.CategoryMap[name]; ok {
		canonical = mapped
	}
	if r.cfg.IgnoredCategories[name] || r.cfg.IgnoredCategories[canonical] {
		return Resolution{Status: StatusIgnored}
	}

	if id, ok := r.cache.categories[canonical]; ok {
		return resolved(id, canonical)
	}
	if r.cache.unmatchedCategories[canonical] {
		return Resolution{Status: StatusUnmatched}
	}

	if !r.cache.categoriesLoaded {
		r.loadCategories(ctx)
		if id, ok := r.cache.categories[canonical]; ok {
			return resolved(id, canonical)
		}
	}

	res := r.resolveCategoryUncached(ctx, canonical)
	switch res.Status {
	case StatusResolved:
		r.cache.categories[canonical] = res.ID
	case StatusUnmatched:
		r.cache.unmatchedCategories[canonical] = true
		r.errors.Warning(errlog.CategoryEntityResolution, errlog.StageEntityResolution,
			fmt.Sprintf("category %q unmatched after all fallbacks", canonical), nil)
	}
	return res
}

func (r *Resolver) loadCategories(ctx context.Context) {
	// Marked loaded even on failure so one outage does not turn every
	// event into a bulk-load attempt; per-name lookups still run.
	r.cache.categoriesLoaded = true

	cats, err := r.api.ListCategories(ctx, r.cfg.CategoryBulkLimit)
	if err != nil {
		r.errors.Error(errlog.CategoryEntityResolution, errlog.StageEntityResolution,
			"bulk category load failed", nil, err)
		return
	}
	for _, c := range cats {
		if c.CategoryName != "" {
			r.cache.categories[c.CategoryName] = c.ID
		}
	}
}

func (r *Resolver) resolveCategoryUncached(ctx context.Context, canonical string) Resolution {
	lookupFailed := false

	found, err := r.api.FindCategoryByName(ctx, canonical)
	if err != nil {
		lookupFailed = true
		r.errors.Error(errlog.CategoryEntityResolution, errlog.StageEntityResolution,
			fmt.Sprintf("category lookup failed for %q", canonical), nil, err)
	}
	if len(found) > 0 {
		return resolved(found[0].ID, canonical)
	}

	if r.cfg.UnknownCategoryName != "" {
		found, err := r.api.FindCategoryByName(ctx, r.cfg.UnknownCategoryName)
		if err != nil {
			lookupFailed = true
			r.errors.Error(errlog.CategoryEntityResolution, errlog.StageEntityResolution,
				"unknown-category lookup failed", nil, err)
		}
		if len(found) > 0 {
			return resolved(found[0].ID, r.cfg.UnknownCategoryName)
		}
	}

	if lookupFailed {
		return Resolution{Status: StatusFailed}
	}
	return Resolution{Status: StatusUnmatched}
}
