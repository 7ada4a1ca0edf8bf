package resolver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hubevents/btcimport/pkg/emapi"
	"github.com/hubevents/btcimport/pkg/errlog"
)

// Geography is the venue enrichment attached to every mapped event:
// venue and city points, a geolocation validity flag, and the 3-level
// mastered location hierarchy.
type Geography struct {
	VenueGeolocation        *emapi.GeoPoint `json:"venueGeolocation"`
	CityGeolocation         *emapi.GeoPoint `json:"cityGeolocation"`
	IsValidVenueGeolocation bool            `json:"isValidVenueGeolocation"`
	CityID                  string          `json:"cityId"`
	CityName                string          `json:"cityName"`
	DivisionID              string          `json:"divisionId"`
	DivisionName            string          `json:"divisionName"`
	RegionID                string          `json:"regionId"`
	RegionName              string          `json:"regionName"`
}

// VenueGeography derives the geography bag for a resolved venue. It never
// fails: any lookup error degrades to the configured defaults, and the
// two venue back-fill updates are best-effort.
func (r *Resolver) VenueGeography(ctx context.Context, venueID string) *Geography {
	g := r.defaultGeography()

	v, err := r.api.GetVenue(ctx, venueID)
	if err != nil {
		r.errors.Error(errlog.CategoryEntityResolution, errlog.StageEntityResolution,
			fmt.Sprintf("venue fetch failed for geography (%s)", venueID),
			map[string]interface{}{"venueId": venueID}, err)
		return g
	}

	// (a) venue point: pass-through, raw-coordinate coercion, or default.
	if pt := coercePoint(v.Geolocation); pt != nil {
		g.VenueGeolocation = pt
	} else if v.Latitude != 0 || v.Longitude != 0 {
		g.VenueGeolocation = emapi.NewGeoPoint(v.Longitude, v.Latitude)
	}

	// (b) city point: linked city coordinates, venue's own, or default.
	// When even the default is needed, the venue gets the default city
	// reference back-filled.
	switch {
	case v.MasteredCity != nil && (v.MasteredCity.Latitude != 0 || v.MasteredCity.Longitude != 0):
		g.CityGeolocation = emapi.NewGeoPoint(v.MasteredCity.Longitude, v.MasteredCity.Latitude)
	case v.Latitude != 0 || v.Longitude != 0:
		g.CityGeolocation = emapi.NewGeoPoint(v.Longitude, v.Latitude)
	default:
		r.backfillVenue(ctx, venueID, map[string]interface{}{
			"masteredCity": map[string]interface{}{
				"_id":  r.cfg.DefaultMasteredCity.ID,
				"name": r.cfg.DefaultMasteredCity.Name,
			},
		})
	}

	// (c) validity: trust the recorded flag, otherwise check that the
	// nearest master city sits within the configured radius, and cache
	// the verdict back onto the venue.
	if v.IsValidVenueGeolocation != nil {
		g.IsValidVenueGeolocation = *v.IsValidVenueGeolocation
	} else {
		g.IsValidVenueGeolocation = r.checkGeolocationValidity(ctx, venueID, g.VenueGeolocation)
	}

	// (d) hierarchy, defaulting per level.
	if v.MasteredCity != nil && v.MasteredCity.ID != "" {
		g.CityID, g.CityName = v.MasteredCity.ID, v.MasteredCity.Name
	}
	if v.MasteredDivision != nil && v.MasteredDivision.ID != "" {
		g.DivisionID, g.DivisionName = v.MasteredDivision.ID, v.MasteredDivision.Name
	}
	if v.MasteredRegion != nil && v.MasteredRegion.ID != "" {
		g.RegionID, g.RegionName = v.MasteredRegion.ID, v.MasteredRegion.Name
	}

	return g
}

func (r *Resolver) defaultGeography() *Geography {
	pt := emapi.NewGeoPoint(r.cfg.DefaultLongitude, r.cfg.DefaultLatitude)
	return &Geography{
		VenueGeolocation: pt,
		CityGeolocation:  pt,
		CityID:           r.cfg.DefaultMasteredCity.ID,
		CityName:         r.cfg.DefaultMasteredCity.Name,
		DivisionID:       r.cfg.DefaultMasteredDivision.ID,
		DivisionName:     r.cfg.DefaultMasteredDivision.Name,
		RegionID:         r.cfg.DefaultMasteredRegion.ID,
		RegionName:       r.cfg.DefaultMasteredRegion.Name,
	}
}

func (r *Resolver) checkGeolocationValidity(ctx context.Context, venueID string, pt *emapi.GeoPoint) bool {
	if pt == nil || len(pt.Coordinates) < 2 {
		return false
	}
	cities, err := r.api.NearestCities(ctx, pt.Coordinates[0], pt.Coordinates[1], 1)
	if err != nil {
		r.errors.Error(errlog.CategoryEntityResolution, errlog.StageEntityResolution,
			fmt.Sprintf("nearest-city lookup failed for venue %s", venueID),
			map[string]interface{}{"venueId": venueID}, err)
		return false
	}
	if len(cities) == 0 || cities[0].Distance > r.cfg.NearestCityMaxKM {
		return false
	}
	r.backfillVenue(ctx, venueID, map[string]interface{}{"isValidVenueGeolocation": true})
	return true
}

// backfillVenue pushes derived data back onto the venue record. Errors
// only get logged: enrichment must not fail the event being resolved.
func (r *Resolver) backfillVenue(ctx context.Context, venueID string, patch map[string]interface{}) {
	if err := r.api.UpdateVenue(ctx, venueID, patch); err != nil {
		r.errors.Warning(errlog.CategoryEntityResolution, errlog.StageEntityResolution,
			fmt.Sprintf("venue back-fill failed for %s", venueID),
			map[string]interface{}{"venueId": venueID})
	}
}

// coercePoint accepts either a well-formed GeoJSON Point or a bare
// [lon, lat] array, returning nil for anything else.
func coercePoint(raw json.RawMessage) *emapi.GeoPoint {
	if len(raw) == 0 {
		return nil
	}
	var pt emapi.GeoPoint
	if err := json.Unmarshal(raw, &pt); err == nil && pt.Type == "Point" && len(pt.Coordinates) == 2 {
		return &pt
	}
	var coords []float64
	if err := json.Unmarshal(raw, &coords); err == nil && len(coords) >= 2 {
		return emapi.NewGeoPoint(coords[0], coords[1])
	}
	return nil
}
