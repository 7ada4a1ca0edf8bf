package resolver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hubevents/btcimport/pkg/emapi"
)

func TestVenueGeographyDefaultsWhenFetchFails(t *testing.T) {
	f := newFakeTarget()
	r := newTestResolver(t, f)

	g := r.VenueGeography(context.Background(), "missing-venue")
	if g.CityName != "Boston" || g.RegionName != "Massachusetts" {
		t.Fatalf("expected default hierarchy, got %+v", g)
	}
	if g.VenueGeolocation == nil || g.VenueGeolocation.Coordinates[0] != -71.0589 {
		t.Fatalf("expected default point, got %+v", g.VenueGeolocation)
	}
	if g.IsValidVenueGeolocation {
		t.Fatal("a defaulted venue point must not be marked valid")
	}
}

func TestVenueGeographyCoercesRawCoordinates(t *testing.T) {
	f := newFakeTarget()
	f.venueByID["v1"] = emapi.Venue{
		ID:          "v1",
		Geolocation: json.RawMessage(`[-71.1097, 42.3736]`),
	}
	f.nearest = []emapi.NearestCity{{ID: "city-cambridge", Name: "Cambridge", Distance: 1.2}}
	r := newTestResolver(t, f)

	g := r.VenueGeography(context.Background(), "v1")
	if g.VenueGeolocation.Type != "Point" || g.VenueGeolocation.Coordinates[1] != 42.3736 {
		t.Fatalf("raw coordinates not coerced: %+v", g.VenueGeolocation)
	}
	if !g.IsValidVenueGeolocation {
		t.Fatal("nearest city within radius must validate the geolocation")
	}

	// No hierarchy assigned and no own coordinates: the default city is
	// back-filled, and the computed validity is cached onto the venue.
	if len(f.venueUpdates) != 2 {
		t.Fatalf("expected 2 back-fill updates, got %d: %+v", len(f.venueUpdates), f.venueUpdates)
	}
	if _, ok := f.venueUpdates[0]["masteredCity"]; !ok {
		t.Fatalf("expected masteredCity back-fill first, got %+v", f.venueUpdates[0])
	}
	if v, ok := f.venueUpdates[1]["isValidVenueGeolocation"]; !ok || v != true {
		t.Fatalf("expected validity back-fill, got %+v", f.venueUpdates[1])
	}
}

func TestVenueGeographyNearestCityTooFar(t *testing.T) {
	f := newFakeTarget()
	f.venueByID["v1"] = emapi.Venue{
		ID:       "v1",
		Latitude: 41.0, Longitude: -70.0,
	}
	f.nearest = []emapi.NearestCity{{ID: "city-x", Name: "Far Away", Distance: 12.5}}
	r := newTestResolver(t, f)

	g := r.VenueGeography(context.Background(), "v1")
	if g.IsValidVenueGeolocation {
		t.Fatal("nearest city beyond the radius must not validate")
	}
	if len(f.venueUpdates) != 0 {
		t.Fatalf("no back-fill expected for an invalid geolocation, got %+v", f.venueUpdates)
	}
}

func TestVenueGeographyTrustsRecordedValidity(t *testing.T) {
	f := newFakeTarget()
	valid := true
	f.venueByID["v1"] = emapi.Venue{
		ID:                      "v1",
		Latitude:                42.37, Longitude: -71.11,
		IsValidVenueGeolocation: &valid,
	}
	r := newTestResolver(t, f)

	g := r.VenueGeography(context.Background(), "v1")
	if !g.IsValidVenueGeolocation {
		t.Fatal("recorded validity must be trusted")
	}
	if f.counts["nearest"] != 0 {
		t.Fatal("recorded validity must skip the nearest-city lookup")
	}
	// City point falls back to the venue's own coordinates.
	if g.CityGeolocation.Coordinates[0] != -71.11 {
		t.Fatalf("expected city point from venue coordinates, got %+v", g.CityGeolocation)
	}
}
