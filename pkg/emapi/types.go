package emapi

import "encoding/json"

// GeoPoint is a GeoJSON Point, coordinates ordered [longitude, latitude].
type GeoPoint struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

func NewGeoPoint(lon, lat float64) *GeoPoint {
	return &GeoPoint{Type: "Point", Coordinates: []float64{lon, lat}}
}

// LocationRef is one level of the mastered location hierarchy.
type LocationRef struct {
	ID   string `json:"_id,omitempty"`
	Name string `json:"name,omitempty"`
}

// CityRef is the venue's linked master city, including its coordinates
// when the master record carries them.
type CityRef struct {
	ID        string  `json:"_id,omitempty"`
	Name      string  `json:"name,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
}

// Venue is a target-side venue record. Geolocation is kept raw because
// legacy records store either a GeoJSON Point or a bare [lon, lat] array;
// the resolver coerces it.
type Venue struct {
	ID                      string          `json:"_id,omitempty"`
	Name                    string          `json:"name"`
	Address                 string          `json:"address,omitempty"`
	City                    string          `json:"city,omitempty"`
	Region                  string          `json:"region,omitempty"`
	Latitude                float64         `json:"latitude,omitempty"`
	Longitude               float64         `json:"longitude,omitempty"`
	Geolocation             json.RawMessage `json:"geolocation,omitempty"`
	IsValidVenueGeolocation *bool           `json:"isValidVenueGeolocation,omitempty"`
	IsExternallySourced     bool            `json:"isExternallySourced,omitempty"`
	MasteredCity            *CityRef        `json:"masteredCity,omitempty"`
	MasteredDivision        *LocationRef    `json:"masteredDivision,omitempty"`
	MasteredRegion          *LocationRef    `json:"masteredRegion,omitempty"`
}

type Organizer struct {
	ID          string `json:"_id,omitempty"`
	Name        string `json:"name"`
	ShortName   string `json:"shortName,omitempty"`
	BTCNiceName string `json:"btcNiceName,omitempty"`
}

type Category struct {
	ID           string `json:"_id,omitempty"`
	CategoryName string `json:"categoryName"`
}

// NearestCity is one row of the nearest-city lookup; Distance is in
// kilometers from the queried point.
type NearestCity struct {
	ID       string  `json:"_id"`
	Name     string  `json:"name"`
	Distance float64 `json:"distance"`
}

// Event is the target event schema the pipeline writes.
type Event struct {
	ID          string `json:"_id,omitempty"`
	AppID       string `json:"appid"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	ExpiresAt string `json:"expiresAt"`
	AllDay    bool   `json:"allDay"`

	IsDiscovered   bool `json:"isDiscovered"`
	IsOwnerManaged bool `json:"ownerManaged"`
	IsActive       bool `json:"isActive"`
	IsFeatured     bool `json:"isFeatured"`
	IsCanceled     bool `json:"isCanceled"`

	VenueID          string `json:"venueId,omitempty"`
	OrganizerID      string `json:"organizerId,omitempty"`
	OrganizerName    string `json:"organizerName,omitempty"`
	CategoryFirstID  string `json:"categoryFirstId,omitempty"`
	CategoryFirst    string `json:"categoryFirst,omitempty"`
	CategorySecondID string `json:"categorySecondId,omitempty"`
	CategorySecond   string `json:"categorySecond,omitempty"`

	VenueGeolocation        *GeoPoint `json:"venueGeolocation,omitempty"`
	CityGeolocation         *GeoPoint `json:"cityGeolocation,omitempty"`
	IsValidVenueGeolocation bool      `json:"isValidVenueGeolocation"`
	MasteredCityID          string    `json:"masteredCityId,omitempty"`
	MasteredCity            string    `json:"masteredCity,omitempty"`
	MasteredDivisionID      string    `json:"masteredDivisionId,omitempty"`
	MasteredDivision        string    `json:"masteredDivision,omitempty"`
	MasteredRegionID        string    `json:"masteredRegionId,omitempty"`
	MasteredRegion          string    `json:"masteredRegion,omitempty"`

	DiscoveredFirstDate string `json:"discoveredFirstDate,omitempty"`
	DiscoveredLastDate  string `json:"discoveredLastDate,omitempty"`
	DiscoveredComments  string `json:"discoveredComments,omitempty"`
	SourceEventID       int64  `json:"sourceEventId,omitempty"`
}
