// Package emapi is the client for the target event-management datastore
// API. Every call carries the application ID, an optional bearer token,
// and goes through the retrying HTTP client.
package emapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hubevents/btcimport/pkg/errlog"
	"github.com/hubevents/btcimport/pkg/retry"
)

type Client struct {
	BaseURL string
	AppID   string
	Token   string
	HTTP    *retry.Client
}

func NewClient(baseURL, appID, token string, http *retry.Client) *Client {
	return &Client{BaseURL: baseURL, AppID: appID, Token: token, HTTP: http}
}

func (c *Client) endpoint(path string, q url.Values) string {
	if q == nil {
		q = url.Values{}
	}
	q.Set("appId", c.AppID)
	return c.BaseURL + path + "?" + q.Encode()
}

func (c *Client) headers(withBody bool) map[string]string {
	h := map[string]string{}
	if c.Token != "" {
		h["Authorization"] = "Bearer " + c.Token
	}
	if withBody {
		h["Content-Type"] = "application/json"
	}
	return h
}

func (c *Client) getJSON(ctx context.Context, u string, stage errlog.Stage, op string, out interface{}) error {
	body, _, err := c.HTTP.Do(ctx, http.MethodGet, u, c.headers(false), nil, stage, op)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decoding response: %w", op, err)
	}
	return nil
}

// Venues

func (c *Client) FindVenuesByName(ctx context.Context, name string) ([]Venue, error) {
	u := c.endpoint("/venues", url.Values{"name": {name}})
	var out []Venue
	if err := c.getJSON(ctx, u, errlog.StageEntityResolution, "find venues", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetVenue(ctx context.Context, id string) (*Venue, error) {
	u := c.endpoint("/venues/"+id, nil)
	var out Venue
	if err := c.getJSON(ctx, u, errlog.StageEntityResolution, "get venue", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateVenue(ctx context.Context, v Venue) (*Venue, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	u := c.endpoint("/venues", nil)
	body, _, err := c.HTTP.Do(ctx, http.MethodPost, u, c.headers(true), payload, errlog.StageEntityResolution, "create venue")
	if err != nil {
		return nil, err
	}
	var out Venue
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("create venue: decoding response: %w", err)
	}
	return &out, nil
}

// UpdateVenue sends a partial update; only the fields present in patch
// are touched.
func (c *Client) UpdateVenue(ctx context.Context, id string, patch map[string]interface{}) error {
	payload, err := json.Marshal(patch)
	if err != nil {
		return err
	}
	u := c.endpoint("/venues/"+id, nil)
	_, _, err = c.HTTP.Do(ctx, http.MethodPut, u, c.headers(true), payload, errlog.StageEntityResolution, "update venue")
	return err
}

func (c *Client) NearestCities(ctx context.Context, lon, lat float64, limit int) ([]NearestCity, error) {
	q := url.Values{
		"longitude": {strconv.FormatFloat(lon, 'f', -1, 64)},
		"latitude":  {strconv.FormatFloat(lat, 'f', -1, 64)},
		"limit":     {strconv.Itoa(limit)},
	}
	u := c.endpoint("/venues/nearest-city", q)
	var out []NearestCity
	if err := c.getJSON(ctx, u, errlog.StageEntityResolution, "nearest city", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Organizers

// OrganizerQuery selects exactly one lookup key; the first non-empty
// field in btcNiceName, name, shortName order is used.
type OrganizerQuery struct {
	BTCNiceName string
	Name        string
	ShortName   string
}

func (c *Client) FindOrganizers(ctx context.Context, query OrganizerQuery) ([]Organizer, error) {
	q := url.Values{}
	switch {
	case query.BTCNiceName != "":
		q.Set("btcNiceName", query.BTCNiceName)
	case query.Name != "":
		q.Set("name", query.Name)
	case query.ShortName != "":
		q.Set("shortName", query.ShortName)
	default:
		return nil, fmt.Errorf("organizer query needs at least one key")
	}
	u := c.endpoint("/organizers", q)
	var out []Organizer
	if err := c.getJSON(ctx, u, errlog.StageEntityResolution, "find organizers", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Categories

func (c *Client) FindCategoryByName(ctx context.Context, name string) ([]Category, error) {
	u := c.endpoint("/categories", url.Values{"categoryName": {name}})
	var out []Category
	if err := c.getJSON(ctx, u, errlog.StageEntityResolution, "find category", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListCategories(ctx context.Context, limit int) ([]Category, error) {
	u := c.endpoint("/categories", url.Values{"limit": {strconv.Itoa(limit)}})
	var out []Category
	if err := c.getJSON(ctx, u, errlog.StageEntityResolution, "list categories", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Events

// EventsBetween returns target events in [start, end], plus the raw
// payload for the existing-events run artifact.
func (c *Client) EventsBetween(ctx context.Context, start, end time.Time) ([]Event, []byte, error) {
	q := url.Values{
		"start": {start.UTC().Format(time.RFC3339)},
		"end":   {end.UTC().Format(time.RFC3339)},
	}
	u := c.endpoint("/events", q)
	body, _, err := c.HTTP.Do(ctx, http.MethodGet, u, c.headers(false), nil, errlog.StageExtraction, "fetch target events")
	if err != nil {
		return nil, nil, err
	}
	var out []Event
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, body, fmt.Errorf("fetch target events: decoding response: %w", err)
	}
	return out, body, nil
}

func (c *Client) CreateEvent(ctx context.Context, ev Event) (*Event, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	u := c.endpoint("/events/post", nil)
	body, _, err := c.HTTP.Do(ctx, http.MethodPost, u, c.headers(true), payload, errlog.StageLoading, "create event")
	if err != nil {
		return nil, err
	}
	var out Event
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("create event: decoding response: %w", err)
	}
	return &out, nil
}

func (c *Client) DeleteEvent(ctx context.Context, id string) error {
	u := c.endpoint("/events/"+id, nil)
	_, _, err := c.HTTP.Do(ctx, http.MethodDelete, u, c.headers(false), nil, errlog.StageLoading, "delete event")
	return err
}
