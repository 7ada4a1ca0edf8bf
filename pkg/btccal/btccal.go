// Package btccal reads events from the BTC WordPress calendar API.
// The payloads are loosely structured (the organizer shows up as either a
// single object or an array, venue fields drift between installs), so
// parsing goes through gjson instead of rigid struct tags.
package btccal

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hubevents/btcimport/pkg/errlog"
	"github.com/hubevents/btcimport/pkg/retry"
	"github.com/tidwall/gjson"
)

const defaultPerPage = 50

type Venue struct {
	ID            int64
	Name          string
	Address       string
	City          string
	StateProvince string
}

type Organizer struct {
	ID   int64
	Name string
	Slug string
}

type Category struct {
	ID   int64
	Name string
	Slug string
}

// Event is one source calendar record. Timestamps stay as the calendar's
// "2006-01-02 15:04:05" strings; the mapper decides which pair to trust.
type Event struct {
	ID           int64
	Title        string
	Description  string
	StartDate    string
	EndDate      string
	UTCStartDate string
	UTCEndDate   string
	AllDay       bool
	Venue        Venue
	Organizers   []Organizer
	Categories   []Category
}

type Client struct {
	BaseURL string
	HTTP    *retry.Client
	PerPage int
}

func NewClient(baseURL string, http *retry.Client) *Client {
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: http, PerPage: defaultPerPage}
}

// EventsForDate fetches all events starting on the given calendar date.
// The raw payload is returned alongside the parsed events so the
// orchestrator can persist it untouched as a run artifact.
func (c *Client) EventsForDate(ctx context.Context, date time.Time) ([]Event, []byte, error) {
	day := date.Format("2006-01-02")
	u := fmt.Sprintf("%s/events?start_date=%s&end_date=%s&per_page=%d", c.BaseURL, day, day, c.PerPage)

	body, _, err := c.HTTP.Do(ctx, http.MethodGet, u, nil, nil, errlog.StageExtraction, "fetch source events")
	if err != nil {
		return nil, nil, fmt.Errorf("fetching events for %s: %w", day, err)
	}
	return ParseEvents(body), body, nil
}

// Organizers walks the paginated organizers listing. The page count comes
// from the X-WP-TotalPages header, falling back to a total_pages body
// field when the header is absent.
func (c *Client) Organizers(ctx context.Context) ([]Organizer, error) {
	var out []Organizer
	page, total := 1, 1
	for page <= total {
		u := fmt.Sprintf("%s/organizers?page=%d", c.BaseURL, page)
		body, resp, err := c.HTTP.Do(ctx, http.MethodGet, u, nil, nil, errlog.StageExtraction, "fetch source organizers")
		if err != nil {
			return nil, fmt.Errorf("fetching organizers page %d: %w", page, err)
		}
		if page == 1 {
			total = totalPages(resp, body)
		}
		gjson.GetBytes(body, "organizers").ForEach(func(_, o gjson.Result) bool {
			out = append(out, parseOrganizer(o))
			return true
		})
		page++
	}
	return out, nil
}

func totalPages(resp *http.Response, body []byte) int {
	if resp != nil {
		if h := resp.Header.Get("X-WP-TotalPages"); h != "" {
			if n, err := strconv.Atoi(h); err == nil && n > 0 {
				return n
			}
		}
	}
	if tp := gjson.GetBytes(body, "total_pages"); tp.Exists() && tp.Int() > 0 {
		return int(tp.Int())
	}
	return 1
}

// ParseEvents extracts the events array from a raw calendar payload.
func ParseEvents(body []byte) []Event {
	var out []Event
	gjson.GetBytes(body, "events").ForEach(func(_, ev gjson.Result) bool {
		e := Event{
			ID:           ev.Get("id").Int(),
			Title:        ev.Get("title").String(),
			Description:  ev.Get("description").String(),
			StartDate:    ev.Get("start_date").String(),
			EndDate:      ev.Get("end_date").String(),
			UTCStartDate: ev.Get("utc_start_date").String(),
			UTCEndDate:   ev.Get("utc_end_date").String(),
			AllDay:       ev.Get("all_day").Bool(),
		}

		if v := ev.Get("venue"); v.Exists() && v.IsObject() {
			e.Venue = Venue{
				ID:            v.Get("id").Int(),
				Name:          firstNonEmpty(v.Get("venue").String(), v.Get("name").String()),
				Address:       v.Get("address").String(),
				City:          v.Get("city").String(),
				StateProvince: firstNonEmpty(v.Get("state_province").String(), v.Get("state").String()),
			}
		}

		// Organizer: single object on some installs, array on others.
		if org := ev.Get("organizer"); org.Exists() {
			if org.IsArray() {
				org.ForEach(func(_, o gjson.Result) bool {
					e.Organizers = append(e.Organizers, parseOrganizer(o))
					return true
				})
			} else if org.IsObject() {
				e.Organizers = append(e.Organizers, parseOrganizer(org))
			}
		}

		ev.Get("categories").ForEach(func(_, cat gjson.Result) bool {
			e.Categories = append(e.Categories, Category{
				ID:   cat.Get("id").Int(),
				Name: cat.Get("name").String(),
				Slug: cat.Get("slug").String(),
			})
			return true
		})

		out = append(out, e)
		return true
	})
	return out
}

func parseOrganizer(o gjson.Result) Organizer {
	return Organizer{
		ID:   o.Get("id").Int(),
		Name: firstNonEmpty(o.Get("organizer").String(), o.Get("name").String()),
		Slug: o.Get("slug").String(),
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
