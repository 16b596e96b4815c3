package wikipedia

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"

	"wikimap/pkg/model"
	"wikimap/pkg/request"
)

const (
	// MaxRadius is the largest geosearch radius the API accepts, in meters.
	MaxRadius = 10000
	// MaxLimit is the largest number of pages one geosearch returns.
	MaxLimit = 500
)

// Client handles Wikipedia API interactions.
type Client struct {
	request     *request.Client
	Lang        string
	ThumbWidth  int
	APIEndpoint string // Optional override for testing
}

// NewClient creates a new Wikipedia client for the given language edition.
func NewClient(r *request.Client, lang string, thumbWidth int) *Client {
	if lang == "" {
		lang = "en"
	}
	return &Client{request: r, Lang: lang, ThumbWidth: thumbWidth}
}

func (c *Client) endpoint() string {
	if c.APIEndpoint != "" {
		return c.APIEndpoint
	}
	return fmt.Sprintf("https://%s.wikipedia.org/w/api.php", c.Lang)
}

// GeoSearch returns the articles within radius meters of (lat, lon), nearest
// first, with coordinates and thumbnail dimensions.
// The radius is clamped to the API maximum; limit <= 0 means MaxLimit.
func (c *Client) GeoSearch(ctx context.Context, lat, lon, radius float64, limit int) ([]model.Feature, error) {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return nil, fmt.Errorf("geosearch: invalid center %v,%v", lat, lon)
	}
	if limit <= 0 || limit > MaxLimit {
		limit = MaxLimit
	}
	r := int(math.Round(math.Max(10, math.Min(radius, MaxRadius))))

	u, err := url.Parse(c.endpoint())
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	q := u.Query()
	q.Set("action", "query")
	q.Set("format", "json")
	q.Set("formatversion", "2")
	q.Set("generator", "geosearch")
	q.Set("ggscoord", fmt.Sprintf("%.6f|%.6f", lat, lon))
	q.Set("ggsradius", strconv.Itoa(r))
	q.Set("ggslimit", strconv.Itoa(limit))
	q.Set("prop", "coordinates|pageimages|info")
	q.Set("colimit", "max")
	q.Set("inprop", "url")
	q.Set("piprop", "thumbnail")
	q.Set("pilimit", "max")
	if c.ThumbWidth > 0 {
		q.Set("pithumbsize", strconv.Itoa(c.ThumbWidth))
	}
	u.RawQuery = q.Encode()

	body, err := c.request.Get(ctx, u.String(), "")
	if err != nil {
		return nil, fmt.Errorf("geosearch: %w", err)
	}

	features, err := parseGeoSearch(body)
	if err != nil {
		return nil, err
	}
	if len(features) == 0 {
		c.request.Tracker().TrackAPIZero("wikipedia")
	}
	return features, nil
}

type geoSearchResponse struct {
	Error *struct {
		Code string `json:"code"`
		Info string `json:"info"`
	} `json:"error,omitempty"`
	Query struct {
		Pages []geoPage `json:"pages"`
	} `json:"query"`
}

type geoPage struct {
	PageID      int64  `json:"pageid"`
	Title       string `json:"title"`
	FullURL     string `json:"fullurl"`
	Index       int    `json:"index"`
	Coordinates []struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"coordinates"`
	Thumbnail *struct {
		Source string `json:"source"`
		Width  int    `json:"width"`
		Height int    `json:"height"`
	} `json:"thumbnail,omitempty"`
}

// parseGeoSearch decodes a generator=geosearch response. Pages without
// coordinates are dropped; the generator index gives the distance order.
func parseGeoSearch(body []byte) ([]model.Feature, error) {
	var resp geoSearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode json: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("geosearch api error %s: %s", resp.Error.Code, resp.Error.Info)
	}

	pages := resp.Query.Pages
	sort.SliceStable(pages, func(i, j int) bool { return pages[i].Index < pages[j].Index })

	features := make([]model.Feature, 0, len(pages))
	for i := range pages {
		p := &pages[i]
		if p.PageID == 0 || len(p.Coordinates) == 0 {
			continue
		}
		f := model.Feature{
			PageID: p.PageID,
			Title:  p.Title,
			URL:    p.FullURL,
			Lat:    p.Coordinates[0].Lat,
			Lon:    p.Coordinates[0].Lon,
		}
		if p.Thumbnail != nil {
			f.ThumbURL = p.Thumbnail.Source
			f.ThumbWidth = p.Thumbnail.Width
			f.ThumbHeight = p.Thumbnail.Height
		}
		features = append(features, f)
	}
	return features, nil
}
