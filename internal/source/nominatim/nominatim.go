// Package nominatim geocodes free-text queries with the OpenStreetMap
// Nominatim search API.
package nominatim

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/JakeFAU/municipal-distances/internal/geo"
	"github.com/JakeFAU/municipal-distances/internal/source"
)

// DefaultURL is the public search endpoint.
const DefaultURL = "https://nominatim.openstreetmap.org/search"

// Client resolves queries to at most one coordinate.
type Client struct {
	getter  source.Getter
	baseURL string
}

// New builds a Client. An empty baseURL uses DefaultURL.
func New(getter source.Getter, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Client{getter: getter, baseURL: baseURL}
}

type place struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// SearchURL renders the request URL for query.
func (c *Client) SearchURL(query string) string {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "jsonv2")
	params.Set("limit", "1")
	params.Set("addressdetails", "0")
	sep := "?"
	if strings.Contains(c.baseURL, "?") {
		sep = "&"
	}
	return c.baseURL + sep + params.Encode()
}

// Geocode returns the best match for query. An empty result list is not an
// error.
func (c *Client) Geocode(ctx context.Context, query string) (geo.Coordinate, bool, error) {
	resp, err := c.getter.Get(ctx, c.SearchURL(query))
	if err != nil {
		return geo.Coordinate{}, false, fmt.Errorf("geocode %q: %w", query, err)
	}
	if err := resp.CheckStatus(); err != nil {
		return geo.Coordinate{}, false, fmt.Errorf("geocode %q: %w", query, err)
	}
	var places []place
	if err := json.Unmarshal(resp.Body, &places); err != nil {
		return geo.Coordinate{}, false, fmt.Errorf("decode geocode %q: %w", query, err)
	}
	if len(places) == 0 {
		return geo.Coordinate{}, false, nil
	}
	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return geo.Coordinate{}, false, fmt.Errorf("parse latitude %q: %w", places[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return geo.Coordinate{}, false, fmt.Errorf("parse longitude %q: %w", places[0].Lon, err)
	}
	if !finite(lat) || !finite(lon) {
		return geo.Coordinate{}, false, nil
	}
	return geo.Coordinate{Lat: lat, Lon: lon}, true, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
