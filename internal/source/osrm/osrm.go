// Package osrm computes driving distances with the OSRM route service.
package osrm

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/JakeFAU/municipal-distances/internal/geo"
	"github.com/JakeFAU/municipal-distances/internal/source"
)

// DefaultURL is the public OSRM demo server.
const DefaultURL = "https://router.project-osrm.org"

const codeOK = "Ok"

// Client queries driving routes.
type Client struct {
	getter  source.Getter
	baseURL string
}

// New builds a Client. An empty baseURL uses DefaultURL.
func New(getter source.Getter, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Client{getter: getter, baseURL: strings.TrimRight(baseURL, "/")}
}

type routeResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance *float64 `json:"distance"`
	} `json:"routes"`
}

// RouteURL renders the request URL. OSRM expects lon,lat order.
func (c *Client) RouteURL(origin, dest geo.Coordinate) string {
	return fmt.Sprintf("%s/route/v1/driving/%s,%s;%s,%s?overview=false&alternatives=false",
		c.baseURL,
		formatDegrees(origin.Lon), formatDegrees(origin.Lat),
		formatDegrees(dest.Lon), formatDegrees(dest.Lat),
	)
}

// Route returns the primary route distance in meters. ok is false when the
// service answered without a usable distance, including non-2xx statuses.
func (c *Client) Route(ctx context.Context, origin, dest geo.Coordinate) (float64, bool, error) {
	resp, err := c.getter.Get(ctx, c.RouteURL(origin, dest))
	if err != nil {
		return 0, false, fmt.Errorf("route: %w", err)
	}
	if !resp.OK() {
		return 0, false, nil
	}
	var body routeResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return 0, false, fmt.Errorf("decode route: %w", err)
	}
	if body.Code != "" && body.Code != codeOK {
		return 0, false, nil
	}
	if len(body.Routes) == 0 || body.Routes[0].Distance == nil {
		return 0, false, nil
	}
	return *body.Routes[0].Distance, true, nil
}

func formatDegrees(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
