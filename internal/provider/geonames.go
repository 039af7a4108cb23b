package provider

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	appLog "bnappcal/internal/log"
	"bnappcal/internal/model"
)

const maxCityRows = 10

type geonamesResponse struct {
	Geonames []struct {
		Name        string `json:"name"`
		CountryName string `json:"countryName"`
		Lat         string `json:"lat"`
		Lng         string `json:"lng"`
		Timezone    *struct {
			TimeZoneID string `json:"timeZoneId"`
		} `json:"timezone"`
	} `json:"geonames"`
	// GeoNames reports errors (bad username, quota) with HTTP 200.
	Status *struct {
		Message string `json:"message"`
		Value   int    `json:"value"`
	} `json:"status"`
}

// SearchCities looks up cities by name. Results without usable coordinates
// are skipped; a missing time zone falls back to fallbackTZ.
func (c *Client) SearchCities(ctx context.Context, query, fallbackTZ string) ([]model.City, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("city search: empty query")
	}
	q := url.Values{}
	q.Set("q", query)
	q.Set("maxRows", strconv.Itoa(maxCityRows))
	q.Set("username", c.ep.GeoNamesUser)
	q.Set("style", "FULL")

	var resp geonamesResponse
	if err := c.f.GetJSON(ctx, "geonames", c.ep.GeoNames+"/searchJSON?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	if resp.Status != nil {
		return nil, fmt.Errorf("geonames: %s (code %d)", resp.Status.Message, resp.Status.Value)
	}

	out := make([]model.City, 0, len(resp.Geonames))
	for _, g := range resp.Geonames {
		lat, errLat := strconv.ParseFloat(g.Lat, 64)
		lon, errLon := strconv.ParseFloat(g.Lng, 64)
		if errLat != nil || errLon != nil {
			appLog.Debug("geonames result without coordinates", "name", g.Name)
			continue
		}
		tz := fallbackTZ
		if g.Timezone != nil && g.Timezone.TimeZoneID != "" {
			tz = g.Timezone.TimeZoneID
		}
		name := g.Name
		if g.CountryName != "" {
			name += ", " + g.CountryName
		}
		out = append(out, model.City{Name: name, Lat: lat, Lon: lon, TZID: tz})
	}
	appLog.Info("city search", "query", query, "results", len(out))
	return out, nil
}
