package provider

import (
	"context"
	"net/url"
	"strconv"

	"bnappcal/internal/dateutil"
	appLog "bnappcal/internal/log"
	"bnappcal/internal/model"
)

// Forecast is the parsed weather response: daily entries keyed by DateKey and
// the current snapshot, which may be absent.
type Forecast struct {
	Daily   map[string]model.WeatherEntry
	Current *model.CurrentWeather
}

type openMeteoResponse struct {
	Daily *struct {
		Time        []string   `json:"time"`
		WeatherCode []*int     `json:"weathercode"`
		TempMax     []*float64 `json:"temperature_2m_max"`
		TempMin     []*float64 `json:"temperature_2m_min"`
	} `json:"daily"`
	CurrentWeather *model.CurrentWeather `json:"current_weather"`
}

// Weather fetches the daily forecast and current conditions for city.
// The daily arrays are parallel; an index missing from any of them is skipped.
func (c *Client) Weather(ctx context.Context, city model.City) (Forecast, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(city.Lat, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(city.Lon, 'f', -1, 64))
	q.Set("current_weather", "true")
	q.Set("daily", "weathercode,temperature_2m_max,temperature_2m_min")
	q.Set("timezone", "auto")

	var resp openMeteoResponse
	if err := c.f.GetJSON(ctx, "open-meteo", c.ep.OpenMeteo+"/v1/forecast?"+q.Encode(), &resp); err != nil {
		return Forecast{}, err
	}

	out := Forecast{
		Daily:   make(map[string]model.WeatherEntry),
		Current: resp.CurrentWeather,
	}
	if d := resp.Daily; d != nil {
		for i, key := range d.Time {
			if !dateutil.ValidKey(key) || i >= len(d.WeatherCode) || i >= len(d.TempMax) || i >= len(d.TempMin) {
				continue
			}
			if d.WeatherCode[i] == nil || d.TempMax[i] == nil || d.TempMin[i] == nil {
				continue
			}
			out.Daily[key] = model.WeatherEntry{
				Code: *d.WeatherCode[i],
				TMax: *d.TempMax[i],
				TMin: *d.TempMin[i],
			}
		}
	}
	appLog.Info("weather fetched", "city", city.Name, "days", len(out.Daily), "current", out.Current != nil)
	return out, nil
}

// Emoji maps a WMO weather code to a symbol. A nil code is "unknown".
func Emoji(code *int) string {
	const unknown = "🌡"
	if code == nil {
		return unknown
	}
	switch c := *code; {
	case c == 0:
		return "☀️"
	case c == 1 || c == 2:
		return "🌤"
	case c == 3:
		return "☁️"
	case c >= 45 && c <= 48:
		return "🌫"
	case c >= 51 && c <= 67:
		return "🌦"
	case c >= 71 && c <= 77:
		return "❄️"
	case c >= 80 && c <= 82:
		return "🌧"
	case c >= 95:
		return "⛈"
	default:
		return unknown
	}
}
