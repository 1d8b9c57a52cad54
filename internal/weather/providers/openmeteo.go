package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/example/weather-tracker/internal/weather"
	"github.com/sony/gobreaker"
)

// currentParams are the upstream field names queried in current mode. The
// response is renamed onto the normalized Snapshot; hourly mode passes field
// names through untouched.
var currentParams = []string{"temperature_2m", "wind_speed_10m", "surface_pressure"}

// OpenMeteoProvider implements the weather.Provider interface for Open-Meteo.
type OpenMeteoProvider struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewOpenMeteoProvider(client *http.Client) *OpenMeteoProvider {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openmeteo",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &OpenMeteoProvider{
		name:    "openmeteo",
		baseURL: "https://api.open-meteo.com/v1/forecast",
		httpCfg: HTTPClientConfig{
			Client: client,
			Backoff: BackoffConfig{
				MaxRetries:      3,
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     5 * time.Second,
			},
		},
		circuit: cb,
	}
}

func (p *OpenMeteoProvider) Name() string {
	return p.name
}

// FetchCurrent queries current mode and normalizes the three upstream fields
// onto a Snapshot.
func (p *OpenMeteoProvider) FetchCurrent(ctx context.Context, coords weather.Coordinates) (weather.Snapshot, error) {
	resp, err := p.get(ctx, coords, "current", currentParams)
	if err != nil {
		return weather.Snapshot{}, err
	}
	defer resp.Body.Close()

	var payload struct {
		Current struct {
			Temperature2M   *float64 `json:"temperature_2m"`
			WindSpeed10M    *float64 `json:"wind_speed_10m"`
			SurfacePressure *float64 `json:"surface_pressure"`
		} `json:"current"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return weather.Snapshot{}, fmt.Errorf("%w: %v", weather.ErrUpstreamProtocol, err)
	}

	cur := payload.Current
	if cur.Temperature2M == nil || cur.WindSpeed10M == nil || cur.SurfacePressure == nil {
		return weather.Snapshot{}, fmt.Errorf("%w: current block is missing fields", weather.ErrUpstreamProtocol)
	}

	return weather.Snapshot{
		Temperature: *cur.Temperature2M,
		WindSpeed:   *cur.WindSpeed10M,
		Pressure:    *cur.SurfacePressure,
	}, nil
}

// FetchHourly queries hourly mode for the given parameters and returns the
// payload as-is: a 24-entry series per parameter plus the time axis.
func (p *OpenMeteoProvider) FetchHourly(ctx context.Context, coords weather.Coordinates, params []string) (weather.HourlySeries, error) {
	resp, err := p.get(ctx, coords, "hourly", params)
	if err != nil {
		return weather.HourlySeries{}, err
	}
	defer resp.Body.Close()

	var payload struct {
		Hourly map[string]json.RawMessage `json:"hourly"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return weather.HourlySeries{}, fmt.Errorf("%w: %v", weather.ErrUpstreamProtocol, err)
	}
	if payload.Hourly == nil {
		return weather.HourlySeries{}, fmt.Errorf("%w: hourly block is missing", weather.ErrUpstreamProtocol)
	}

	series := weather.HourlySeries{Values: make(map[string][]float64, len(payload.Hourly))}
	for key, raw := range payload.Hourly {
		if key == "time" {
			if err := json.Unmarshal(raw, &series.Time); err != nil {
				return weather.HourlySeries{}, fmt.Errorf("%w: bad time axis: %v", weather.ErrUpstreamProtocol, err)
			}
			continue
		}

		var vals []float64
		if err := json.Unmarshal(raw, &vals); err != nil {
			return weather.HourlySeries{}, fmt.Errorf("%w: bad series %q: %v", weather.ErrUpstreamProtocol, key, err)
		}
		series.Values[key] = vals
	}

	return series, nil
}

func (p *OpenMeteoProvider) get(ctx context.Context, coords weather.Coordinates, mode string, params []string) (*http.Response, error) {
	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", fmt.Sprintf("%f", coords.Latitude))
		values.Set("longitude", fmt.Sprintf("%f", coords.Longitude))
		values.Set(mode, strings.Join(params, ","))
		values.Set("forecast_days", "1")

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		req, err := http.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		return req, nil
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", weather.ErrUpstreamUnavailable, err)
	}
	return resp, nil
}
