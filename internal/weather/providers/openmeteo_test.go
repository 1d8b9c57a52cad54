package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/example/weather-tracker/internal/weather"
)

// newTestProvider points the client at a fake upstream and shrinks the retry
// backoff so failure tests stay fast.
func newTestProvider(upstreamURL string) *OpenMeteoProvider {
	p := NewOpenMeteoProvider(&http.Client{Timeout: 2 * time.Second})
	p.baseURL = upstreamURL
	p.httpCfg.Backoff = BackoffConfig{
		MaxRetries:      1,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
	}
	return p
}

func TestFetchCurrentNormalizesFields(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"current":{"temperature_2m":21.4,"wind_speed_10m":3.2,"surface_pressure":1008.1}}`))
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	snap, err := p.FetchCurrent(context.Background(), weather.Coordinates{Latitude: 55.75, Longitude: 37.62})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := weather.Snapshot{Temperature: 21.4, WindSpeed: 3.2, Pressure: 1008.1}
	if snap != want {
		t.Errorf("got %+v, want %+v", snap, want)
	}

	if got := gotQuery.Get("current"); got != "temperature_2m,wind_speed_10m,surface_pressure" {
		t.Errorf("unexpected current params: %q", got)
	}
	if got := gotQuery.Get("forecast_days"); got != "1" {
		t.Errorf("forecast_days = %q, want 1", got)
	}
}

func TestFetchCurrentUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	_, err := p.FetchCurrent(context.Background(), weather.Coordinates{})
	if !errors.Is(err, weather.ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
}

func TestFetchCurrentMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"current":{"temperature_2m":"warm"}}`))
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	_, err := p.FetchCurrent(context.Background(), weather.Coordinates{})
	if !errors.Is(err, weather.ErrUpstreamProtocol) {
		t.Fatalf("expected ErrUpstreamProtocol, got %v", err)
	}
}

func TestFetchCurrentMissingFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"current":{"temperature_2m":20.0}}`))
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	_, err := p.FetchCurrent(context.Background(), weather.Coordinates{})
	if !errors.Is(err, weather.ErrUpstreamProtocol) {
		t.Fatalf("expected ErrUpstreamProtocol for partial current block, got %v", err)
	}
}

func TestFetchHourlyPassthrough(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`{"hourly":{
			"time":["2024-01-01T00:00","2024-01-01T01:00"],
			"temperature_2m":[1.1,2.2],
			"precipitation":[0,0.4]
		}}`))
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	series, err := p.FetchHourly(context.Background(), weather.Coordinates{},
		[]string{"temperature_2m", "precipitation"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(series.Time) != 2 {
		t.Errorf("time axis length = %d, want 2", len(series.Time))
	}
	if v, ok := series.At("temperature_2m", 1); !ok || v != 2.2 {
		t.Errorf("temperature_2m[1] = (%v, %v), want (2.2, true)", v, ok)
	}
	if v, ok := series.At("precipitation", 1); !ok || v != 0.4 {
		t.Errorf("precipitation[1] = (%v, %v), want (0.4, true)", v, ok)
	}
	if _, ok := series.Values["time"]; ok {
		t.Error("time axis must not appear among values")
	}

	if got := gotQuery.Get("hourly"); got != "temperature_2m,precipitation" {
		t.Errorf("hourly params = %q", got)
	}
}

func TestFetchHourlyMissingBlock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	_, err := p.FetchHourly(context.Background(), weather.Coordinates{}, []string{"temperature_2m"})
	if !errors.Is(err, weather.ErrUpstreamProtocol) {
		t.Fatalf("expected ErrUpstreamProtocol, got %v", err)
	}
}
