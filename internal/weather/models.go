package weather

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCoordinates is returned when a coordinate pair is out of bounds.
	ErrInvalidCoordinates = errors.New("coordinates out of bounds")

	// ErrInvalidParams is returned when a requested hourly parameter set is rejected.
	ErrInvalidParams = errors.New("invalid weather parameters")

	// ErrHourOutOfRange is returned when the nearest-hour rule rounds a request
	// past the last hourly bucket of the forecast day.
	ErrHourOutOfRange = errors.New("requested time rounds past the end of the forecast day")
)

// Coordinates is a geographic point. Latitude must be within [-90, 90] and
// longitude within [-180, 180]; a pair is validated at every boundary that
// constructs one from external input.
type Coordinates struct {
	Latitude  float64 `json:"latitude" validate:"min=-90,max=90"`
	Longitude float64 `json:"longitude" validate:"min=-180,max=180"`
}

// Validate checks the coordinate bounds.
func (c Coordinates) Validate() error {
	if c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("%w: latitude %v", ErrInvalidCoordinates, c.Latitude)
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("%w: longitude %v", ErrInvalidCoordinates, c.Longitude)
	}
	return nil
}

// Snapshot is the normalized current-weather shape: exactly the three fields
// the upstream current mode is queried for, renamed to our own names.
type Snapshot struct {
	Temperature float64 `json:"temperature"`
	WindSpeed   float64 `json:"wind_speed"`
	Pressure    float64 `json:"pressure"`
}

// TrackedCity is one registry row as seen by the refresh sweep.
type TrackedCity struct {
	UserID int64
	Name   string
	Coords Coordinates
}

// HourlySeries is the upstream hourly payload, passed through without
// renaming: one ordered per-hour sequence per requested parameter plus the
// parallel time axis.
type HourlySeries struct {
	Time   []string
	Values map[string][]float64
}

// At returns the value of param at the given hour index.
func (h HourlySeries) At(param string, hour int) (float64, bool) {
	vals, ok := h.Values[param]
	if !ok || hour < 0 || hour >= len(vals) {
		return 0, false
	}
	return vals[hour], true
}

// AllowedHourlyParams is the fixed allow-list for forecast-hour queries.
var AllowedHourlyParams = []string{
	"temperature_2m",
	"wind_speed_10m",
	"precipitation",
	"relative_humidity_2m",
}

// ValidateParams rejects empty sets, duplicates and parameters outside the
// allow-list.
func ValidateParams(params []string) error {
	if len(params) == 0 {
		return fmt.Errorf("%w: at least one parameter is required", ErrInvalidParams)
	}

	seen := make(map[string]struct{}, len(params))
	for _, p := range params {
		if _, dup := seen[p]; dup {
			return fmt.Errorf("%w: duplicate parameter %q", ErrInvalidParams, p)
		}
		seen[p] = struct{}{}

		allowed := false
		for _, a := range AllowedHourlyParams {
			if p == a {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("%w: %q is not one of %v", ErrInvalidParams, p, AllowedHourlyParams)
		}
	}
	return nil
}

// TimeOfDay is a wall-clock time without a date, decoded from "15:04" or
// "15:04:05" strings.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t *TimeOfDay) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}

	parsed, err := time.Parse("15:04:05", s)
	if err != nil {
		parsed, err = time.Parse("15:04", s)
		if err != nil {
			return fmt.Errorf("invalid time of day %q; use HH:MM or HH:MM:SS", s)
		}
	}

	t.Hour = parsed.Hour()
	t.Minute = parsed.Minute()
	return nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// ForecastHour rounds a time of day to its nearest hourly bucket: past the
// half hour the next bucket is used. A request rounding to hour 24 falls off
// the single forecast day and is rejected rather than wrapped.
func ForecastHour(t TimeOfDay) (int, error) {
	hour := t.Hour
	if t.Minute > 30 {
		hour++
	}
	if hour > 23 {
		return 0, ErrHourOutOfRange
	}
	return hour, nil
}
