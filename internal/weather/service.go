package weather

import (
	"context"
	"fmt"
)

// Service answers on-demand weather queries. It never caches city state:
// every query re-reads the registry, which is the single source of truth.
type Service struct {
	registry Registry
	provider Provider
}

// NewService creates a new Service.
func NewService(registry Registry, provider Provider) *Service {
	return &Service{
		registry: registry,
		provider: provider,
	}
}

// CurrentWeather returns the current conditions at the given coordinates.
// It is a pass-through to the provider with no persistence side effect.
func (s *Service) CurrentWeather(ctx context.Context, coords Coordinates) (Snapshot, error) {
	if err := coords.Validate(); err != nil {
		return Snapshot{}, err
	}
	return s.provider.FetchCurrent(ctx, coords)
}

// CityWeatherAt returns the requested hourly parameters for a tracked city at
// the hour nearest to the given time of day. Validation and the registry
// lookup both happen before any upstream call, so an untracked city costs
// nothing upstream.
func (s *Service) CityWeatherAt(ctx context.Context, userID int64, city string, at TimeOfDay, params []string) (map[string]float64, error) {
	if err := ValidateParams(params); err != nil {
		return nil, err
	}

	hour, err := ForecastHour(at)
	if err != nil {
		return nil, err
	}

	coords, err := s.registry.Coordinates(ctx, userID, city)
	if err != nil {
		return nil, err
	}

	series, err := s.provider.FetchHourly(ctx, coords, params)
	if err != nil {
		return nil, err
	}

	result := make(map[string]float64, len(params))
	for _, p := range params {
		v, ok := series.At(p, hour)
		if !ok {
			return nil, fmt.Errorf("%w: no value for %q at hour %d", ErrUpstreamProtocol, p, hour)
		}
		result[p] = v
	}

	return result, nil
}
