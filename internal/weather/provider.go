package weather

import (
	"context"
	"errors"
)

var (
	// ErrUpstreamUnavailable covers network failures, timeouts and non-2xx
	// statuses from the upstream provider.
	ErrUpstreamUnavailable = errors.New("weather provider is unreachable")

	// ErrUpstreamProtocol covers responses that arrive but do not have the
	// expected shape.
	ErrUpstreamProtocol = errors.New("unexpected weather provider response")
)

// Provider abstracts the upstream weather API.
type Provider interface {
	// FetchCurrent returns the normalized current conditions at coords.
	FetchCurrent(ctx context.Context, coords Coordinates) (Snapshot, error)

	// FetchHourly returns today's per-hour series for the given parameters,
	// unmodified apart from decoding.
	FetchHourly(ctx context.Context, coords Coordinates, params []string) (HourlySeries, error)
}

// Registry is the slice of the city registry the query service needs.
type Registry interface {
	Coordinates(ctx context.Context, userID int64, city string) (Coordinates, error)
}
