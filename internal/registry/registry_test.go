package registry

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/weather-tracker/internal/weather"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "weather.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func TestRegisterUserIdempotent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first, err := store.RegisterUser(ctx, "alice")
	require.NoError(t, err)
	assert.Positive(t, first)

	second, err := store.RegisterUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, first, second, "re-registering a login must return the existing id")

	other, err := store.RegisterUser(ctx, "bob")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestAddCityRejectsDuplicate(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	userID, err := store.RegisterUser(ctx, "alice")
	require.NoError(t, err)

	coords := weather.Coordinates{Latitude: 55.75, Longitude: 37.62}
	require.NoError(t, store.AddCity(ctx, userID, "Moscow", coords, nil))

	err = store.AddCity(ctx, userID, "Moscow", coords, nil)
	assert.ErrorIs(t, err, ErrAlreadyTracked)

	cities, err := store.ListCities(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Moscow"}, cities, "duplicate add must not create a second row")
}

func TestAddCitySameNameDifferentUsers(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	alice, err := store.RegisterUser(ctx, "alice")
	require.NoError(t, err)
	bob, err := store.RegisterUser(ctx, "bob")
	require.NoError(t, err)

	coords := weather.Coordinates{Latitude: 48.85, Longitude: 2.35}
	require.NoError(t, store.AddCity(ctx, alice, "Paris", coords, nil))
	require.NoError(t, store.AddCity(ctx, bob, "Paris", coords, nil),
		"different users may track the same city name")
}

func TestAddCityUnknownUser(t *testing.T) {
	store := openTestStore(t)

	err := store.AddCity(context.Background(), 42, "Moscow", weather.Coordinates{}, nil)
	assert.ErrorIs(t, err, ErrUnknownUser)
}

func TestListCitiesUnknownUser(t *testing.T) {
	store := openTestStore(t)

	_, err := store.ListCities(context.Background(), 42)
	assert.ErrorIs(t, err, ErrUnknownUser)
}

func TestListCitiesDeterministicOrder(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	userID, err := store.RegisterUser(ctx, "alice")
	require.NoError(t, err)

	for _, name := range []string{"Oslo", "Berlin", "Madrid"} {
		require.NoError(t, store.AddCity(ctx, userID, name, weather.Coordinates{}, nil))
	}

	cities, err := store.ListCities(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Berlin", "Madrid", "Oslo"}, cities)
}

func TestCoordinatesNotTracked(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	userID, err := store.RegisterUser(ctx, "alice")
	require.NoError(t, err)

	_, err = store.Coordinates(ctx, userID, "Moscow")
	assert.ErrorIs(t, err, ErrNotTracked)
}

func TestUpdateWeatherPreservesCoordinates(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	userID, err := store.RegisterUser(ctx, "alice")
	require.NoError(t, err)

	coords := weather.Coordinates{Latitude: 55.75, Longitude: 37.62}
	require.NoError(t, store.AddCity(ctx, userID, "Moscow", coords, nil))

	_, ok, err := store.Snapshot(ctx, userID, "Moscow")
	require.NoError(t, err)
	assert.False(t, ok, "no snapshot expected before the first refresh")

	snap := weather.Snapshot{Temperature: -7.5, WindSpeed: 4.1, Pressure: 1013.2}
	require.NoError(t, store.UpdateWeather(ctx, userID, "Moscow", snap))

	stored, ok, err := store.Snapshot(ctx, userID, "Moscow")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, snap, stored)

	got, err := store.Coordinates(ctx, userID, "Moscow")
	require.NoError(t, err)
	assert.Equal(t, coords, got, "a weather refresh must not touch coordinates")
}

func TestUpdateWeatherNotTracked(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	userID, err := store.RegisterUser(ctx, "alice")
	require.NoError(t, err)

	err = store.UpdateWeather(ctx, userID, "Moscow", weather.Snapshot{})
	assert.ErrorIs(t, err, ErrNotTracked)
}

func TestListAllAcrossUsers(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	alice, err := store.RegisterUser(ctx, "alice")
	require.NoError(t, err)
	bob, err := store.RegisterUser(ctx, "bob")
	require.NoError(t, err)

	require.NoError(t, store.AddCity(ctx, alice, "Moscow", weather.Coordinates{Latitude: 55.75, Longitude: 37.62}, nil))
	require.NoError(t, store.AddCity(ctx, bob, "Paris", weather.Coordinates{Latitude: 48.85, Longitude: 2.35}, nil))

	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Moscow", all[0].Name)
	assert.Equal(t, alice, all[0].UserID)
	assert.Equal(t, 55.75, all[0].Coords.Latitude)
	assert.Equal(t, "Paris", all[1].Name)
}

func TestConcurrentAddCityExactlyOneWins(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	userID, err := store.RegisterUser(ctx, "alice")
	require.NoError(t, err)

	coords := weather.Coordinates{Latitude: 55.75, Longitude: 37.62}

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = store.AddCity(ctx, userID, "Moscow", coords, nil)
		}(i)
	}
	wg.Wait()

	var successes, duplicates int
	for _, err := range results {
		switch {
		case err == nil:
			successes++
		case assert.ErrorIs(t, err, ErrAlreadyTracked):
			duplicates++
		}
	}
	assert.Equal(t, 1, successes, "exactly one concurrent add must win")
	assert.Equal(t, 1, duplicates)

	cities, err := store.ListCities(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, cities, 1)
}
