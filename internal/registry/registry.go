// Package registry is the durable city registry: the mapping from
// (user, city name) to coordinates and last-known weather. It is the single
// source of truth shared by the HTTP handlers and the refresh sweep; callers
// never cache rows across requests.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/weather-tracker/internal/common"
	"github.com/example/weather-tracker/internal/weather"

	_ "modernc.org/sqlite"
)

var (
	// ErrUnknownUser is returned when the referenced user id does not exist.
	ErrUnknownUser = errors.New("user does not exist")

	// ErrNotTracked is returned when the (user, city) pair is not in the registry.
	ErrNotTracked = errors.New("city is not tracked")

	// ErrAlreadyTracked is returned when the (user, city) pair already exists.
	ErrAlreadyTracked = errors.New("city is already tracked")
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id    INTEGER PRIMARY KEY AUTOINCREMENT,
	login TEXT UNIQUE NOT NULL
);

CREATE TABLE IF NOT EXISTS weather (
	city        TEXT NOT NULL,
	user_id     INTEGER NOT NULL,
	temperature REAL,
	wind_speed  REAL,
	pressure    REAL,
	latitude    REAL NOT NULL,
	longitude   REAL NOT NULL,
	PRIMARY KEY (city, user_id),
	FOREIGN KEY (user_id) REFERENCES users(id)
);
`

// Store is a SQLite-backed registry. All mutations run in per-operation
// transactions and every statement is parameterized; check-then-act races are
// closed by the composite primary key and the foreign key, not by pre-checks.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and prepares the connection.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open registry database: %w", err)
	}

	return &Store{db: db}, nil
}

// Migrate creates the schema if it does not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate registry schema: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// withTx runs fn in a transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("transaction failed (rollback error: %v): %w", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// mapConstraintErr translates SQLite constraint violations into registry
// errors. The uniqueness of (city, user_id) and the user foreign key are
// enforced by the engine itself, so a violation here is the authoritative
// signal, atomic under any interleaving of callers.
func mapConstraintErr(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if common.HasAny(msg, "UNIQUE constraint failed") {
		return ErrAlreadyTracked
	}
	if common.HasAny(msg, "FOREIGN KEY constraint failed", "foreign key constraint") {
		return ErrUnknownUser
	}
	return err
}

// RegisterUser creates a user for login, or returns the existing id when the
// login is already registered. Idempotent.
func (s *Store) RegisterUser(ctx context.Context, login string) (int64, error) {
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO users (login) VALUES (?) ON CONFLICT (login) DO NOTHING`, login,
		); err != nil {
			return err
		}
		return tx.QueryRowContext(ctx,
			`SELECT id FROM users WHERE login = ?`, login,
		).Scan(&id)
	})
	if err != nil {
		return 0, fmt.Errorf("register user: %w", err)
	}
	return id, nil
}

// AddCity stores a tracked city with an optional initial snapshot. It fails
// with ErrUnknownUser when the owner does not exist and ErrAlreadyTracked
// when the (owner, city) pair is already present.
func (s *Store) AddCity(ctx context.Context, userID int64, city string, coords weather.Coordinates, snap *weather.Snapshot) error {
	var temperature, windSpeed, pressure sql.NullFloat64
	if snap != nil {
		temperature = sql.NullFloat64{Float64: snap.Temperature, Valid: true}
		windSpeed = sql.NullFloat64{Float64: snap.WindSpeed, Valid: true}
		pressure = sql.NullFloat64{Float64: snap.Pressure, Valid: true}
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO weather (city, user_id, temperature, wind_speed, pressure, latitude, longitude)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			city, userID, temperature, windSpeed, pressure, coords.Latitude, coords.Longitude,
		)
		return mapConstraintErr(err)
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyTracked) || errors.Is(err, ErrUnknownUser) {
			return err
		}
		return fmt.Errorf("add city: %w", err)
	}
	return nil
}

// ListCities returns the names of all cities tracked by the user, ordered by
// name. A missing user yields ErrUnknownUser rather than an empty list.
func (s *Store) ListCities(ctx context.Context, userID int64) ([]string, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = ?)`, userID,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("list cities: %w", err)
	}
	if !exists {
		return nil, ErrUnknownUser
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT city FROM weather WHERE user_id = ? ORDER BY city`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list cities: %w", err)
	}
	defer rows.Close()

	cities := []string{}
	for rows.Next() {
		var city string
		if err := rows.Scan(&city); err != nil {
			return nil, fmt.Errorf("list cities: %w", err)
		}
		cities = append(cities, city)
	}
	return cities, rows.Err()
}

// ListAll enumerates every tracked city across all users, for the refresh
// sweep. Ordered by (user_id, city) so a sweep is deterministic.
func (s *Store) ListAll(ctx context.Context) ([]weather.TrackedCity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT city, user_id, latitude, longitude FROM weather ORDER BY user_id, city`,
	)
	if err != nil {
		return nil, fmt.Errorf("list tracked cities: %w", err)
	}
	defer rows.Close()

	var cities []weather.TrackedCity
	for rows.Next() {
		var c weather.TrackedCity
		if err := rows.Scan(&c.Name, &c.UserID, &c.Coords.Latitude, &c.Coords.Longitude); err != nil {
			return nil, fmt.Errorf("list tracked cities: %w", err)
		}
		cities = append(cities, c)
	}
	return cities, rows.Err()
}

// Coordinates returns the stored coordinates for a tracked (user, city) pair.
func (s *Store) Coordinates(ctx context.Context, userID int64, city string) (weather.Coordinates, error) {
	var coords weather.Coordinates
	err := s.db.QueryRowContext(ctx,
		`SELECT latitude, longitude FROM weather WHERE city = ? AND user_id = ?`,
		city, userID,
	).Scan(&coords.Latitude, &coords.Longitude)
	if errors.Is(err, sql.ErrNoRows) {
		return weather.Coordinates{}, ErrNotTracked
	}
	if err != nil {
		return weather.Coordinates{}, fmt.Errorf("get coordinates: %w", err)
	}
	return coords, nil
}

// UpdateWeather overwrites the stored snapshot for a tracked city. The
// coordinate columns are fixed metadata and are never touched by a refresh.
func (s *Store) UpdateWeather(ctx context.Context, userID int64, city string, snap weather.Snapshot) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE weather SET temperature = ?, wind_speed = ?, pressure = ?
			 WHERE city = ? AND user_id = ?`,
			snap.Temperature, snap.WindSpeed, snap.Pressure, city, userID,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotTracked
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotTracked) {
			return err
		}
		return fmt.Errorf("update weather: %w", err)
	}
	return nil
}

// Snapshot returns the last stored weather for a tracked city, or ok=false
// when no refresh has written one yet.
func (s *Store) Snapshot(ctx context.Context, userID int64, city string) (weather.Snapshot, bool, error) {
	var temperature, windSpeed, pressure sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT temperature, wind_speed, pressure FROM weather WHERE city = ? AND user_id = ?`,
		city, userID,
	).Scan(&temperature, &windSpeed, &pressure)
	if errors.Is(err, sql.ErrNoRows) {
		return weather.Snapshot{}, false, ErrNotTracked
	}
	if err != nil {
		return weather.Snapshot{}, false, fmt.Errorf("get snapshot: %w", err)
	}

	if !temperature.Valid || !windSpeed.Valid || !pressure.Valid {
		return weather.Snapshot{}, false, nil
	}
	return weather.Snapshot{
		Temperature: temperature.Float64,
		WindSpeed:   windSpeed.Float64,
		Pressure:    pressure.Float64,
	}, true, nil
}
