package scheduler

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron"
	"golang.org/x/sync/errgroup"

	"github.com/example/weather-tracker/internal/weather"
)

// Registry is the slice of the city registry the sweep needs: a snapshot
// enumeration to walk and a per-city write-back.
type Registry interface {
	ListAll(ctx context.Context) ([]weather.TrackedCity, error)
	UpdateWeather(ctx context.Context, userID int64, city string, snap weather.Snapshot) error
}

// Scheduler periodically refreshes the stored weather of every tracked city.
// One poisoned city never blocks the rest of a sweep: per-city failures are
// logged, counted and skipped, and the city is retried on the next sweep.
type Scheduler struct {
	scheduler *gocron.Scheduler
	registry  Registry
	provider  weather.Provider

	interval      time.Duration
	fetchTimeout  time.Duration
	maxConcurrent int

	ctx    context.Context
	cancel context.CancelFunc

	failures atomic.Int64
}

// New creates a new Scheduler. fetchTimeout bounds each per-city fetch so a
// hung upstream cannot stall a sweep; maxConcurrent caps in-flight fetches.
func New(registry Registry, provider weather.Provider, interval, fetchTimeout time.Duration, maxConcurrent int) *Scheduler {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		scheduler:     gocron.NewScheduler(time.UTC),
		registry:      registry,
		provider:      provider,
		interval:      interval,
		fetchTimeout:  fetchTimeout,
		maxConcurrent: maxConcurrent,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start schedules the periodic sweep and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	seconds := int(s.interval.Seconds())
	if seconds <= 0 {
		seconds = 900
	}

	_, err := s.scheduler.Every(seconds).Seconds().Do(s.runSweep)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop cancels in-flight fetches and stops scheduling new sweeps. Updates
// already committed for earlier cities in a sweep stay committed.
func (s *Scheduler) Stop() {
	s.cancel()
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

// Failures reports the total number of per-city refresh failures so far.
func (s *Scheduler) Failures() int64 {
	return s.failures.Load()
}

// runSweep performs one full pass over the current city enumeration. Each
// city gets its own bounded context and its own write transaction, so a
// cancellation mid-sweep never leaves a half-applied row.
func (s *Scheduler) runSweep() {
	cities, err := s.registry.ListAll(s.ctx)
	if err != nil {
		log.Printf("scheduler: failed to enumerate tracked cities: %v", err)
		return
	}
	if len(cities) == 0 {
		return
	}

	log.Printf("scheduler: refreshing %d tracked cities", len(cities))

	var failed int64
	g := new(errgroup.Group)
	g.SetLimit(s.maxConcurrent)

	for _, c := range cities {
		c := c
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(s.ctx, s.fetchTimeout)
			defer cancel()

			if err := s.refreshCity(ctx, c); err != nil {
				atomic.AddInt64(&failed, 1)
				s.failures.Add(1)
				log.Printf("scheduler: refresh failed for %q (user %d): %v", c.Name, c.UserID, err)
			}
			return nil
		})
	}
	g.Wait()

	log.Printf("scheduler: sweep complete, %d refreshed, %d failed", int64(len(cities))-failed, failed)
}

func (s *Scheduler) refreshCity(ctx context.Context, c weather.TrackedCity) error {
	snap, err := s.provider.FetchCurrent(ctx, c.Coords)
	if err != nil {
		return err
	}
	return s.registry.UpdateWeather(ctx, c.UserID, c.Name, snap)
}
