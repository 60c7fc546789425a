package playback

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Tick is the base resolution of every player schedule.
const Tick = 100 * time.Millisecond

type job struct {
	name     string
	every    uint64
	async    bool
	fn       func(ctx context.Context)
	inFlight atomic.Bool
}

// Scheduler multiplexes periodic jobs onto a single ticker. A job registered
// with Every(n) runs on every n-th tick. Async jobs run in their own
// goroutine and a tick is skipped while the previous run is still in flight.
type Scheduler struct {
	interval time.Duration
	logger   *slog.Logger
	jobs     []*job
	wg       sync.WaitGroup
}

// NewScheduler creates a scheduler ticking at interval.
func NewScheduler(interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = Tick
	}
	return &Scheduler{interval: interval, logger: logger}
}

// Every registers fn to run on every n-th tick. Jobs must be registered
// before Run.
func (s *Scheduler) Every(name string, ticks int, fn func(ctx context.Context)) {
	s.add(name, ticks, false, fn)
}

// EveryAsync registers a network-bound job.
func (s *Scheduler) EveryAsync(name string, ticks int, fn func(ctx context.Context)) {
	s.add(name, ticks, true, fn)
}

func (s *Scheduler) add(name string, ticks int, async bool, fn func(ctx context.Context)) {
	if ticks < 1 {
		ticks = 1
	}
	s.jobs = append(s.jobs, &job{name: name, every: uint64(ticks), async: async, fn: fn})
}

// Run blocks until ctx is cancelled, then waits for in-flight jobs.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer s.wg.Wait()

	var n uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n++
			s.step(ctx, n)
		}
	}
}

func (s *Scheduler) step(ctx context.Context, n uint64) {
	for _, j := range s.jobs {
		if n%j.every != 0 {
			continue
		}
		if !j.async {
			j.fn(ctx)
			continue
		}
		if !j.inFlight.CompareAndSwap(false, true) {
			s.logger.Debug("job still in flight, skipping", "job", j.name, "tick", n)
			continue
		}
		s.wg.Add(1)
		go func(j *job) {
			defer s.wg.Done()
			defer j.inFlight.Store(false)
			j.fn(ctx)
		}(j)
	}
}

// wait blocks until every in-flight job has returned.
func (s *Scheduler) wait() {
	s.wg.Wait()
}
