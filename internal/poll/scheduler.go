package poll

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dalocar/tado-direct/internal/infrastructure/logging"
	"github.com/dalocar/tado-direct/internal/state"
	"github.com/dalocar/tado-direct/internal/transport"
)

// Fetcher produces a complete snapshot for one home.
type Fetcher interface {
	Fetch(ctx context.Context, homeID int64) (*state.Snapshot, error)
}

// Config carries the scheduler's cadence tunables.
type Config struct {
	// Interval is the base poll cadence.
	Interval time.Duration
	// MaxInterval caps backoff stretching.
	MaxInterval time.Duration
	// RecoverySuccesses is how many consecutive successes snap a
	// stretched cadence back to the base interval.
	RecoverySuccesses int
}

// Status is a point-in-time report of one home's poll loop.
type Status struct {
	HomeID      int64
	LastSuccess time.Time
	LastError   string
	Interval    time.Duration
	BackedOff   bool
}

// Scheduler runs one poll loop per home, feeding snapshots into the cache.
type Scheduler struct {
	fetcher Fetcher
	cache   *state.Cache
	cfg     Config
	logger  *logging.Logger

	mu     sync.Mutex
	status map[int64]*Status
}

// New creates a scheduler. Zero config fields get conservative defaults.
func New(fetcher Fetcher, cache *state.Cache, cfg Config, logger *logging.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.MaxInterval < cfg.Interval {
		cfg.MaxInterval = 20 * cfg.Interval
	}
	if cfg.RecoverySuccesses <= 0 {
		cfg.RecoverySuccesses = 3
	}
	if logger == nil {
		logger = logging.Noop()
	}
	return &Scheduler{
		fetcher: fetcher,
		cache:   cache,
		cfg:     cfg,
		logger:  logger.With("component", "poll"),
		status:  make(map[int64]*Status),
	}
}

// Run polls one home until the context is cancelled. It fetches once
// immediately, then at the current cadence. Blocking; callers run it in a
// goroutine per home.
func (s *Scheduler) Run(ctx context.Context, homeID int64) {
	loop := &homeLoop{cfg: s.cfg, interval: s.cfg.Interval}
	logger := s.logger.With("home_id", homeID)

	for {
		snap, err := s.fetcher.Fetch(ctx, homeID)
		if err == nil {
			if _, repErr := s.cache.ReplaceSnapshot(snap); repErr != nil && !errors.Is(repErr, state.ErrStaleSnapshot) {
				err = repErr
			}
		}

		wait := loop.advance(err)
		s.recordStatus(homeID, loop, err)

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("poll failed", "error", err, "next_interval", wait)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// Statuses returns a report for every home the scheduler has polled.
func (s *Scheduler) Statuses() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Status, 0, len(s.status))
	for _, st := range s.status {
		out = append(out, *st)
	}
	return out
}

func (s *Scheduler) recordStatus(homeID int64, loop *homeLoop, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.status[homeID]
	if !ok {
		st = &Status{HomeID: homeID}
		s.status[homeID] = st
	}
	st.Interval = loop.interval
	st.BackedOff = loop.interval > s.cfg.Interval
	if err != nil {
		st.LastError = err.Error()
	} else {
		st.LastSuccess = time.Now()
		st.LastError = ""
	}
}

// homeLoop is the cadence state machine for one home.
type homeLoop struct {
	cfg       Config
	interval  time.Duration
	successes int
}

// advance feeds one fetch result into the machine and returns how long to
// wait before the next fetch.
func (l *homeLoop) advance(err error) time.Duration {
	if err != nil {
		l.successes = 0

		next := l.interval * 2
		if next > l.cfg.MaxInterval {
			next = l.cfg.MaxInterval
		}

		// A server-stated Retry-After overrides our own schedule when it
		// asks for more patience than we were going to show, even past
		// the cap.
		var apiErr *transport.APIError
		if errors.As(err, &apiErr) && apiErr.RetryAfter > next {
			next = apiErr.RetryAfter
		}

		l.interval = next
		return l.interval
	}

	if l.interval > l.cfg.Interval {
		l.successes++
		if l.successes >= l.cfg.RecoverySuccesses {
			l.interval = l.cfg.Interval
			l.successes = 0
		}
	}
	return l.interval
}
