package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dalocar/tado-direct/internal/auth"
	"github.com/dalocar/tado-direct/internal/command"
	"github.com/dalocar/tado-direct/internal/infrastructure/logging"
	"github.com/dalocar/tado-direct/internal/poll"
	"github.com/dalocar/tado-direct/internal/state"
	"github.com/dalocar/tado-direct/internal/tado"
)

// discoveryRetryInterval paces discovery attempts while the account is
// unauthorized or the vendor is unreachable.
const discoveryRetryInterval = 15 * time.Second

// ErrUnknownHome is returned for operations on a home discovery has not
// seen.
var ErrUnknownHome = errors.New("engine: unknown home")

// VendorClient is the full vendor surface the engine consumes. Satisfied
// by *tado.Client.
type VendorClient interface {
	Me(ctx context.Context) (*tado.Me, error)
	Zones(ctx context.Context, homeID int64) ([]tado.Zone, error)
	Devices(ctx context.Context, homeID int64) ([]tado.Device, error)
	ZoneStates(ctx context.Context, homeID int64) (map[string]*tado.ZoneState, error)
	Weather(ctx context.Context, homeID int64) (*tado.Weather, error)
	HomeState(ctx context.Context, homeID int64) (*tado.HomeState, error)
	Rooms(ctx context.Context, homeID int64) ([]tado.Room, error)
	DetectTadoX(ctx context.Context, homeID int64) bool

	command.API
}

// Home is one discovered home and its topology.
type Home struct {
	ID    int64
	Name  string
	TadoX bool
	Zones []tado.Zone
}

// Config carries the engine's tunables.
type Config struct {
	PollInterval      time.Duration
	MaxPollInterval   time.Duration
	RecoverySuccesses int
	ConfirmCycles     int
	MaxResends        int
	DeviceFlowTimeout time.Duration
}

// Engine is the facade over the whole client stack.
type Engine struct {
	client     VendorClient
	session    *auth.Session
	cache      *state.Cache
	scheduler  *poll.Scheduler
	dispatcher *command.Dispatcher
	cfg        Config
	logger     *logging.Logger

	mu    sync.RWMutex
	homes map[int64]*Home

	authMu       sync.Mutex
	authInFlight *auth.Credentials

	// lifeCtx is cancelled when Run returns, so background work started
	// from request handlers (device-flow waits) stops with the engine.
	lifeCtx    context.Context
	lifeCancel context.CancelFunc
}

// New assembles an engine. The patch TTL is twice the poll interval so an
// optimistic patch survives one missed poll but not a persistent
// disagreement.
func New(client VendorClient, session *auth.Session, cfg Config, logger *logging.Logger) *Engine {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 15 * time.Second
	}
	if logger == nil {
		logger = logging.Noop()
	}

	cache := state.NewCache(2*cfg.PollInterval, logger)
	e := &Engine{
		client:  client,
		session: session,
		cache:   cache,
		cfg:     cfg,
		logger:  logger.With("component", "engine"),
		homes:   make(map[int64]*Home),
	}
	e.lifeCtx, e.lifeCancel = context.WithCancel(context.Background())
	e.scheduler = poll.New(e, cache, poll.Config{
		Interval:          cfg.PollInterval,
		MaxInterval:       cfg.MaxPollInterval,
		RecoverySuccesses: cfg.RecoverySuccesses,
	}, logger)
	e.dispatcher = command.NewDispatcher(cache, command.Config{
		MaxResends:    cfg.MaxResends,
		ConfirmCycles: cfg.ConfirmCycles,
	}, logger)
	return e
}

// Run discovers the account's homes and polls them until the context is
// cancelled. Discovery retries quietly while the account is unauthorized,
// so Run can be started before the device flow completes.
func (e *Engine) Run(ctx context.Context) error {
	defer e.lifeCancel()

	var homes []*Home
	for {
		if e.session.Authorized(ctx) {
			var err error
			homes, err = e.discover(ctx)
			if err == nil {
				break
			}
			e.logger.Warn("discovery failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(discoveryRetryInterval):
		}
	}

	var wg sync.WaitGroup
	for _, home := range homes {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			e.scheduler.Run(ctx, id)
		}(home.ID)
	}
	wg.Wait()
	return ctx.Err()
}

// discover fetches the account profile and each home's topology.
func (e *Engine) discover(ctx context.Context) ([]*Home, error) {
	me, err := e.client.Me(ctx)
	if err != nil {
		return nil, err
	}

	homes := make([]*Home, 0, len(me.Homes))
	for _, ref := range me.Homes {
		home := &Home{ID: ref.ID, Name: ref.Name}
		home.TadoX = e.client.DetectTadoX(ctx, ref.ID)

		if home.TadoX {
			rooms, err := e.client.Rooms(ctx, ref.ID)
			if err != nil {
				return nil, err
			}
			for _, room := range rooms {
				home.Zones = append(home.Zones, tado.Zone{
					ID:   room.ID,
					Name: room.Name,
					Type: tado.ZoneTypeHeating,
				})
			}
		} else {
			zones, err := e.client.Zones(ctx, ref.ID)
			if err != nil {
				return nil, err
			}
			home.Zones = zones
		}

		homes = append(homes, home)
		e.logger.Info("discovered home",
			"home_id", home.ID,
			"name", home.Name,
			"tado_x", home.TadoX,
			"zones", len(home.Zones))
	}

	e.mu.Lock()
	for _, home := range homes {
		e.homes[home.ID] = home
	}
	e.mu.Unlock()
	return homes, nil
}

// Homes returns the discovered topology.
func (e *Engine) Homes() []Home {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Home, 0, len(e.homes))
	for _, h := range e.homes {
		out = append(out, *h)
	}
	return out
}

// home looks up a discovered home.
func (e *Engine) home(id int64) (*Home, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	h, ok := e.homes[id]
	if !ok {
		return nil, ErrUnknownHome
	}
	return h, nil
}

// State returns the home's cached state with optimistic patches applied.
func (e *Engine) State(homeID int64) (*state.Snapshot, error) {
	return e.cache.Effective(homeID)
}

// Subscribe streams state diffs; see state.Cache.Subscribe for the
// ordering contract.
func (e *Engine) Subscribe() (<-chan *state.Diff, func()) {
	return e.cache.Subscribe()
}

// PollStatuses reports the health of each poll loop.
func (e *Engine) PollStatuses() []poll.Status {
	return e.scheduler.Statuses()
}

// PendingCommands returns the number of commands awaiting confirmation.
func (e *Engine) PendingCommands() int {
	return e.dispatcher.Pending()
}

// SetCommandListener registers a lifecycle observer for all commands.
// Must be called before the first submission.
func (e *Engine) SetCommandListener(fn func(command.Event)) {
	e.dispatcher.SetListener(fn)
}

// Authorized reports whether a token set is available.
func (e *Engine) Authorized(ctx context.Context) bool {
	return e.session.Authorized(ctx)
}

// DeviceAuthPending reports whether a device authorization is waiting for
// user approval.
func (e *Engine) DeviceAuthPending() bool {
	e.authMu.Lock()
	defer e.authMu.Unlock()
	return e.authInFlight != nil && time.Now().Before(e.authInFlight.ExpiresAt)
}

// ReauthRequired reports whether the stored refresh token has been
// revoked, so the device flow must be run again.
func (e *Engine) ReauthRequired() bool {
	return e.session.ReauthRequired()
}

// BeginDeviceAuth starts (or returns the in-flight) device authorization
// and completes it in the background. Callers show the returned user code
// and verification URI to the user.
func (e *Engine) BeginDeviceAuth(ctx context.Context) (*auth.Credentials, error) {
	e.authMu.Lock()
	defer e.authMu.Unlock()

	if c := e.authInFlight; c != nil && time.Now().Before(c.ExpiresAt) {
		return c, nil
	}

	creds, err := e.session.BeginDeviceAuthorization(ctx)
	if err != nil {
		return nil, err
	}
	e.authInFlight = creds

	timeout := e.cfg.DeviceFlowTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	go func() {
		waitCtx, cancel := context.WithTimeout(e.lifeCtx, timeout)
		defer cancel()

		_, err := e.session.WaitForAuthorization(waitCtx, creds)
		e.authMu.Lock()
		e.authInFlight = nil
		e.authMu.Unlock()
		if err != nil {
			e.logger.Warn("device authorization did not complete", "error", err)
			return
		}
		e.logger.Info("device authorization completed")
	}()

	return creds, nil
}
