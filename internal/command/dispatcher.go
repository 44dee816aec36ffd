package command

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dalocar/tado-direct/internal/infrastructure/logging"
	"github.com/dalocar/tado-direct/internal/state"
	"github.com/dalocar/tado-direct/internal/transport"
)

// Status is a command's lifecycle state.
type Status string

const (
	// StatusAcknowledged means the vendor accepted the write; the effect
	// is not yet visible in a snapshot.
	StatusAcknowledged Status = "ACKNOWLEDGED"
	// StatusConfirmed means a later snapshot showed the effect.
	StatusConfirmed Status = "CONFIRMED"
	// StatusExpired means enough snapshots passed without the effect
	// appearing; something else likely overrode it.
	StatusExpired Status = "EXPIRED"
	// StatusRejected means the vendor refused the write (4xx).
	StatusRejected Status = "REJECTED"
	// StatusFailed means the write could not be delivered.
	StatusFailed Status = "FAILED"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s != StatusAcknowledged
}

// Event is one lifecycle transition, for observers (MQTT, websocket).
type Event struct {
	ID       string    `json:"id"`
	Describe string    `json:"describe"`
	HomeID   int64     `json:"home_id"`
	Status   Status    `json:"status"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

// Ticket tracks one submitted command.
type Ticket struct {
	ID string

	mu     sync.Mutex
	status Status
	err    error
	done   chan struct{}
}

// Status returns the current lifecycle state.
func (t *Ticket) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Err returns the failure cause for rejected or failed commands.
func (t *Ticket) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Done is closed when the ticket reaches a terminal status.
func (t *Ticket) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the ticket is terminal or the context ends.
func (t *Ticket) Wait(ctx context.Context) (Status, error) {
	select {
	case <-ctx.Done():
		return t.Status(), ctx.Err()
	case <-t.done:
		return t.Status(), t.Err()
	}
}

func (t *Ticket) transition(status Status, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.Terminal() {
		return
	}
	t.status = status
	t.err = err
	if status.Terminal() {
		close(t.done)
	}
}

// Config carries the dispatcher's tunables.
type Config struct {
	// MaxResends bounds re-sends after ambiguous network failures. The
	// idempotency key makes the re-send safe.
	MaxResends int
	// ConfirmCycles is how many post-submission snapshots may pass
	// before an unconfirmed command expires.
	ConfirmCycles int
}

// Dispatcher submits commands and reconciles them against snapshots.
type Dispatcher struct {
	cache    *state.Cache
	cfg      Config
	logger   *logging.Logger
	listener func(Event)

	mu      sync.Mutex
	pending map[string]*pendingCommand
}

type pendingCommand struct {
	ticket      *Ticket
	cmd         Command
	submittedAt time.Time
	cycles      int
}

// NewDispatcher creates a dispatcher over the state cache.
func NewDispatcher(cache *state.Cache, cfg Config, logger *logging.Logger) *Dispatcher {
	if cfg.MaxResends < 0 {
		cfg.MaxResends = 0
	}
	if cfg.ConfirmCycles <= 0 {
		cfg.ConfirmCycles = 3
	}
	if logger == nil {
		logger = logging.Noop()
	}
	return &Dispatcher{
		cache:   cache,
		cfg:     cfg,
		logger:  logger.With("component", "command"),
		pending: make(map[string]*pendingCommand),
	}
}

// SetListener registers a lifecycle observer. Must be called before the
// first Submit.
func (d *Dispatcher) SetListener(fn func(Event)) {
	d.listener = fn
}

// Submit executes a command and tracks it until confirmation. The returned
// ticket is usable even when err is non-nil; its status explains the
// failure. Ambiguous network failures on the write are re-sent with the
// same idempotency key up to MaxResends times, never silently retried
// beyond that.
func (d *Dispatcher) Submit(ctx context.Context, cmd Command) (*Ticket, error) {
	ticket := &Ticket{
		ID:     uuid.NewString(),
		status: StatusAcknowledged,
		done:   make(chan struct{}),
	}
	logger := d.logger.With("command_id", ticket.ID, "command", cmd.Describe())

	var err error
	for attempt := 0; ; attempt++ {
		err = cmd.Execute(ctx, ticket.ID)
		if err == nil || !errors.Is(err, transport.ErrNetwork) {
			break
		}
		if attempt >= d.cfg.MaxResends || ctx.Err() != nil {
			break
		}
		logger.Warn("ambiguous delivery, re-sending with same key", "attempt", attempt+1)
	}

	if err != nil {
		status := StatusFailed
		if transport.IsRejection(err) {
			status = StatusRejected
		}
		ticket.transition(status, err)
		d.emit(ticket, cmd, err)
		return ticket, err
	}

	if patchErr := cmd.ApplyOptimistic(d.cache); patchErr != nil {
		// The write succeeded; a patch miss only delays visibility.
		logger.Warn("optimistic patch not applied", "error", patchErr)
	}

	d.mu.Lock()
	d.pending[ticket.ID] = &pendingCommand{
		ticket:      ticket,
		cmd:         cmd,
		submittedAt: time.Now(),
	}
	d.mu.Unlock()

	logger.Info("command acknowledged")
	d.emit(ticket, cmd, nil)
	return ticket, nil
}

// ObserveSnapshot reconciles pending commands against a fresh snapshot.
// The poll loop calls this for every successful fetch.
func (d *Dispatcher) ObserveSnapshot(snap *state.Snapshot) {
	d.mu.Lock()
	var resolved []resolution
	for id, p := range d.pending {
		if p.cmd.HomeID() != snap.HomeID || !snap.FetchedAt.After(p.submittedAt) {
			continue
		}
		if p.cmd.ConfirmedBy(snap) {
			delete(d.pending, id)
			resolved = append(resolved, resolution{p, StatusConfirmed})
			continue
		}
		p.cycles++
		if p.cycles >= d.cfg.ConfirmCycles {
			delete(d.pending, id)
			resolved = append(resolved, resolution{p, StatusExpired})
		}
	}
	d.mu.Unlock()

	for _, r := range resolved {
		r.p.ticket.transition(r.status, nil)
		d.logger.Info("command resolved",
			"command_id", r.p.ticket.ID,
			"command", r.p.cmd.Describe(),
			"status", string(r.status),
			"cycles", r.p.cycles)
		d.emit(r.p.ticket, r.p.cmd, nil)
	}
}

type resolution struct {
	p      *pendingCommand
	status Status
}

// Pending returns the number of unresolved commands.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

func (d *Dispatcher) emit(ticket *Ticket, cmd Command, err error) {
	if d.listener == nil {
		return
	}
	ev := Event{
		ID:       ticket.ID,
		Describe: cmd.Describe(),
		HomeID:   cmd.HomeID(),
		Status:   ticket.Status(),
		At:       time.Now(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	d.listener(ev)
}
