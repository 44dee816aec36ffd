package state

import (
	"sync"
	"time"

	"github.com/dalocar/tado-direct/internal/infrastructure/logging"
	"github.com/dalocar/tado-direct/internal/tado"
)

// subscriberBuffer is the per-subscriber channel depth. A subscriber that
// falls this far behind is dropped rather than reordered or blocked.
const subscriberBuffer = 16

// ZonePatch is an optimistic overlay on one zone, applied after a command
// is acknowledged so readers see the effect before the next poll confirms
// it.
type ZonePatch struct {
	ZoneID        int
	Overlay       *tado.Overlay
	RemoveOverlay bool
	AppliedAt     time.Time
	ExpiresAt     time.Time
}

// PresencePatch is an optimistic home presence change. PresenceAuto means
// the lock was removed.
type PresencePatch struct {
	Presence  string
	AppliedAt time.Time
	ExpiresAt time.Time
}

// Cache holds the latest snapshot per home plus pending optimistic
// patches, and fans ordered diffs out to subscribers.
type Cache struct {
	patchTTL time.Duration
	logger   *logging.Logger

	mu      sync.RWMutex
	homes   map[int64]*homeEntry
	subs    map[uint64]chan *Diff
	nextSub uint64
}

type homeEntry struct {
	snapshot    *Snapshot
	seq         uint64
	zonePatches map[int]ZonePatch
	presence    *PresencePatch
}

// NewCache creates a cache. patchTTL bounds how long an optimistic patch
// survives without a confirming snapshot; twice the poll interval is a
// sensible value.
func NewCache(patchTTL time.Duration, logger *logging.Logger) *Cache {
	if logger == nil {
		logger = logging.Noop()
	}
	return &Cache{
		patchTTL: patchTTL,
		logger:   logger.With("component", "state"),
		homes:    make(map[int64]*homeEntry),
		subs:     make(map[uint64]chan *Diff),
	}
}

// ReplaceSnapshot installs a newer snapshot for a home, assigns its Seq,
// drops patches the snapshot supersedes, and publishes the resulting diff.
// Snapshots not fetched strictly after the cached one are rejected with
// ErrStaleSnapshot.
func (c *Cache) ReplaceSnapshot(snap *Snapshot) (*Diff, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.homes[snap.HomeID]
	if !ok {
		entry = &homeEntry{zonePatches: make(map[int]ZonePatch)}
		c.homes[snap.HomeID] = entry
	}

	prev := entry.snapshot
	if prev != nil && !snap.FetchedAt.After(prev.FetchedAt) {
		return nil, ErrStaleSnapshot
	}

	entry.seq++
	snap.Seq = entry.seq

	// Subscribers last saw the previous snapshot with its patches applied,
	// so diff against that view. A poll that merely confirms an optimistic
	// patch then carries no entry for the patched zone.
	prevView := prev
	if prev != nil {
		prevView = patchedView(prev, entry.zonePatches, entry.presence)
	}

	// The snapshot reflects server state as of its fetch; patches applied
	// before that are either visible in it or overridden by it.
	for id, p := range entry.zonePatches {
		if p.AppliedAt.Before(snap.FetchedAt) || time.Now().After(p.ExpiresAt) {
			delete(entry.zonePatches, id)
		}
	}
	if p := entry.presence; p != nil {
		if p.AppliedAt.Before(snap.FetchedAt) || time.Now().After(p.ExpiresAt) {
			entry.presence = nil
		}
	}

	entry.snapshot = snap

	var diff *Diff
	if prev == nil {
		diff = fullDiff(snap)
	} else {
		diff = diffSnapshots(prevView, snap)
	}

	if !diff.Empty() {
		c.publishLocked(diff)
	}
	return diff, nil
}

// ApplyZonePatch records an optimistic overlay change and publishes the
// patched zone to subscribers.
func (c *Cache) ApplyZonePatch(homeID int64, patch ZonePatch) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.homes[homeID]
	if !ok || entry.snapshot == nil {
		return ErrUnknownHome
	}
	zone, ok := entry.snapshot.Zones[patch.ZoneID]
	if !ok {
		return ErrUnknownZone
	}

	if patch.AppliedAt.IsZero() {
		patch.AppliedAt = time.Now()
	}
	if patch.ExpiresAt.IsZero() {
		patch.ExpiresAt = patch.AppliedAt.Add(c.patchTTL)
	}
	entry.zonePatches[patch.ZoneID] = patch
	entry.seq++

	c.publishLocked(&Diff{
		HomeID:    homeID,
		Seq:       entry.seq,
		FetchedAt: patch.AppliedAt,
		Zones:     map[int]*tado.ZoneState{patch.ZoneID: patchedZone(zone, patch)},
	})
	return nil
}

// ApplyPresencePatch records an optimistic presence change and publishes
// the patched home state to subscribers.
func (c *Cache) ApplyPresencePatch(homeID int64, patch PresencePatch) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.homes[homeID]
	if !ok || entry.snapshot == nil {
		return ErrUnknownHome
	}

	if patch.AppliedAt.IsZero() {
		patch.AppliedAt = time.Now()
	}
	if patch.ExpiresAt.IsZero() {
		patch.ExpiresAt = patch.AppliedAt.Add(c.patchTTL)
	}
	entry.presence = &patch
	entry.seq++

	c.publishLocked(&Diff{
		HomeID:    homeID,
		Seq:       entry.seq,
		FetchedAt: patch.AppliedAt,
		HomeState: patchedHomeState(entry.snapshot.HomeState, patch),
	})
	return nil
}

// Effective returns the home's snapshot with unexpired patches applied.
// The result is safe to read but shares zone pointers with the cache, so
// it must not be mutated.
func (c *Cache) Effective(homeID int64) (*Snapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.effectiveLocked(homeID)
}

func (c *Cache) effectiveLocked(homeID int64) (*Snapshot, error) {
	entry, ok := c.homes[homeID]
	if !ok || entry.snapshot == nil {
		return nil, ErrUnknownHome
	}
	return patchedView(entry.snapshot, entry.zonePatches, entry.presence), nil
}

// patchedView layers the unexpired patches over a copy of the snapshot.
func patchedView(snap *Snapshot, patches map[int]ZonePatch, presence *PresencePatch) *Snapshot {
	out := snap.clone()
	now := time.Now()
	for id, p := range patches {
		if now.After(p.ExpiresAt) {
			continue
		}
		if zone, ok := out.Zones[id]; ok {
			out.Zones[id] = patchedZone(zone, p)
		}
	}
	if presence != nil && !now.After(presence.ExpiresAt) {
		out.HomeState = patchedHomeState(out.HomeState, *presence)
	}
	return out
}

// Homes returns the IDs with a cached snapshot.
func (c *Cache) Homes() []int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]int64, 0, len(c.homes))
	for id, entry := range c.homes {
		if entry.snapshot != nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// Subscribe registers a diff consumer. The channel is seeded with a full
// diff per cached home, then receives every subsequent change in Seq
// order. A subscriber that stops draining is dropped and its channel
// closed; subscriptions do not resume, callers re-subscribe for a fresh
// seed. The returned cancel function is idempotent.
func (c *Cache) Subscribe() (<-chan *Diff, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan *Diff, subscriberBuffer)
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch

	for homeID := range c.homes {
		snap, err := c.effectiveLocked(homeID)
		if err != nil {
			continue
		}
		seed := fullDiff(snap)
		select {
		case ch <- seed:
		default:
			// Cannot happen unless there are more homes than buffer.
			c.logger.Warn("subscriber seed overflow", "home_id", homeID)
		}
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

// publishLocked fans a diff out to every subscriber. Callers hold c.mu,
// which is what guarantees per-home ordering.
func (c *Cache) publishLocked(diff *Diff) {
	for id, ch := range c.subs {
		select {
		case ch <- diff:
		default:
			// Slow consumer: dropping it preserves ordering for the rest.
			delete(c.subs, id)
			close(ch)
			c.logger.Warn("dropped slow state subscriber", "subscriber_id", id)
		}
	}
}

// patchedZone layers a patch over a zone state without mutating the
// original.
func patchedZone(zone *tado.ZoneState, patch ZonePatch) *tado.ZoneState {
	out := *zone
	if patch.RemoveOverlay {
		out.Overlay = nil
		out.OverlayType = ""
		return &out
	}
	out.Overlay = patch.Overlay
	out.OverlayType = tado.TerminationManual
	if patch.Overlay != nil && patch.Overlay.Setting != nil {
		out.Setting = patch.Overlay.Setting
	}
	return &out
}

// patchedHomeState layers a presence patch over a home state.
func patchedHomeState(hs *tado.HomeState, patch PresencePatch) *tado.HomeState {
	var out tado.HomeState
	if hs != nil {
		out = *hs
	}
	locked := patch.Presence != tado.PresenceAuto
	if locked {
		out.Presence = patch.Presence
	}
	out.PresenceLocked = &locked
	return &out
}
