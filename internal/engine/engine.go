// Package engine is the client-side sync engine: the coalescing change
// queue, the push/pull cycle against the sync server, identity mapping
// between local and cloud ids, and the one-time migration flow.
package engine

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/trueloggs/timesync/internal/localstore"
)

const defaultInterval = 30 * time.Second

// Status is a snapshot of the engine, delivered to subscribers whenever
// anything observable changes.
type Status struct {
	Enabled       bool      `json:"enabled"`
	Online        bool      `json:"online"`
	Syncing       bool      `json:"syncing"`
	UserID        string    `json:"userId,omitempty"`
	PendingCount  int       `json:"pendingCount"`
	ConflictCount int       `json:"conflictCount"`
	LastSyncedAt  time.Time `json:"lastSyncedAt,omitzero"`
	LastError     string    `json:"lastError,omitempty"`
}

// Engine orchestrates sync cycles. It is disabled until a user is set,
// idles between cycles, and never runs two cycles at once.
type Engine struct {
	store    *localstore.Store
	client   *Client
	logger   *log.Logger
	interval time.Duration

	mu           sync.Mutex
	userID       string
	enabled      bool
	online       bool
	syncing      bool
	lastSyncedAt time.Time
	lastError    string
	listeners    map[int]func(Status)
	nextListener int

	kick chan struct{}
}

type Option func(*Engine)

func WithInterval(d time.Duration) Option {
	return func(e *Engine) { e.interval = d }
}

func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func New(store *localstore.Store, client *Client, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		client:    client,
		logger:    log.Default(),
		interval:  defaultInterval,
		online:    true,
		listeners: map[int]func(Status){},
		kick:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetUser enables the engine for an authenticated user. The token is used
// on every request until sign-out.
func (e *Engine) SetUser(userID, token string) {
	e.client.SetToken(token)
	e.mu.Lock()
	e.userID = userID
	e.enabled = true
	e.lastError = ""
	e.mu.Unlock()
	e.notify()
}

// Disable puts the engine into guest mode: nothing is transmitted, local
// changes still queue up for a later enable.
func (e *Engine) Disable() {
	e.client.SetToken("")
	e.mu.Lock()
	e.userID = ""
	e.enabled = false
	e.mu.Unlock()
	e.notify()
}

// SetOnline records connectivity. A transition to online schedules an
// immediate cycle to drain whatever queued while offline.
func (e *Engine) SetOnline(online bool) {
	e.mu.Lock()
	wasOnline := e.online
	e.online = online
	e.mu.Unlock()
	e.notify()
	if online && !wasOnline {
		e.requestSync()
	}
}

// Subscribe registers a status listener and returns its unsubscribe
// function. The listener is called immediately with the current status.
func (e *Engine) Subscribe(fn func(Status)) func() {
	e.mu.Lock()
	id := e.nextListener
	e.nextListener++
	e.listeners[id] = fn
	e.mu.Unlock()
	fn(e.Status())
	return func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}
}

// Status returns the current engine snapshot. Counts are read from the
// local store best-effort.
func (e *Engine) Status() Status {
	ctx := context.Background()
	pending, _ := e.store.CountQueueItems(ctx)
	conflicts, _ := e.store.CountConflicts(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		Enabled:       e.enabled,
		Online:        e.online,
		Syncing:       e.syncing,
		UserID:        e.userID,
		PendingCount:  pending,
		ConflictCount: conflicts,
		LastSyncedAt:  e.lastSyncedAt,
		LastError:     e.lastError,
	}
}

// SyncNow runs one push-then-pull cycle. It returns ErrSyncInProgress,
// ErrOffline or ErrNoUser without touching anything when a cycle cannot
// start.
func (e *Engine) SyncNow(ctx context.Context) error {
	if err := e.beginCycle(); err != nil {
		return err
	}
	err := e.runCycle(ctx)
	e.endCycle(err)
	return err
}

func (e *Engine) beginCycle() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case !e.enabled || e.userID == "":
		return ErrNoUser
	case !e.online:
		return ErrOffline
	case e.syncing:
		return ErrSyncInProgress
	}
	e.syncing = true
	return nil
}

func (e *Engine) endCycle(err error) {
	e.mu.Lock()
	e.syncing = false
	if err != nil {
		e.lastError = err.Error()
	} else {
		e.lastError = ""
		e.lastSyncedAt = time.Now().UTC()
	}
	e.mu.Unlock()
	e.notify()
}

func (e *Engine) runCycle(ctx context.Context) error {
	if err := e.push(ctx); err != nil {
		return err
	}
	return e.pull(ctx, false)
}

// Run drives periodic cycles until ctx is cancelled. Enqueues and
// reconnects request an immediate cycle through the kick channel.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-e.kick:
		}
		if err := e.SyncNow(ctx); err != nil &&
			err != ErrSyncInProgress && err != ErrOffline && err != ErrNoUser {
			e.logger.Printf("sync cycle failed: %v", err)
		}
	}
}

// requestSync schedules a cycle without blocking; a pending request is
// collapsed into the one already scheduled.
func (e *Engine) requestSync() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

func (e *Engine) notify() {
	status := e.Status()
	e.mu.Lock()
	fns := make([]func(Status), 0, len(e.listeners))
	for _, fn := range e.listeners {
		fns = append(fns, fn)
	}
	e.mu.Unlock()
	for _, fn := range fns {
		fn(status)
	}
}

func (e *Engine) currentUser() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.userID
}
