// Package autosave drives persistence for one editing session: it owns
// the debounce window, the single-flight save discipline, and the
// dirty/saving/saved/error status surfaced to the editor.
package autosave

import (
	"context"
	"crypto/sha256"
	"sync"
	"time"
)

// Status is the orchestrator's externally visible state.
type Status string

const (
	StatusIdle   Status = "idle"
	StatusDirty  Status = "dirty"
	StatusSaving Status = "saving"
	StatusSaved  Status = "saved"
	StatusError  Status = "error"
)

// DefaultDebounce is the quiescent window required before a save fires.
const DefaultDebounce = 2000 * time.Millisecond

// ExportFunc reads the current live state as encoded snapshot bytes.
type ExportFunc func() ([]byte, error)

// SaveFunc persists encoded snapshot bytes. It is called from a save
// goroutine, never concurrently with itself for the same orchestrator.
type SaveFunc func(ctx context.Context, content []byte) error

// State is a point-in-time view of the orchestrator.
type State struct {
	Status      Status     `json:"status"`
	LastSavedAt *time.Time `json:"lastSavedAt,omitempty"`
	Error       string     `json:"error,omitempty"`
	Enabled     bool       `json:"enabled"`
}

// Orchestrator coalesces edits into debounced, single-flight saves. Edits
// arriving while a save is in flight set a pending flag rather than
// queueing, so exactly one follow-up save fires once the in-flight one
// resolves. A save whose content matches the last successfully saved
// bytes settles without calling the persistence endpoint.
type Orchestrator struct {
	export   ExportFunc
	save     SaveFunc
	debounce time.Duration

	mu           sync.Mutex
	status       Status
	enabled      bool
	closed       bool
	inFlight     bool
	pendingDirty bool
	timer        *time.Timer
	lastSavedAt  *time.Time
	lastErr      error

	lastSaved    [sha256.Size]byte
	hasLastSaved bool
}

// New creates an orchestrator. debounce <= 0 selects DefaultDebounce. The
// orchestrator starts idle and disabled; callers must Enable it once the
// document is an editable draft and the initial import has completed.
func New(export ExportFunc, save SaveFunc, debounce time.Duration) *Orchestrator {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Orchestrator{
		export:   export,
		save:     save,
		debounce: debounce,
		status:   StatusIdle,
	}
}

// Enable arms the orchestrator. Before this, edits are ignored so a still
// hydrating editor can never save empty content over real data.
func (o *Orchestrator) Enable() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.enabled = true
}

// NoteEdit records a qualifying edit. It resets the debounce window, or
// marks a pending follow-up when a save is already in flight.
func (o *Orchestrator) NoteEdit() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.enabled || o.closed {
		return
	}
	if o.inFlight {
		o.pendingDirty = true
		return
	}
	o.status = StatusDirty
	o.resetTimerLocked()
}

// Save forces a save now, bypassing the debounce window. If a save is in
// flight it does not start a second request; the pending flag makes the
// coalesced follow-up fire as soon as the in-flight one resolves. Retry
// after a failure is this same call.
func (o *Orchestrator) Save() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.enabled || o.closed {
		return
	}
	if o.inFlight {
		o.pendingDirty = true
		return
	}
	o.startSaveLocked()
}

// State returns the current status, last save time and last error.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	state := State{Status: o.status, Enabled: o.enabled}
	if o.lastSavedAt != nil {
		t := *o.lastSavedAt
		state.LastSavedAt = &t
	}
	if o.lastErr != nil {
		state.Error = o.lastErr.Error()
	}
	return state
}

// Close tears the orchestrator down: pending debounce timers are cleared
// so no save fires against a closed session. An already in-flight save is
// left to finish on its own.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	o.stopTimerLocked()
}

func (o *Orchestrator) resetTimerLocked() {
	o.stopTimerLocked()
	o.timer = time.AfterFunc(o.debounce, o.debounceElapsed)
}

func (o *Orchestrator) stopTimerLocked() {
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
}

func (o *Orchestrator) debounceElapsed() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || !o.enabled || o.status != StatusDirty || o.inFlight {
		return
	}
	o.startSaveLocked()
}

// startSaveLocked transitions to saving and launches the persistence call.
// Callers hold o.mu and have verified no save is in flight.
func (o *Orchestrator) startSaveLocked() {
	o.stopTimerLocked()
	o.status = StatusSaving
	o.inFlight = true

	content, err := o.export()
	if err != nil {
		o.settleLocked(err, nil)
		return
	}
	fingerprint := sha256.Sum256(content)
	if o.hasLastSaved && fingerprint == o.lastSaved {
		// Byte-identical to the last successful save: settle without a
		// network call.
		o.settleLocked(nil, nil)
		return
	}

	go func() {
		saveErr := o.save(context.Background(), content)
		o.mu.Lock()
		defer o.mu.Unlock()
		o.settleLocked(saveErr, &fingerprint)
	}()
}

// settleLocked resolves the in-flight save. On success a pending follow-up
// starts immediately; on failure the pending flag is preserved and nothing
// is rescheduled until an explicit retry.
func (o *Orchestrator) settleLocked(err error, fingerprint *[sha256.Size]byte) {
	o.inFlight = false
	if err != nil {
		o.status = StatusError
		o.lastErr = err
		return
	}

	o.lastErr = nil
	now := time.Now()
	o.lastSavedAt = &now
	if fingerprint != nil {
		o.lastSaved = *fingerprint
		o.hasLastSaved = true
	}

	if o.pendingDirty && !o.closed {
		o.pendingDirty = false
		o.startSaveLocked()
		return
	}
	o.status = StatusSaved
}
