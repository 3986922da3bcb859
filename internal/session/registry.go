package session

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"boletodesk/internal/stage"
)

// DefaultCapacity is the maximum number of concurrently open sessions.
const DefaultCapacity = 10

// Fidc identifies the fund a session's operation belongs to.
type Fidc struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Color string `json:"color,omitempty"`
}

// Session is one open operation.
type Session struct {
	ID             string      `json:"id"`
	OperationID    string      `json:"operation_id,omitempty"`
	OperationLabel string      `json:"operation_label,omitempty"`
	Stage          stage.Stage `json:"stage"`
	Fidc           Fidc        `json:"fidc"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Bound reports whether the backend has created the session's operation.
func (s Session) Bound() bool {
	return s.OperationID != ""
}

// Patch lists the fields Update merges; nil fields are left unchanged.
type Patch struct {
	OperationID    *string
	OperationLabel *string
	Stage          *stage.Stage
	Fidc           *Fidc
}

// Hints seed a session opened from the operation history.
type Hints struct {
	Label string
	Fidc  Fidc
}

// Snapshot is the persisted form of a Registry.
type Snapshot struct {
	Sessions []Session `json:"sessions"`
	ActiveID string    `json:"active_id,omitempty"`
}

// Registry owns the ordered set of open sessions.
type Registry struct {
	mu       sync.Mutex
	sessions []Session
	activeID string
	capacity int
	now      func() time.Time
	newID    func() string
}

// Option configures a Registry.
type Option func(*Registry)

// WithCapacity overrides the session cap.
func WithCapacity(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.capacity = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithIDGenerator overrides how session ids are minted.
func WithIDGenerator(fn func() string) Option {
	return func(r *Registry) {
		if fn != nil {
			r.newID = fn
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		capacity: DefaultCapacity,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load replaces the registry contents with snap. Sessions beyond the cap are
// dropped and an unknown active id falls back to the first session.
func (r *Registry) Load(snap Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sessions := snap.Sessions
	if len(sessions) > r.capacity {
		sessions = sessions[:r.capacity]
	}
	r.sessions = make([]Session, 0, len(sessions))
	for _, s := range sessions {
		r.sessions = append(r.sessions, normalize(s))
	}
	r.activeID = ""
	if r.indexOf(snap.ActiveID) >= 0 {
		r.activeID = snap.ActiveID
	} else if len(r.sessions) > 0 {
		r.activeID = r.sessions[0].ID
	}
}

// Snapshot copies the registry contents.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{Sessions: slices.Clone(r.sessions), ActiveID: r.activeID}
}

// Capacity returns the session cap.
func (r *Registry) Capacity() int {
	return r.capacity
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// List returns the sessions in display order.
func (r *Registry) List() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.sessions)
}

// Get returns the session with id.
func (r *Registry) Get(id string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.indexOf(id); i >= 0 {
		return r.sessions[i], true
	}
	return Session{}, false
}

// ActiveID returns the id of the active session, or "" when none is open.
func (r *Registry) ActiveID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeID
}

// Active returns the active session.
func (r *Registry) Active() (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.indexOf(r.activeID); i >= 0 {
		return r.sessions[i], true
	}
	return Session{}, false
}

// FindByOperation returns the session bound to operationID.
func (r *Registry) FindByOperation(operationID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.indexOfOperation(operationID); i >= 0 {
		return r.sessions[i], true
	}
	return Session{}, false
}

// Create opens a fresh session at the configure stage and activates it. It
// returns "" when the registry is full.
func (r *Registry) Create() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sessions) >= r.capacity {
		return ""
	}
	now := r.now().UTC()
	s := Session{ID: r.newID(), Stage: stage.Configure, CreatedAt: now, UpdatedAt: now}
	r.sessions = append(r.sessions, s)
	r.activeID = s.ID
	return s.ID
}

// Close removes the session with id. When it was active, the session before
// it becomes active; if it was first, the new first session; if none remain,
// nothing is active.
func (r *Registry) Close(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexOf(id)
	if i < 0 {
		return false
	}
	r.sessions = slices.Delete(r.sessions, i, i+1)
	if r.activeID != id {
		return true
	}
	switch {
	case len(r.sessions) == 0:
		r.activeID = ""
	case i == 0:
		r.activeID = r.sessions[0].ID
	default:
		r.activeID = r.sessions[i-1].ID
	}
	return true
}

// Activate moves the active pointer to id.
func (r *Registry) Activate(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.indexOf(id) < 0 {
		return false
	}
	r.activeID = id
	return true
}

// Update merges the non-nil fields of patch into the session with id.
func (r *Registry) Update(id string, patch Patch) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexOf(id)
	if i < 0 {
		return false
	}
	s := r.sessions[i]
	if patch.OperationID != nil {
		s.OperationID = *patch.OperationID
	}
	if patch.OperationLabel != nil {
		s.OperationLabel = *patch.OperationLabel
	}
	if patch.Stage != nil {
		s.Stage = *patch.Stage
	}
	if patch.Fidc != nil {
		s.Fidc = *patch.Fidc
	}
	s.UpdatedAt = r.now().UTC()
	r.sessions[i] = normalize(s)
	return true
}

// OpenExisting activates the session already bound to operationID, or opens
// a new one at the result stage. It returns "" when a new session is needed
// and the registry is full.
func (r *Registry) OpenExisting(operationID string, hints Hints) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if operationID == "" {
		return ""
	}
	if i := r.indexOfOperation(operationID); i >= 0 {
		r.activeID = r.sessions[i].ID
		return r.activeID
	}
	if len(r.sessions) >= r.capacity {
		return ""
	}
	now := r.now().UTC()
	s := Session{
		ID:             r.newID(),
		OperationID:    operationID,
		OperationLabel: hints.Label,
		Stage:          stage.Result,
		Fidc:           hints.Fidc,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	r.sessions = append(r.sessions, s)
	r.activeID = s.ID
	return s.ID
}

func (r *Registry) indexOf(id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(r.sessions, func(s Session) bool { return s.ID == id })
}

func (r *Registry) indexOfOperation(operationID string) int {
	if operationID == "" {
		return -1
	}
	return slices.IndexFunc(r.sessions, func(s Session) bool { return s.OperationID == operationID })
}

// normalize enforces the stage invariant: configure exactly while unbound.
func normalize(s Session) Session {
	switch {
	case !s.Bound():
		s.Stage = stage.Configure
	case !s.Stage.Valid(), s.Stage == stage.Configure:
		s.Stage = stage.Upload
	}
	return s
}
