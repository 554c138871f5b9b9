// Package registry implements the in-memory SessionRegistry: the
// controller's bookkeeping for every live session and its state machine.
// It holds no persistence layer — session state does not survive a
// controller restart, by design.
package registry

import (
	"sync"
	"time"
)

// State is a session's position in its lifecycle state machine.
type State string

const (
	StateCreating   State = "creating"
	StateReady      State = "ready"
	StateExecuting  State = "executing"
	StateDestroying State = "destroying"
	StateDestroyed  State = "destroyed"
	StateError      State = "error"
)

// legalTransitions enumerates the state machine edges. Error is reachable
// from every non-terminal state, encoded separately below.
var legalTransitions = map[State]map[State]bool{
	StateCreating:   {StateReady: true, StateDestroying: true},
	StateReady:      {StateExecuting: true, StateDestroying: true},
	StateExecuting:  {StateReady: true, StateDestroying: true},
	StateDestroying: {StateDestroyed: true},
	StateError:      {StateDestroying: true},
}

// CanTransition reports whether from -> to is a legal edge. Error is
// always reachable from any state other than Destroyed.
func CanTransition(from, to State) bool {
	if to == StateError {
		return from != StateDestroyed
	}
	if edges, ok := legalTransitions[from]; ok {
		return edges[to]
	}
	return false
}

// Record is a SessionRecord: everything the controller tracks about one
// leased session.
type Record struct {
	SessionID    string
	ContainerID  string
	ContainerIP  string
	State        State
	CreatedAt    time.Time
	LastUsedAt   time.Time
	ErrorMessage string
}

// IsActive reports whether the session can still be used or is mid-use —
// Ready or Executing.
func (r Record) IsActive() bool {
	return r.State == StateReady || r.State == StateExecuting
}

// IsAvailable reports whether the session can accept a new Execute call.
func (r Record) IsAvailable() bool {
	return r.State == StateReady
}

// Registry is the concurrent session-id -> Record map. A single mutex
// guards the map itself; callers needing exclusivity across an Execute
// call take the per-session lock obtained via the controller, not this
// type — Registry only ever holds the lock long enough to read or swap
// one Record.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Record
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{sessions: make(map[string]*Record)}
}

// ErrAlreadyExists indicates Create was called with a session id already
// present in the registry.
type ErrAlreadyExists struct{ SessionID string }

func (e ErrAlreadyExists) Error() string {
	return "session already exists: " + e.SessionID
}

// Create registers a new session in the Creating state. ContainerIP is
// typically empty at this point — it is filled in once the container has
// started, per the create protocol.
func (r *Registry) Create(sessionID, containerID string) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[sessionID]; exists {
		return nil, ErrAlreadyExists{SessionID: sessionID}
	}

	now := time.Now()
	rec := &Record{
		SessionID:   sessionID,
		ContainerID: containerID,
		State:       StateCreating,
		CreatedAt:   now,
		LastUsedAt:  now,
	}
	r.sessions[sessionID] = rec
	return rec, nil
}

// Get returns a copy of the record for sessionID, or false if absent.
func (r *Registry) Get(sessionID string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.sessions[sessionID]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// SetContainerIP records the container's address once known, without
// altering state.
func (r *Registry) SetContainerIP(sessionID, ip string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.sessions[sessionID]
	if !ok {
		return false
	}
	rec.ContainerIP = ip
	rec.LastUsedAt = time.Now()
	return true
}

// UpdateState transitions sessionID to newState, stamping LastUsedAt and
// optionally recording errMsg. It enforces CanTransition itself — an
// illegal move is a no-op that returns false — so the state machine holds
// regardless of which caller requests the transition.
func (r *Registry) UpdateState(sessionID string, newState State, errMsg string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.sessions[sessionID]
	if !ok {
		return false
	}
	if !CanTransition(rec.State, newState) {
		return false
	}
	rec.State = newState
	rec.LastUsedAt = time.Now()
	if errMsg != "" {
		rec.ErrorMessage = errMsg
	}
	return true
}

// Release removes sessionID from the registry and returns the record as
// it stood at removal, with its State forced to Destroyed — mirroring
// SessionManager.release_session, which stamps DESTROYED on the popped
// object before returning it. Returns false if the session was absent.
func (r *Registry) Release(sessionID string) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.sessions[sessionID]
	if !ok {
		return Record{}, false
	}
	delete(r.sessions, sessionID)
	rec.State = StateDestroyed
	return *rec, true
}

// All returns a snapshot of every registered session.
func (r *Registry) All() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Record, 0, len(r.sessions))
	for _, rec := range r.sessions {
		out = append(out, *rec)
	}
	return out
}

// Active returns every session currently Ready or Executing.
func (r *Registry) Active() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Record, 0, len(r.sessions))
	for _, rec := range r.sessions {
		if rec.IsActive() {
			out = append(out, *rec)
		}
	}
	return out
}

// Count returns the total number of registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CountActive returns the number of Ready or Executing sessions.
func (r *Registry) CountActive() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, rec := range r.sessions {
		if rec.IsActive() {
			n++
		}
	}
	return n
}

// ByContainer performs a linear scan for the session owning containerID,
// mirroring SessionManager.get_session_by_container_id.
func (r *Registry) ByContainer(containerID string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, rec := range r.sessions {
		if rec.ContainerID == containerID {
			return *rec, true
		}
	}
	return Record{}, false
}
