package session

import "sync"

// Entry owns one user's short-term state: the window plus the running
// count of turns the user has ever produced. The difference between the
// two is the global index of the first turn still in the window, which
// the summarizer uses for turn_start/turn_end bookkeeping.
//
// All methods serialize through the entry mutex, so concurrent requests
// for the same user cannot race on add/trim.
type Entry struct {
	mu         sync.Mutex
	window     *Window
	totalTurns int

	// compressFailures counts consecutive failed compressions; the
	// scheduler backs off after repeated generator outages instead of
	// resubmitting the same span forever.
	compressFailures int
}

// Add appends a turn and returns the window length after eviction.
func (e *Entry) Add(role Role, content string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.window.Add(role, content)
	e.totalTurns++
	return e.window.Len()
}

// Snapshot returns the window contents and the global index of the
// first turn in the window, read atomically.
func (e *Entry) Snapshot() (turns []Turn, offset int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.window.Turns(), e.totalTurns - e.window.Len()
}

func (e *Entry) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.window.Len()
}

// ReleaseThrough drops every turn whose global index is <= turnEnd.
// Called only after the span was successfully compressed; turns that
// arrived after the snapshot stay put.
func (e *Entry) ReleaseThrough(turnEnd int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	offset := e.totalTurns - e.window.Len()
	e.window.dropFront(turnEnd + 1 - offset)
}

// Clear empties the window but keeps the turn counter, so episode turn
// ranges stay monotonic across clears.
func (e *Entry) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.window.Clear()
}

func (e *Entry) CompressFailed() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compressFailures++
	return e.compressFailures
}

func (e *Entry) CompressSucceeded() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compressFailures = 0
}

func (e *Entry) CompressFailures() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.compressFailures
}

// Registry hands out per-user entries, creating them on first contact.
// Entries live for the process lifetime.
type Registry struct {
	mu       sync.RWMutex
	entries  map[string]*Entry
	capacity int
}

func NewRegistry(windowCapacity int) *Registry {
	return &Registry{
		entries:  make(map[string]*Entry),
		capacity: windowCapacity,
	}
}

// Get returns the entry for a user, creating it if this is first contact.
func (r *Registry) Get(userID string) *Entry {
	r.mu.RLock()
	e, ok := r.entries[userID]
	r.mu.RUnlock()
	if ok {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[userID]; ok {
		return e
	}
	e = &Entry{window: NewWindow(r.capacity)}
	r.entries[userID] = e
	return e
}

// Users returns the number of users the registry has seen.
func (r *Registry) Users() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
