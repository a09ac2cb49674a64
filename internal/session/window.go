package session

// Role tags the speaker of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message exchanged in a conversation. Immutable once created.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Window is a bounded FIFO of recent turns (short-term tier). Oldest
// turns are evicted first; len never exceeds capacity after Add.
// Window is not safe for concurrent use; the Registry entry that owns
// it serializes access.
type Window struct {
	capacity int
	turns    []Turn
}

// DefaultCapacity keeps enough turns for local coherence while keeping
// the prompt cheap.
const DefaultCapacity = 6

func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Window{capacity: capacity}
}

// Add appends a turn, evicting from the front when over capacity.
func (w *Window) Add(role Role, content string) {
	w.turns = append(w.turns, Turn{Role: role, Content: content})
	if over := len(w.turns) - w.capacity; over > 0 {
		w.turns = append([]Turn(nil), w.turns[over:]...)
	}
}

// Turns returns a copy of the window contents, most-recent-last.
func (w *Window) Turns() []Turn {
	out := make([]Turn, len(w.turns))
	copy(out, w.turns)
	return out
}

func (w *Window) Len() int { return len(w.turns) }

func (w *Window) Capacity() int { return w.capacity }

// Clear empties the window.
func (w *Window) Clear() { w.turns = nil }

// dropFront removes up to n turns from the front. Used after a
// successful compression to release the summarized span.
func (w *Window) dropFront(n int) {
	if n <= 0 {
		return
	}
	if n >= len(w.turns) {
		w.turns = nil
		return
	}
	w.turns = append([]Turn(nil), w.turns[n:]...)
}
