package sync

// State is the lifecycle state of the sync engine.
type State string

const (
	// StateIdle is the initial state; the engine is waiting for work.
	StateIdle State = "idle"
	// StateSyncing is held while an item is being received or sent.
	StateSyncing State = "syncing"
	// StateError is entered when processing fails. It is never cleared by a timer,
	// only by Resume, Reset or the next successful item.
	StateError State = "error"
	// StatePaused drops every inbound item and outbound send until Resume.
	StatePaused State = "paused"
)

// States lists every lifecycle state.
var States = []State{StateIdle, StateSyncing, StateError, StatePaused}

// String returns the state name.
func (s State) String() string {
	return string(s)
}

// setState moves the engine to next and emits StateChanged. Re-entering the
// current state emits nothing. Callers must hold e.mu.
func (e *engine) setState(next State) {
	if e.state == next {
		return
	}
	prev := e.state
	e.state = next

	e.logger.Debug("sync state changed", "from", prev, "to", next)
	e.notify(Event{Type: EventStateChanged, State: next})
}
