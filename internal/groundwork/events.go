package groundwork

import (
	"sync/atomic"
	"time"

	"github.com/ShayCichocki/verdict/internal/logging"
)

// EventType tags a progress event.
type EventType string

const (
	// EventStage reports an agent starting or finishing.
	EventStage EventType = "stage"
	// EventHeadline carries a one-line summary of a finished agent's output.
	EventHeadline EventType = "headline"
	// EventComplete is the final event of a successful run.
	EventComplete EventType = "complete"
	// EventError is the final event of a failed run.
	EventError EventType = "error"
)

// StageStatus is the state carried by a stage event.
type StageStatus string

const (
	StageRunning  StageStatus = "running"
	StageComplete StageStatus = "complete"
)

// Event is one progress message. Fields are set according to Type:
// stage uses Agent and Status, headline uses Agent and Text, complete uses
// GroundworkID, error uses Message.
type Event struct {
	Type         EventType   `json:"type"`
	Agent        string      `json:"agent,omitempty"`
	Status       StageStatus `json:"status,omitempty"`
	Text         string      `json:"text,omitempty"`
	GroundworkID string      `json:"groundwork_id,omitempty"`
	Message      string      `json:"message,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}

// eventBuffer holds every event one run can produce: two stage events and a
// headline per agent, one competitor headline, and the terminal event.
const eventBuffer = 32

// emitter delivers events to the single subscriber of a run.
type emitter struct {
	events  chan Event
	dropped atomic.Uint64
}

func newEmitter(size int) *emitter {
	return &emitter{events: make(chan Event, size)}
}

// emit sends e, waiting briefly for a slow reader before dropping it.
func (e *emitter) emit(ev Event) {
	select {
	case e.events <- ev:
		return
	default:
	}

	select {
	case e.events <- ev:
	case <-time.After(100 * time.Millisecond):
		n := e.dropped.Add(1)
		logging.Component("groundwork").Warn().Uint64("dropped", n).Str("type", string(ev.Type)).Msg("groundwork event channel full, dropped event")
	}
}

func (e *emitter) close() {
	close(e.events)
}
