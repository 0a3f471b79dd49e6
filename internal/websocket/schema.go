package websocket

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventClock Event = "clock"
	EventDone  Event = "done"
	EventError Event = "error"
)

// ClockResponse is the periodic time-sync push for an in-progress attempt.
type ClockResponse struct {
	Event                Event  `json:"event"`
	TimeRemainingSeconds int    `json:"time_remaining_seconds"`
	Status               string `json:"status"`
	CurrentSubjectIndex  *int   `json:"current_subject_index,omitempty"`
}

// DoneResponse is sent once when the attempt leaves the in-progress state;
// the server closes the stream afterwards.
type DoneResponse struct {
	Event  Event  `json:"event"`
	Status string `json:"status"`
}

// ErrorResponse reports a stream-level failure before closing.
type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}
