package events

import "encoding/json"

// Event name constants
const (
	SessionProcessed = "session.processed"
	SessionFailed    = "session.failed"
)

// Event is a generic SSE event from daemon.
type Event struct {
	Name string          // SSE event name
	Data json.RawMessage // Raw JSON payload
}

// SessionEvent is the typed payload for session.processed and
// session.failed.
type SessionEvent struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Runs    int    `json:"runs"`
	Message string `json:"message,omitempty"`
	Ts      int64  `json:"ts"`
}

// DecodeAs decodes the event payload into the caller-specified generic type T.
// It ignores the event name and simply unmarshals Data into T. If Data is empty,
// it returns the zero value of T with a nil error.
//
// Example:
//
//	payload, err := events.DecodeAs[events.SessionEvent](ev)
//	if err != nil { /* handle */ }
//	fmt.Println(payload.ID, payload.Kind)
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}

// Scheduled batch event names
const (
	BatchUpcoming = "batch.upcoming"
	BatchFinished = "batch.finished"
	BatchFailed   = "batch.failed"
)

// BatchEvent is the typed payload for the batch.* events.
type BatchEvent struct {
	Plan     string `json:"plan"`
	Sessions int    `json:"sessions,omitempty"`
	Failed   int    `json:"failed,omitempty"`
	RunAt    int64  `json:"runAt,omitempty"`
	Message  string `json:"message,omitempty"`
	Ts       int64  `json:"ts"`
}
