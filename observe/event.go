package observe

import "time"

type Kind string

type Status string

const (
	KindCallable Kind = "callable"
	KindSchedule Kind = "schedule"
	KindTrigger  Kind = "trigger"
	KindCustom   Kind = "custom"
)

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	// StatusSkipped marks an invocation that exited early without side effects.
	StatusSkipped Status = "skipped"
)

// Event describes one finished function invocation.
type Event struct {
	ID         string         `json:"id,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Kind       Kind           `json:"kind"`
	Function   string         `json:"function,omitempty"`
	Status     Status         `json:"status,omitempty"`
	Message    string         `json:"message,omitempty"`
	Error      string         `json:"error,omitempty"`
	DurationMs int64          `json:"durationMs,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

func (e *Event) Normalize() {
	if e == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Kind == "" {
		e.Kind = KindCustom
	}
	if e.Attributes == nil {
		e.Attributes = map[string]any{}
	}
}
