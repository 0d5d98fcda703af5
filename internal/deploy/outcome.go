package deploy

import "time"

// Outcome is the result of one deployment attempt. It is always complete:
// every attempt produces exactly one, success or not.
type Outcome struct {
	Success    bool      `json:"success"`
	Message    string    `json:"message"`
	LogTail    string    `json:"log_tail,omitempty"`
	State      State     `json:"state"` // state the attempt stopped in
	Code       string    `json:"code,omitempty"`
	AttemptID  string    `json:"attempt_id"`
	Host       string    `json:"host"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Duration returns how long the attempt took.
func (o Outcome) Duration() time.Duration {
	return o.FinishedAt.Sub(o.StartedAt)
}

// Event is sent to observers as an attempt moves through its states.
// Outcome is set only on the final event.
type Event struct {
	AttemptID string
	Host      string
	State     State
	At        time.Time
	Outcome   *Outcome
}
