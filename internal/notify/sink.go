package notify

import (
	"context"
	"time"
)

// Payload is the notification body handed to a sink. It carries enough for
// any channel (email, Teams, ticketing) to render a useful message.
type Payload struct {
	AlertID   string    `json:"alert_id"`
	AlertType string    `json:"alert_type"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
	Level     int       `json:"level,omitempty"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

// Result reports the outcome of a dispatch.
type Result struct {
	Success     bool   `json:"success"`
	ReferenceID string `json:"reference_id,omitempty"`
}

// Sink delivers escalation and alert output to an external channel. The
// engines are fire-and-forget beyond recording the result.
type Sink interface {
	Dispatch(ctx context.Context, channel string, payload Payload) (Result, error)
}
