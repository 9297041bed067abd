package websocket

import (
	"encoding/json"
	"time"
)

// Message types for WebSocket communication
const (
	MessageTypeAlertCreated      = "alert_created"
	MessageTypeAlertAcknowledged = "alert_acknowledged"
	MessageTypeIncidentCreated   = "incident_created"
	MessageTypeIncidentUpdated   = "incident_updated"
	MessageTypeIncidentResolved  = "incident_resolved"
	MessageTypeRemediationRun    = "remediation_run"
	MessageTypeSystemStatus      = "system_status"
)

// Message represents a WebSocket message
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// ToJSON converts the message to JSON bytes
func (m Message) ToJSON() []byte {
	m.Timestamp = time.Now().UTC()
	data, _ := json.Marshal(m)
	return data
}

// SystemStatusMessage creates a message for system status updates
func SystemStatusMessage(status string, details map[string]interface{}) Message {
	return Message{
		Type: MessageTypeSystemStatus,
		Data: map[string]interface{}{
			"status":  status,
			"details": details,
		},
	}
}
