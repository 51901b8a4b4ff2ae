package model

import "time"

// WeatherLog is one past submission as reported by the remote service.
type WeatherLog struct {
	ID       string `json:"_id"`
	City     string `json:"city"`
	Email    string `json:"email"`
	DateSent string `json:"dateSent"`
	Weather  string `json:"weather"`
}

// SendRequest is the body of POST /api/weather.
type SendRequest struct {
	City  string `json:"city"`
	Email string `json:"email"`
}

// SendResponse is the body returned by POST /api/weather. Message may be empty.
type SendResponse struct {
	Message string `json:"message,omitempty"`
}

// ErrorResponse is what our own JSON endpoints return on failure.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Audit actions.
const (
	ActionSent            = "weather.sent"
	ActionSendFailed      = "weather.send_failed"
	ActionLogDeleted      = "log.deleted"
	ActionLogDeleteFailed = "log.delete_failed"
)

// AuditEvent - what travels through Kafka to the auditor.
type AuditEvent struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	City       string    `json:"city,omitempty"`
	Email      string    `json:"email,omitempty"`
	LogID      string    `json:"logId,omitempty"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}
