package form

import (
	"time"

	"github.com/gometeo/weathermail/internal/model"
)

// Status tells a renderer how to style Message.
type Status string

const (
	StatusNone    Status = ""
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// State is everything a front-end needs to render the form and the history log.
type State struct {
	Loading      bool               `json:"loading"`
	LoadingSince time.Time          `json:"loadingSince,omitempty"`
	Message      string             `json:"message,omitempty"`
	Status       Status             `json:"status,omitempty"`
	City         string             `json:"city,omitempty"`
	Email        string             `json:"email,omitempty"`
	Logs         []model.WeatherLog `json:"logs"`
}

func (s *State) setMessage(msg string, st Status) {
	s.Message = msg
	s.Status = st
}

func (s State) clone() State {
	s.Logs = cloneLogs(s.Logs)
	return s
}

func cloneLogs(logs []model.WeatherLog) []model.WeatherLog {
	if logs == nil {
		return nil
	}
	out := make([]model.WeatherLog, len(logs))
	copy(out, logs)
	return out
}

// Stale reports whether the state claims a submission has been in flight for
// longer than maxAge, which happens when the process handling it died.
func (s State) Stale(now time.Time, maxAge time.Duration) bool {
	return s.Loading && !s.LoadingSince.IsZero() && now.Sub(s.LoadingSince) > maxAge
}
