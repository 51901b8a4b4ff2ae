// Package form holds the weather-email form: submission with a loading flag,
// the history log it refreshes, and deletion of history entries.
//
// State is guarded by a mutex that is never held across a network call. Two
// operations started by separate user actions may therefore resolve in either
// order and the last one to resolve wins; a fetch that was in flight when a
// delete finished can bring the deleted entry back until the next refresh.
package form

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gometeo/weathermail/internal/model"
)

// User-facing messages.
const (
	MsgRequired     = "City and email are required."
	MsgSent         = "Weather sent!"
	MsgSendFailed   = "Something went wrong."
	MsgDeleted      = "Log deleted successfully."
	MsgDeleteFailed = "Failed to delete log."
)

var (
	ErrMissingFields  = errors.New("city and email are required")
	ErrSubmitInFlight = errors.New("a submission is already in progress")
)

// API is the remote weather-email service.
type API interface {
	Send(ctx context.Context, city, email string) (string, error)
	ListLogs(ctx context.Context) ([]model.WeatherLog, error)
	DeleteLog(ctx context.Context, id string) error
}

// Auditor receives one event per submit or delete outcome.
type Auditor interface {
	Publish(ctx context.Context, ev model.AuditEvent) error
}

// Option configures a Controller.
type Option func(*Controller)

// WithObserver registers fn to receive a snapshot after every state change.
func WithObserver(fn func(State)) Option {
	return func(c *Controller) { c.observers = append(c.observers, fn) }
}

// WithAuditor publishes submit and delete outcomes to a.
func WithAuditor(a Auditor) Option {
	return func(c *Controller) { c.auditor = a }
}

// WithState sets the initial state without notifying observers.
func WithState(s State) Option {
	return func(c *Controller) { c.state = s.clone() }
}

// WithClock overrides time.Now for LoadingSince and audit timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// Controller owns the form State and drives the remote API.
type Controller struct {
	api       API
	logger    *slog.Logger
	auditor   Auditor
	observers []func(State)
	now       func() time.Time

	mu    sync.Mutex
	state State
}

// New creates a Controller with an empty state.
func New(api API, logger *slog.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{api: api, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// SetInputs records what the user typed without submitting it.
func (c *Controller) SetInputs(city, email string) {
	c.update(func(s *State) {
		s.City = city
		s.Email = email
	})
}

// Submit validates the inputs, asks the service to send the weather email and
// on success refreshes the history log. The returned string is the message now
// displayed. Loading is true for the duration of the remote call and false on
// every exit path.
func (c *Controller) Submit(ctx context.Context, city, email string) (string, error) {
	c.mu.Lock()
	if c.state.Loading {
		c.mu.Unlock()
		return "", ErrSubmitInFlight
	}
	c.state.City = city
	c.state.Email = email
	if city == "" || email == "" {
		c.state.setMessage(MsgRequired, StatusError)
		snap := c.state.clone()
		c.mu.Unlock()
		c.notify(snap)
		return MsgRequired, ErrMissingFields
	}
	c.state.Loading = true
	c.state.LoadingSince = c.now().UTC()
	c.state.setMessage("", StatusNone)
	snap := c.state.clone()
	c.mu.Unlock()
	c.notify(snap)

	defer c.update(func(s *State) {
		s.Loading = false
		s.LoadingSince = time.Time{}
	})

	msg, err := c.api.Send(ctx, city, email)
	if err != nil {
		c.logger.Error("Weather send failed", "city", city, "error", err)
		c.update(func(s *State) { s.setMessage(MsgSendFailed, StatusError) })
		c.audit(ctx, model.AuditEvent{Action: model.ActionSendFailed, City: city, Email: email, Error: err.Error()})
		return MsgSendFailed, fmt.Errorf("send weather for %s: %w", city, err)
	}
	if msg == "" {
		msg = MsgSent
	}

	c.update(func(s *State) {
		s.setMessage(msg, StatusSuccess)
		s.City = ""
		s.Email = ""
	})
	c.audit(ctx, model.AuditEvent{Action: model.ActionSent, City: city, Email: email})
	c.logger.Info("Weather sent", "city", city)

	// A failed refresh is already logged and does not turn the submit into a failure.
	_ = c.FetchLogs(ctx)
	return msg, nil
}

// FetchLogs replaces the history log with what the service returns. On failure
// the log and the message are left untouched.
func (c *Controller) FetchLogs(ctx context.Context) error {
	logs, err := c.api.ListLogs(ctx)
	if err != nil {
		c.logger.Error("Error fetching logs", "error", err)
		return fmt.Errorf("fetch logs: %w", err)
	}
	c.update(func(s *State) { s.Logs = cloneLogs(logs) })
	c.logger.Debug("Logs fetched", "count", len(logs))
	return nil
}

// DeleteLog removes the entry remotely and then drops it from the local log
// without refetching.
func (c *Controller) DeleteLog(ctx context.Context, id string) error {
	c.logger.Info("Deleting log", "id", id)

	if err := c.api.DeleteLog(ctx, id); err != nil {
		c.logger.Error("Error deleting log", "id", id, "error", err)
		c.update(func(s *State) { s.setMessage(MsgDeleteFailed, StatusError) })
		c.audit(ctx, model.AuditEvent{Action: model.ActionLogDeleteFailed, LogID: id, Error: err.Error()})
		return fmt.Errorf("delete log %s: %w", id, err)
	}

	c.update(func(s *State) {
		s.Logs = withoutID(s.Logs, id)
		s.setMessage(MsgDeleted, StatusSuccess)
	})
	c.audit(ctx, model.AuditEvent{Action: model.ActionLogDeleted, LogID: id})
	return nil
}

func (c *Controller) update(fn func(*State)) {
	c.mu.Lock()
	fn(&c.state)
	snap := c.state.clone()
	c.mu.Unlock()
	c.notify(snap)
}

func (c *Controller) notify(s State) {
	for _, fn := range c.observers {
		fn(s)
	}
}

func (c *Controller) audit(ctx context.Context, ev model.AuditEvent) {
	if c.auditor == nil {
		return
	}
	ev.ID = uuid.NewString()
	ev.OccurredAt = c.now().UTC()
	if err := c.auditor.Publish(ctx, ev); err != nil {
		c.logger.Warn("Audit publish failed", "action", ev.Action, "error", err)
	}
}

func withoutID(logs []model.WeatherLog, id string) []model.WeatherLog {
	out := make([]model.WeatherLog, 0, len(logs))
	for _, l := range logs {
		if l.ID != id {
			out = append(out, l)
		}
	}
	return out
}
