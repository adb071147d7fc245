// Package notification is the side channel through which chart failures are
// reported (log, webhooks, Telegram) without interrupting the session.
package notification

import (
	"context"
	"errors"
	"log"
	"sync"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Condition classifies what went wrong.
type Condition string

const (
	CondFetchFailure     Condition = "fetch_failure"
	CondParseSkip        Condition = "parse_skip"
	CondInvalidParameter Condition = "invalid_parameter"
	CondUninitialized    Condition = "uninitialized_session"
	CondEmptySeries      Condition = "empty_series"
	CondSurface          Condition = "surface_error"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level     AlertLevel `json:"level"`
	Condition Condition  `json:"condition"`
	Session   string     `json:"session,omitempty"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the standard logger.
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s (%s): %s", alert.Level, alert.Title, alert.Condition, alert.Message)
	return nil
}

// Multi delivers each alert to every backend and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps alerts in memory.
type Recorder struct {
	mu     sync.Mutex
	alerts []Alert
}

func (r *Recorder) Send(ctx context.Context, alert Alert) error {
	r.mu.Lock()
	r.alerts = append(r.alerts, alert)
	r.mu.Unlock()
	return nil
}

// Alerts returns a copy of everything recorded so far.
func (r *Recorder) Alerts() []Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Alert, len(r.alerts))
	copy(out, r.alerts)
	return out
}

// Conditions returns the condition of every recorded alert in order.
func (r *Recorder) Conditions() []Condition {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Condition, len(r.alerts))
	for i, a := range r.alerts {
		out[i] = a.Condition
	}
	return out
}
