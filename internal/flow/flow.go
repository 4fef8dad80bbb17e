// Package flow implements the health checkup interview: answer parsing, the
// conversation state machine, session lifecycle, finalization and reminders.
package flow

import (
	"context"
	"time"

	"github.com/BTreeMap/HealthMate/internal/models"
)

// Messenger delivers text to a chat user.
type Messenger interface {
	SendText(ctx context.Context, userID, text string) error
	SendChoicePrompt(ctx context.Context, userID, text string, options []string) error
}

// RiskPredictor turns a feature vector into per-disease probabilities (0..100).
type RiskPredictor interface {
	Predict(ctx context.Context, features models.FeatureVector) (map[string]float64, error)
}

// RecordStore appends finalized sessions.
type RecordStore interface {
	AppendRecord(ctx context.Context, r models.Record) error
}

// ReminderController arms and disarms recurring reminders for a user.
type ReminderController interface {
	Schedule(userID string, interval time.Duration) error
	Cancel(userID string)
}

// SessionFinalizer runs the one-time completion of an interview.
type SessionFinalizer interface {
	Finalize(ctx context.Context, s *models.Session) error
}
