package flow

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/BTreeMap/HealthMate/internal/models"
	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	// DefaultDashboardURL is the wellness dashboard linked from the results message.
	DefaultDashboardURL = "https://healthmateai.streamlit.app"
	// DefaultReminderInterval is how often wellness reminders fire after a checkup.
	DefaultReminderInterval = 2 * time.Hour
)

// Finalizer turns a finished interview into predictions, a persisted record,
// a results summary and a recurring reminder.
type Finalizer struct {
	sessions         *SessionStore
	predictor        RiskPredictor
	records          RecordStore
	reminders        ReminderController
	msg              Messenger
	dashboardURL     string
	reminderInterval time.Duration
	newID            func() string
	now              func() time.Time
}

// FinalizerOption configures a Finalizer.
type FinalizerOption func(*Finalizer)

// WithDashboardURL sets the dashboard base URL.
func WithDashboardURL(u string) FinalizerOption {
	return func(f *Finalizer) { f.dashboardURL = u }
}

// WithReminderInterval sets the reminder interval armed at completion.
func WithReminderInterval(d time.Duration) FinalizerOption {
	return func(f *Finalizer) { f.reminderInterval = d }
}

// WithRecordIDs overrides the record ID generator.
func WithRecordIDs(newID func() string) FinalizerOption {
	return func(f *Finalizer) { f.newID = newID }
}

// NewFinalizer creates a Finalizer. records and reminders may be nil.
func NewFinalizer(sessions *SessionStore, predictor RiskPredictor, records RecordStore, reminders ReminderController, msg Messenger, opts ...FinalizerOption) *Finalizer {
	f := &Finalizer{
		sessions:         sessions,
		predictor:        predictor,
		records:          records,
		reminders:        reminders,
		msg:              msg,
		dashboardURL:     DefaultDashboardURL,
		reminderInterval: DefaultReminderInterval,
		newID:            uuid.NewString,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Finalize predicts risks for sess and completes it. Only a prediction
// failure aborts; persistence, messaging and scheduling are best-effort.
func (f *Finalizer) Finalize(ctx context.Context, sess *models.Session) error {
	if sess.Predictions != nil {
		return nil
	}
	features := models.NewFeatureVector(*sess)
	slog.Debug("Finalizer.Finalize: requesting prediction", "userID", sess.UserID, "features", features.Values())

	probs, err := f.predictor.Predict(ctx, features)
	if err != nil {
		return &models.PredictionError{UserID: sess.UserID, Err: err}
	}
	preds, err := buildPredictions(probs)
	if err != nil {
		return &models.PredictionError{UserID: sess.UserID, Err: err}
	}

	now := f.now()
	sess.Predictions = preds
	sess.State = models.StateComplete
	sess.CompletedAt = &now
	f.sessions.Put(*sess)
	slog.Info("Finalizer.Finalize: session complete", "userID", sess.UserID, "diseases", len(preds))

	if err := f.persist(ctx, *sess, now); err != nil {
		slog.Error("Finalizer.Finalize: record not persisted", "userID", sess.UserID, "error", err)
	}
	f.sendResults(ctx, *sess)
	if err := f.scheduleReminder(sess.UserID); err != nil {
		slog.Error("Finalizer.Finalize: reminder not scheduled", "userID", sess.UserID, "error", err)
	} else if f.reminders != nil {
		f.sendText(ctx, sess.UserID, fmt.Sprintf("⏰ I'll remind you every %s with wellness tips to keep you on track! 🌟", formatInterval(f.reminderInterval)))
	}
	return nil
}

func buildPredictions(probs map[string]float64) (map[string]models.Prediction, error) {
	if len(probs) == 0 {
		return nil, fmt.Errorf("%w: no predictions returned", models.ErrMalformedResponse)
	}
	preds := make(map[string]models.Prediction, len(probs))
	for disease, p := range probs {
		if disease == "" || !models.ValidProbability(p) {
			return nil, fmt.Errorf("%w: invalid probability %v for %q", models.ErrMalformedResponse, p, disease)
		}
		preds[disease] = models.NewPrediction(p)
	}
	return preds, nil
}

func (f *Finalizer) persist(ctx context.Context, sess models.Session, now time.Time) error {
	if f.records == nil {
		return nil
	}
	rec := models.NewRecord(f.newID(), sess, now)
	if err := f.records.AppendRecord(ctx, rec); err != nil {
		return &models.PersistenceError{UserID: sess.UserID, Err: err}
	}
	slog.Debug("Finalizer.persist: record appended", "userID", sess.UserID, "recordID", rec.ID)
	return nil
}

func (f *Finalizer) scheduleReminder(userID string) error {
	if f.reminders == nil {
		return nil
	}
	if err := f.reminders.Schedule(userID, f.reminderInterval); err != nil {
		return &models.SchedulingError{UserID: userID, Err: err}
	}
	return nil
}

func (f *Finalizer) sendResults(ctx context.Context, sess models.Session) {
	f.sendText(ctx, sess.UserID, CompletionMessage(DashboardLink(f.dashboardURL, sess.UserID)))
	f.sendText(ctx, sess.UserID, SummaryMessage(sess))
	if tips := TipsFor(sess.Predictions); len(tips) > 0 {
		f.sendText(ctx, sess.UserID, "💡 Health Tips:\n"+strings.Join(tips, "\n"))
	} else {
		f.sendText(ctx, sess.UserID, "✅ You're doing great! Keep up the good habits!")
	}
}

func (f *Finalizer) sendText(ctx context.Context, userID, text string) {
	if err := f.msg.SendText(ctx, userID, text); err != nil {
		slog.Error("Finalizer: send failed", "userID", userID, "error", err)
	}
}

// DashboardLink returns the dashboard URL parameterized by user ID.
func DashboardLink(base, userID string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base + "?user_id=" + url.QueryEscape(userID)
	}
	q := u.Query()
	q.Set("user_id", userID)
	u.RawQuery = q.Encode()
	return u.String()
}

// CompletionMessage is the terminal results message carrying the dashboard link.
func CompletionMessage(link string) string {
	return "✅ Your health checkup is complete!\n" +
		"📊 View your full wellness dashboard & get your 7-day plan here:\n" +
		"👉 " + link + "\n\n" +
		"⏬ You can also download your personalized report from there!"
}

// DiseaseName renders a disease identifier for display, e.g. "Risk_heart_disease" -> "Risk Heart Disease".
func DiseaseName(disease string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(disease, "_", " "))
}

// SummaryMessage lists one line per disease with its rounded risk percentage.
func SummaryMessage(sess models.Session) string {
	name := sess.Name
	if name == "" {
		name = "Friend"
	}
	keys := make([]string, 0, len(sess.Predictions))
	for k := range sess.Predictions {
		keys = append(keys, k)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Here's your health checkup summary, %s:", name)
	for _, disease := range models.SortDiseases(keys) {
		p := sess.Predictions[disease]
		mark := "✅"
		if p.IsRisk() {
			mark = "⚠️"
		}
		fmt.Fprintf(&b, "\n%s %s: %d%% risk", mark, DiseaseName(disease), int(math.Round(p.Probability)))
	}
	return b.String()
}

func formatInterval(d time.Duration) string {
	plural := func(n int64, unit string) string {
		if n == 1 {
			return unit
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int64(d/time.Hour), "hour")
	case d >= time.Minute && d%time.Minute == 0:
		return plural(int64(d/time.Minute), "minute")
	default:
		return d.String()
	}
}
