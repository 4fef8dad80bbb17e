package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/HealthMate/internal/health"
	"github.com/BTreeMap/HealthMate/internal/models"
)

// transition describes how a validated answer mutates the session and where the interview goes next.
type transition struct {
	commit func(s *models.Session, a Answer)
	// next overrides the fixed successor when set.
	next func(a Answer) models.State
	// notice is sent after the commit, before the next prompt.
	notice func(s models.Session) string
}

var transitions = map[models.State]transition{
	models.StateName:   {commit: func(s *models.Session, a Answer) { s.Name = a.Text }},
	models.StateAge:    {commit: func(s *models.Session, a Answer) { s.Age = a.Int }},
	models.StateGender: {commit: func(s *models.Session, a Answer) { s.Gender = a.Gender }},
	models.StateHeight: {commit: func(s *models.Session, a Answer) { s.HeightCM = a.Float }},
	models.StateWeight: {
		commit: func(s *models.Session, a Answer) {
			s.WeightKG = a.Float
			s.BMI = health.BMI(s.WeightKG, s.HeightCM)
		},
		notice: func(s models.Session) string { return health.BandMessage(s.BMI) },
	},
	models.StateSleep: {commit: func(s *models.Session, a Answer) { s.SleepHours = a.Float }},
	models.StateActivity: {commit: func(s *models.Session, a Answer) {
		s.ActivityMinutes = a.Float
		s.ExerciseSessions = a.Sessions
	}},
	models.StateWater:         {commit: func(s *models.Session, a Answer) { s.WaterLiters = a.Float }},
	models.StateJunkFood:      {commit: func(s *models.Session, a Answer) { s.JunkFoodPerWeek = a.Int }},
	models.StateFruitVeggies:  {commit: func(s *models.Session, a Answer) { s.FruitVeggiesPerDay = a.Int }},
	models.StateFamilyHistory: {commit: func(s *models.Session, a Answer) { s.FamilyHistory = a.Bool }},
	models.StateLifestyle: {
		commit: func(s *models.Session, a Answer) {
			s.Lifestyle = a.Habit
			if a.Habit == models.LifestyleNone {
				s.LifestyleFrequency = 0
			}
		},
		next: func(a Answer) models.State {
			if a.Habit == models.LifestyleNone {
				return models.StateFinalize
			}
			return models.StateLifestyleFrequency
		},
	},
	models.StateLifestyleFrequency: {commit: func(s *models.Session, a Answer) { s.LifestyleFrequency = a.Int }},
}

// Engine is the interview state machine. It consumes one user turn at a
// time, commits validated answers to the SessionStore and emits the next prompt.
type Engine struct {
	sessions  *SessionStore
	msg       Messenger
	finalizer SessionFinalizer
	reminders ReminderController
}

// NewEngine creates an Engine. reminders may be nil, in which case /stop only replies.
func NewEngine(sessions *SessionStore, msg Messenger, finalizer SessionFinalizer, reminders ReminderController) *Engine {
	return &Engine{
		sessions:  sessions,
		msg:       msg,
		finalizer: finalizer,
		reminders: reminders,
	}
}

// HandleMessage processes one inbound message. Messages for the same user are
// serialized, so two rapid answers are applied to consecutive states.
func (e *Engine) HandleMessage(ctx context.Context, userID, text string) error {
	if userID == "" {
		return models.ErrEmptyUserID
	}
	return e.sessions.WithUser(userID, func() error {
		if cmd, ok := parseCommand(text); ok {
			slog.Debug("Engine.HandleMessage: command", "userID", userID, "command", cmd)
			return e.command(ctx, userID, cmd)
		}

		sess, ok := e.sessions.Get(userID)
		if !ok {
			slog.Debug("Engine.HandleMessage: no session, starting interview", "userID", userID)
			return e.start(ctx, userID)
		}

		switch {
		case sess.IsComplete():
			return e.send(ctx, userID, CompletedText)
		case sess.State == models.StateFinalize:
			return e.finalize(ctx, &sess)
		case sess.State.AwaitsInput():
			return e.answer(ctx, &sess, text)
		default:
			slog.Warn("Engine.HandleMessage: session in unexpected state, restarting", "userID", userID, "state", sess.State)
			return e.start(ctx, userID)
		}
	})
}

// Start begins a fresh interview for userID, discarding any previous session.
func (e *Engine) Start(ctx context.Context, userID string) error {
	if userID == "" {
		return models.ErrEmptyUserID
	}
	return e.sessions.WithUser(userID, func() error { return e.start(ctx, userID) })
}

// Cancel discards the interview in progress for userID.
func (e *Engine) Cancel(ctx context.Context, userID string) error {
	if userID == "" {
		return models.ErrEmptyUserID
	}
	return e.sessions.WithUser(userID, func() error { return e.cancel(ctx, userID) })
}

func (e *Engine) command(ctx context.Context, userID, cmd string) error {
	switch cmd {
	case CommandStart:
		return e.start(ctx, userID)
	case CommandCancel:
		return e.cancel(ctx, userID)
	case CommandStop:
		if e.reminders != nil {
			e.reminders.Cancel(userID)
		}
		return e.send(ctx, userID, RemindersOffText)
	default:
		return e.send(ctx, userID, HelpText)
	}
}

func (e *Engine) start(ctx context.Context, userID string) error {
	sess := e.sessions.Start(userID)
	slog.Info("Engine: interview started", "userID", userID)
	return e.prompt(ctx, sess)
}

func (e *Engine) cancel(ctx context.Context, userID string) error {
	sess, ok := e.sessions.Get(userID)
	if !ok || sess.IsComplete() {
		return e.send(ctx, userID, NothingToCancel)
	}
	e.sessions.Delete(userID)
	slog.Info("Engine: interview cancelled", "userID", userID, "state", sess.State, "to", models.StateCancelled)
	return e.send(ctx, userID, CancelledText)
}

// answer validates text against the current state and applies the transition.
// Invalid input leaves the session untouched and re-asks the same question.
func (e *Engine) answer(ctx context.Context, sess *models.Session, text string) error {
	state := sess.State
	ans, err := ParseAnswer(state, text)
	if err != nil {
		var verr *models.ValidationError
		if !errors.As(err, &verr) {
			return err
		}
		slog.Debug("Engine.answer: invalid input", "userID", sess.UserID, "state", state, "reason", verr.Reason)
		if err := e.send(ctx, sess.UserID, "⚠️ "+verr.Reason); err != nil {
			return err
		}
		return e.prompt(ctx, *sess)
	}

	t, ok := transitions[state]
	if !ok {
		return fmt.Errorf("no transition defined for state %s", state)
	}
	t.commit(sess, ans)
	next := state.Next()
	if t.next != nil {
		next = t.next(ans)
	}
	sess.State = next
	e.sessions.Put(*sess)
	slog.Debug("Engine.answer: transition", "userID", sess.UserID, "from", state, "to", next)

	if t.notice != nil {
		if err := e.send(ctx, sess.UserID, t.notice(*sess)); err != nil {
			return err
		}
	}
	if next == models.StateFinalize {
		return e.finalize(ctx, sess)
	}
	return e.prompt(ctx, *sess)
}

// finalize runs the finalizer at most once per session. A prediction failure
// leaves the session in StateFinalize so the next message retries.
func (e *Engine) finalize(ctx context.Context, sess *models.Session) error {
	if sess.Predictions != nil {
		slog.Warn("Engine.finalize: session already finalized", "userID", sess.UserID)
		return nil
	}
	err := e.finalizer.Finalize(ctx, sess)
	if err == nil {
		return nil
	}
	var perr *models.PredictionError
	if errors.As(err, &perr) {
		slog.Error("Engine.finalize: prediction failed, awaiting retry", "userID", sess.UserID, "error", err)
		return e.send(ctx, sess.UserID, PredictionFailure)
	}
	return fmt.Errorf("finalize session for %s: %w", sess.UserID, err)
}

func (e *Engine) prompt(ctx context.Context, sess models.Session) error {
	p, ok := prompts[sess.State]
	if !ok {
		return fmt.Errorf("no prompt defined for state %s", sess.State)
	}
	text := p.text(sess)
	if len(p.options) > 0 {
		if err := e.msg.SendChoicePrompt(ctx, sess.UserID, text, p.options); err != nil {
			slog.Error("Engine.prompt: send choice prompt failed", "userID", sess.UserID, "state", sess.State, "error", err)
			return fmt.Errorf("send prompt for %s: %w", sess.State, err)
		}
		return nil
	}
	return e.send(ctx, sess.UserID, text)
}

func (e *Engine) send(ctx context.Context, userID, text string) error {
	if err := e.msg.SendText(ctx, userID, text); err != nil {
		slog.Error("Engine.send: failed", "userID", userID, "error", err)
		return fmt.Errorf("send message to %s: %w", userID, err)
	}
	return nil
}

// parseCommand recognizes slash commands such as "/start" or "/start@HealthMateBot".
func parseCommand(text string) (string, bool) {
	fields := strings.Fields(strings.ToLower(text))
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", false
	}
	cmd, _, _ := strings.Cut(fields[0], "@")
	return cmd, true
}
