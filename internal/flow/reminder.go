package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/HealthMate/internal/models"
)

// Wellness thresholds evaluated on every reminder fire.
const (
	MinWaterLiters     = 2.0
	MinActivityMinutes = 30.0
	MaxJunkFoodPerWeek = 4
	MinSleepHours      = 6.0
)

// DefaultReminderSendTimeout bounds a single reminder delivery.
const DefaultReminderSendTimeout = 30 * time.Second

// Reminder texts.
const (
	ReminderHeader        = "📣 Friendly Health Reminder:"
	ReminderWater         = "💧 Stay hydrated! Grab a glass of water."
	ReminderActivity      = "🏃‍♀️ Time for a quick stretch or walk."
	ReminderJunkFood      = "🍏 Choose something fresh and healthy today."
	ReminderSleep         = "🛌 Try to get more restful sleep tonight."
	ReminderEncouragement = "🌟 Keep it up! You're making awesome progress!"
)

// EvaluateReminders returns one reminder line per violated wellness threshold.
func EvaluateReminders(s models.Session) []string {
	var lines []string
	activity := s.ActivityMinutes
	if s.ExerciseSessions > 0 {
		activity = float64(s.ExerciseSessions * models.MinutesPerExerciseSession)
	}
	if s.WaterLiters < MinWaterLiters {
		lines = append(lines, ReminderWater)
	}
	if activity < MinActivityMinutes {
		lines = append(lines, ReminderActivity)
	}
	if s.JunkFoodPerWeek > MaxJunkFoodPerWeek {
		lines = append(lines, ReminderJunkFood)
	}
	if s.SleepHours < MinSleepHours {
		lines = append(lines, ReminderSleep)
	}
	return lines
}

// ReminderMessage renders the message for one fire.
func ReminderMessage(s models.Session) string {
	lines := EvaluateReminders(s)
	if len(lines) == 0 {
		return ReminderEncouragement
	}
	return ReminderHeader + "\n" + strings.Join(lines, "\n")
}

// SessionReader provides the current session for a user.
type SessionReader interface {
	Get(userID string) (models.Session, bool)
}

// ReminderInfo describes an armed reminder.
type ReminderInfo struct {
	ID       string        `json:"id"`
	UserID   string        `json:"user_id"`
	Interval time.Duration `json:"interval"`
	ArmedAt  time.Time     `json:"armed_at"`
	NextFire time.Time     `json:"next_fire"`
	Fires    int           `json:"fires"`
}

// reminderTask is one user's recurring timer.
type reminderTask struct {
	id        string
	userID    string
	interval  time.Duration
	timer     *time.Timer
	armedAt   time.Time
	nextFire  time.Time
	fires     int
	cancelled bool
}

// ReminderScheduler keeps at most one recurring reminder per user. Each fire
// reads the user's current session, not a snapshot taken when scheduling.
type ReminderScheduler struct {
	sessions    SessionReader
	msg         Messenger
	sendTimeout time.Duration

	mu     sync.Mutex
	tasks  map[string]*reminderTask
	nextID int64
}

// NewReminderScheduler creates a ReminderScheduler.
func NewReminderScheduler(sessions SessionReader, msg Messenger) *ReminderScheduler {
	slog.Debug("Creating ReminderScheduler")
	return &ReminderScheduler{
		sessions:    sessions,
		msg:         msg,
		sendTimeout: DefaultReminderSendTimeout,
		tasks:       make(map[string]*reminderTask),
	}
}

// Schedule cancels any reminder for userID and arms a new one that first fires
// after interval and then every interval.
func (r *ReminderScheduler) Schedule(userID string, interval time.Duration) error {
	if userID == "" {
		return models.ErrEmptyUserID
	}
	if interval <= 0 {
		return fmt.Errorf("%w: got %v", models.ErrInvalidInterval, interval)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.tasks[userID]; ok {
		r.stopLocked(prev)
		slog.Debug("ReminderScheduler.Schedule: replaced prior reminder", "userID", userID, "id", prev.id)
	}

	r.nextID++
	now := time.Now()
	task := &reminderTask{
		id:       fmt.Sprintf("reminder_%d", r.nextID),
		userID:   userID,
		interval: interval,
		armedAt:  now,
		nextFire: now.Add(interval),
	}
	task.timer = time.AfterFunc(interval, func() { r.fire(task) })
	r.tasks[userID] = task
	slog.Info("ReminderScheduler.Schedule: reminder armed", "userID", userID, "id", task.id, "interval", interval)
	return nil
}

// Cancel stops future fires for userID. It is a no-op when nothing is armed.
func (r *ReminderScheduler) Cancel(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[userID]
	if !ok {
		slog.Debug("ReminderScheduler.Cancel: no reminder", "userID", userID)
		return
	}
	r.stopLocked(task)
	delete(r.tasks, userID)
	slog.Info("ReminderScheduler.Cancel: reminder cancelled", "userID", userID, "id", task.id)
}

// Active returns the armed reminder for userID.
func (r *ReminderScheduler) Active(userID string) (ReminderInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[userID]
	if !ok {
		return ReminderInfo{}, false
	}
	return ReminderInfo{
		ID:       task.id,
		UserID:   task.userID,
		Interval: task.interval,
		ArmedAt:  task.armedAt,
		NextFire: task.nextFire,
		Fires:    task.fires,
	}, true
}

// Count returns the number of armed reminders.
func (r *ReminderScheduler) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// Stop cancels every reminder.
func (r *ReminderScheduler) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	slog.Debug("ReminderScheduler stopping all reminders", "count", len(r.tasks))
	for _, task := range r.tasks {
		r.stopLocked(task)
	}
	r.tasks = make(map[string]*reminderTask)
	slog.Info("ReminderScheduler stopped all reminders")
}

func (r *ReminderScheduler) stopLocked(task *reminderTask) {
	task.cancelled = true
	task.timer.Stop()
}

// fire sends the reminder for the user's current session and re-arms the task
// once the send returns, so fires for one user never overlap.
// Missing or unfinished sessions make the fire a silent no-op; the task stays armed.
func (r *ReminderScheduler) fire(task *reminderTask) {
	r.mu.Lock()
	if task.cancelled || r.tasks[task.userID] != task {
		r.mu.Unlock()
		return
	}
	task.fires++
	fires := task.fires
	r.mu.Unlock()

	defer r.rearm(task)

	sess, ok := r.sessions.Get(task.userID)
	if !ok || !sess.IsComplete() {
		slog.Debug("ReminderScheduler.fire: no completed session, skipping", "userID", task.userID, "id", task.id)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.sendTimeout)
	defer cancel()
	if err := r.msg.SendText(ctx, task.userID, ReminderMessage(sess)); err != nil {
		slog.Error("ReminderScheduler.fire: send failed", "userID", task.userID, "id", task.id, "error", err)
		return
	}
	slog.Debug("ReminderScheduler.fire: reminder sent", "userID", task.userID, "id", task.id, "fires", fires)
}

func (r *ReminderScheduler) rearm(task *reminderTask) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if task.cancelled || r.tasks[task.userID] != task {
		return
	}
	task.nextFire = time.Now().Add(task.interval)
	task.timer.Reset(task.interval)
}
