// Package testutil provides common test doubles and helpers for HealthMate tests.
package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/HealthMate/internal/models"
)

// ErrInjected is returned by fakes configured to fail.
var ErrInjected = errors.New("injected failure")

// SentMessage is one outbound message captured by RecordingMessenger.
type SentMessage struct {
	UserID  string
	Text    string
	Options []string
}

// RecordingMessenger captures every outbound message in order.
type RecordingMessenger struct {
	mu      sync.Mutex
	sent    []SentMessage
	FailFor map[string]bool
}

// NewRecordingMessenger creates an empty RecordingMessenger.
func NewRecordingMessenger() *RecordingMessenger {
	return &RecordingMessenger{FailFor: make(map[string]bool)}
}

// SendText records a plain text message.
func (m *RecordingMessenger) SendText(ctx context.Context, userID, text string) error {
	return m.record(SentMessage{UserID: userID, Text: text})
}

// SendChoicePrompt records a prompt with its options.
func (m *RecordingMessenger) SendChoicePrompt(ctx context.Context, userID, text string, options []string) error {
	return m.record(SentMessage{UserID: userID, Text: text, Options: append([]string(nil), options...)})
}

func (m *RecordingMessenger) record(msg SentMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailFor[msg.UserID] {
		return ErrInjected
	}
	m.sent = append(m.sent, msg)
	return nil
}

// Messages returns a copy of all messages sent so far.
func (m *RecordingMessenger) Messages() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.sent...)
}

// MessagesFor returns the messages sent to userID.
func (m *RecordingMessenger) MessagesFor(userID string) []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []SentMessage
	for _, msg := range m.sent {
		if msg.UserID == userID {
			out = append(out, msg)
		}
	}
	return out
}

// Last returns the most recent message sent to userID.
func (m *RecordingMessenger) Last(userID string) (SentMessage, bool) {
	msgs := m.MessagesFor(userID)
	if len(msgs) == 0 {
		return SentMessage{}, false
	}
	return msgs[len(msgs)-1], true
}

// Reset discards captured messages.
func (m *RecordingMessenger) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}

// ScriptedPredictor returns queued results in order, then repeats Default.
type ScriptedPredictor struct {
	mu       sync.Mutex
	script   []PredictResult
	Default  PredictResult
	requests []models.FeatureVector
}

// PredictResult is one scripted Predict outcome.
type PredictResult struct {
	Probabilities map[string]float64
	Err           error
}

// NewScriptedPredictor creates a predictor that returns probs by default.
func NewScriptedPredictor(probs map[string]float64) *ScriptedPredictor {
	return &ScriptedPredictor{Default: PredictResult{Probabilities: probs}}
}

// Push queues a result ahead of the default.
func (p *ScriptedPredictor) Push(r PredictResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.script = append(p.script, r)
}

// Predict records the features and returns the next scripted result.
func (p *ScriptedPredictor) Predict(ctx context.Context, features models.FeatureVector) (map[string]float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, features)
	r := p.Default
	if len(p.script) > 0 {
		r = p.script[0]
		p.script = p.script[1:]
	}
	if r.Err != nil {
		return nil, r.Err
	}
	out := make(map[string]float64, len(r.Probabilities))
	for k, v := range r.Probabilities {
		out[k] = v
	}
	return out, nil
}

// Requests returns the feature vectors seen so far.
func (p *ScriptedPredictor) Requests() []models.FeatureVector {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.FeatureVector(nil), p.requests...)
}

// MemoryRecords is an append-only record sink that can be told to fail.
type MemoryRecords struct {
	mu      sync.Mutex
	records []models.Record
	Fail    bool
}

// AppendRecord stores rec unless Fail is set.
func (r *MemoryRecords) AppendRecord(ctx context.Context, rec models.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail {
		return ErrInjected
	}
	r.records = append(r.records, rec)
	return nil
}

// Records returns the stored records.
func (r *MemoryRecords) Records() []models.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Record(nil), r.records...)
}

// ScheduleCall is one call captured by RecordingReminders.
type ScheduleCall struct {
	UserID   string
	Interval time.Duration
}

// RecordingReminders captures Schedule and Cancel calls.
type RecordingReminders struct {
	mu        sync.Mutex
	scheduled []ScheduleCall
	cancelled []string
	Err       error
}

// Schedule records the call and returns Err.
func (r *RecordingReminders) Schedule(userID string, interval time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.scheduled = append(r.scheduled, ScheduleCall{UserID: userID, Interval: interval})
	return nil
}

// Cancel records the call.
func (r *RecordingReminders) Cancel(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled = append(r.cancelled, userID)
}

// Scheduled returns the recorded Schedule calls.
func (r *RecordingReminders) Scheduled() []ScheduleCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ScheduleCall(nil), r.scheduled...)
}

// Cancelled returns the users passed to Cancel.
func (r *RecordingReminders) Cancelled() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.cancelled...)
}

// SampleProbabilities is a full prediction with diabetes and obesity at risk.
func SampleProbabilities() map[string]float64 {
	return map[string]float64{
		models.DiseaseDiabetes:      35,
		models.DiseaseAnxiety:       10,
		models.DiseaseDepression:    5,
		models.DiseaseObesity:       62.4,
		models.DiseaseAsthma:        3,
		models.DiseaseMigraine:      12,
		models.DiseaseTB:            1,
		models.DiseaseCancer:        4,
		models.DiseaseHeartDisease:  19.9,
		models.DiseaseStressBurnout: 8,
	}
}

// WaitFor polls cond until it holds or timeout elapses.
func WaitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !cond() {
		t.Fatalf("condition not met within %v", timeout)
	}
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes an APIResponse and validates its status field.
func AssertJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus models.APIStatus) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}
	status, ok := response["status"].(string)
	if !ok {
		t.Fatal("response missing or invalid 'status' field")
	}
	if status != string(expectedStatus) {
		t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
	}
	return response
}
