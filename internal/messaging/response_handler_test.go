package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/HealthMate/internal/models"
	"github.com/BTreeMap/HealthMate/internal/twiliowhatsapp"
)

type actionRecorder struct {
	mu      sync.Mutex
	calls   map[string][]string
	active  map[string]int
	overlap bool
	fail    string
}

func newActionRecorder() *actionRecorder {
	return &actionRecorder{calls: make(map[string][]string), active: make(map[string]int)}
}

func (a *actionRecorder) action(ctx context.Context, from, text string, ts int64) error {
	a.mu.Lock()
	a.active[from]++
	if a.active[from] > 1 {
		a.overlap = true
	}
	a.mu.Unlock()

	time.Sleep(2 * time.Millisecond)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.active[from]--
	a.calls[from] = append(a.calls[from], text)
	if text == a.fail {
		return errors.New("boom")
	}
	return nil
}

func (a *actionRecorder) callsFor(from string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls[from]...)
}

func TestResponseHandlerPreservesPerSenderOrder(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())
	rec := newActionRecorder()
	rh := NewResponseHandler(svc, rec.action)

	ctx := context.Background()
	for _, text := range []string{"1", "2", "3", "4", "5"} {
		for _, from := range []string{"15550000001", "15550000002"} {
			if err := rh.ProcessResponse(ctx, models.Response{From: from, Body: text}); err != nil {
				t.Fatalf("ProcessResponse failed: %v", err)
			}
		}
	}
	rh.Wait()

	for _, from := range []string{"15550000001", "15550000002"} {
		got := rec.callsFor(from)
		if len(got) != 5 {
			t.Fatalf("expected 5 calls for %s, got %v", from, got)
		}
		for i, text := range got {
			if want := string(rune('1' + i)); text != want {
				t.Errorf("%s call %d: expected %s, got %s", from, i, want, text)
			}
		}
	}
	if rec.overlap {
		t.Error("messages from one sender were handled concurrently")
	}
	if rh.Pending() != 0 {
		t.Errorf("expected empty queues, got %d", rh.Pending())
	}
}

func TestResponseHandlerCanonicalizesSender(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())
	rec := newActionRecorder()
	rh := NewResponseHandler(svc, rec.action)

	if err := rh.ProcessResponse(context.Background(), models.Response{From: "whatsapp:+1 555 000 0001", Body: "hi"}); err != nil {
		t.Fatalf("ProcessResponse failed: %v", err)
	}
	if err := rh.ProcessResponse(context.Background(), models.Response{From: "nope", Body: "hi"}); err == nil {
		t.Error("expected invalid sender error")
	}
	rh.Wait()
	if got := rec.callsFor("15550000001"); len(got) != 1 {
		t.Errorf("expected canonical sender, got %v", rec.calls)
	}
}

func TestResponseHandlerSendsErrorMessage(t *testing.T) {
	mock := twiliowhatsapp.NewMockClient()
	svc := NewTwilioService(mock)
	rec := newActionRecorder()
	rec.fail = "bad"
	rh := NewResponseHandler(svc, rec.action)

	_ = rh.ProcessResponse(context.Background(), models.Response{From: "15550000001", Body: "bad"})
	rh.Wait()

	sent := mock.Sent()
	if len(sent) != 1 || sent[0].Body != DefaultErrorMessage {
		t.Errorf("expected error reply, got %+v", sent)
	}

	silent := NewResponseHandler(svc, rec.action, WithErrorMessage(""))
	_ = silent.ProcessResponse(context.Background(), models.Response{From: "15550000001", Body: "bad"})
	silent.Wait()
	if got := len(mock.Sent()); got != 1 {
		t.Errorf("expected no reply with empty error message, got %d messages", got)
	}
}

func TestResponseHandlerStartConsumesChannel(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())
	rec := newActionRecorder()
	rh := NewResponseHandler(svc, rec.action)
	rh.Start(context.Background())

	for _, text := range []string{"a", "b"} {
		if err := svc.Receive("", "15550000001", text); err != nil {
			t.Fatalf("Receive failed: %v", err)
		}
	}
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	rh.Wait()

	got := rec.callsFor("15550000001")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("expected [a b], got %v", got)
	}
}

func TestResponseHandlerStopsOnContextCancel(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())
	rh := NewResponseHandler(svc, newActionRecorder().action)
	ctx, cancel := context.WithCancel(context.Background())
	rh.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		rh.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not stop after context cancellation")
	}
}

type fakeDeduper struct {
	mu        sync.Mutex
	seen      map[string]bool
	processed []string
	err       error
}

func (d *fakeDeduper) RecordInbound(ctx context.Context, messageID, userID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return false, d.err
	}
	if d.seen == nil {
		d.seen = make(map[string]bool)
	}
	if d.seen[messageID] {
		return false, nil
	}
	d.seen[messageID] = true
	return true, nil
}

func (d *fakeDeduper) MarkProcessed(ctx context.Context, messageID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.processed = append(d.processed, messageID)
	return nil
}

func TestResponseHandlerDropsRedeliveries(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())
	rec := newActionRecorder()
	dedup := &fakeDeduper{}
	rh := NewResponseHandler(svc, rec.action, WithDeduper(dedup))

	ctx := context.Background()
	for _, r := range []models.Response{
		{ID: "SM1", From: "15550000001", Body: "Alice"},
		{ID: "SM1", From: "15550000001", Body: "Alice"},
		{ID: "SM2", From: "15550000001", Body: "30"},
		{From: "15550000001", Body: "no id"},
		{From: "15550000001", Body: "no id"},
	} {
		if err := rh.ProcessResponse(ctx, r); err != nil {
			t.Fatalf("ProcessResponse failed: %v", err)
		}
	}
	rh.Wait()

	got := rec.callsFor("15550000001")
	want := []string{"Alice", "30", "no id", "no id"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d: expected %q, got %q", i, want[i], got[i])
		}
	}
	if len(dedup.processed) != 2 {
		t.Errorf("expected 2 messages marked processed, got %v", dedup.processed)
	}
}

func TestResponseHandlerDedupFailsOpen(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())
	rec := newActionRecorder()
	rh := NewResponseHandler(svc, rec.action, WithDeduper(&fakeDeduper{err: errors.New("db down")}))

	_ = rh.ProcessResponse(context.Background(), models.Response{ID: "SM1", From: "15550000001", Body: "hi"})
	_ = rh.ProcessResponse(context.Background(), models.Response{ID: "SM1", From: "15550000001", Body: "hi"})
	rh.Wait()
	if got := rec.callsFor("15550000001"); len(got) != 2 {
		t.Errorf("expected both messages processed when dedup storage fails, got %v", got)
	}
}
