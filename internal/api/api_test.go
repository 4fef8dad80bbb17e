package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/HealthMate/internal/messaging"
	"github.com/BTreeMap/HealthMate/internal/models"
	"github.com/BTreeMap/HealthMate/internal/store"
	"github.com/BTreeMap/HealthMate/internal/testutil"
	"github.com/BTreeMap/HealthMate/internal/twiliowhatsapp"
)

type failingLister struct{}

func (failingLister) ListRecords(ctx context.Context, userID string) ([]models.Record, error) {
	return nil, errors.New("db down")
}

type stubValidator struct {
	valid   bool
	gotURL  string
	gotBody map[string]string
}

func (v *stubValidator) Validate(url string, params map[string]string, signature string) bool {
	v.gotURL = url
	v.gotBody = params
	return v.valid && signature != ""
}

func TestHealthz(t *testing.T) {
	s := NewServer(store.NewInMemoryStore())
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "healthz")
	testutil.AssertJSONResponse(t, rr, models.APIStatusOK)
}

func TestRecordsHandler(t *testing.T) {
	st := store.NewInMemoryStore()
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"r2", "r1"} {
		rec := models.Record{ID: id, UserID: "15551234567", Name: "Alice", CreatedAt: base.Add(-time.Duration(i) * time.Hour)}
		if err := st.AppendRecord(context.Background(), rec); err != nil {
			t.Fatalf("AppendRecord failed: %v", err)
		}
	}
	s := NewServer(st)

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/records/15551234567", nil))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "records")
	resp := testutil.AssertJSONResponse(t, rr, models.APIStatusOK)

	result, ok := resp["result"].([]interface{})
	if !ok || len(result) != 2 {
		t.Fatalf("expected 2 records, got %v", resp["result"])
	}
	first := result[0].(map[string]interface{})
	if first["id"] != "r1" {
		t.Errorf("expected oldest record first, got %v", first["id"])
	}
}

func TestRecordsHandlerEmptyAndErrors(t *testing.T) {
	rr := httptest.NewRecorder()
	NewServer(store.NewInMemoryStore()).Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/records/nobody", nil))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "empty records")
	if !strings.Contains(rr.Body.String(), `"result":[]`) {
		t.Errorf("expected empty list, got %s", rr.Body.String())
	}

	rr = httptest.NewRecorder()
	NewServer(failingLister{}).Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/records/u1", nil))
	testutil.AssertHTTPStatus(t, http.StatusInternalServerError, rr.Code, "failing store")
	testutil.AssertJSONResponse(t, rr, models.APIStatusError)
}

func TestWebhookRouteDisabledByDefault(t *testing.T) {
	rr := httptest.NewRecorder()
	NewServer(store.NewInMemoryStore()).Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/webhook/twilio", nil))
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "webhook without transport")
}

func twilioRequest(signature string) *http.Request {
	form := url.Values{"From": {"whatsapp:+15551234567"}, "Body": {"hi"}}
	req := httptest.NewRequest(http.MethodPost, "http://example.com/webhook/twilio", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if signature != "" {
		req.Header.Set(TwilioSignatureHeader, signature)
	}
	return req
}

func TestTwilioWebhookSignature(t *testing.T) {
	tests := []struct {
		name      string
		valid     bool
		signature string
		publicURL string
		wantCode  int
		wantURL   string
	}{
		{"valid", true, "sig", "", http.StatusOK, "http://example.com/webhook/twilio"},
		{"public url", true, "sig", "https://hm.example.org/webhook/twilio", http.StatusOK, "https://hm.example.org/webhook/twilio"},
		{"bad signature", false, "sig", "", http.StatusForbidden, "http://example.com/webhook/twilio"},
		{"missing signature", true, "", "", http.StatusForbidden, "http://example.com/webhook/twilio"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := messaging.NewTwilioService(twiliowhatsapp.NewMockClient())
			v := &stubValidator{valid: tt.valid}
			s := NewServer(store.NewInMemoryStore(),
				WithTwilioWebhook(svc.HandleWebhook),
				WithSignatureValidator(v),
				WithPublicWebhookURL(tt.publicURL),
			)
			rr := httptest.NewRecorder()
			s.Handler().ServeHTTP(rr, twilioRequest(tt.signature))

			testutil.AssertHTTPStatus(t, tt.wantCode, rr.Code, tt.name)
			if v.gotURL != tt.wantURL {
				t.Errorf("expected signed URL %q, got %q", tt.wantURL, v.gotURL)
			}
			if v.gotBody["Body"] != "hi" {
				t.Errorf("expected form params passed to validator, got %v", v.gotBody)
			}
			if queued := len(svc.Responses()); (tt.wantCode == http.StatusOK) != (queued == 1) {
				t.Errorf("unexpected queued responses: %d", queued)
			}
		})
	}
}

func TestTwilioWebhookWithoutValidator(t *testing.T) {
	svc := messaging.NewTwilioService(twiliowhatsapp.NewMockClient())
	s := NewServer(store.NewInMemoryStore(), WithTwilioWebhook(svc.HandleWebhook))
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, twilioRequest(""))

	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "unsigned webhook")
	if r := <-svc.Responses(); r.From != "15551234567" || r.Body != "hi" {
		t.Errorf("unexpected response: %+v", r)
	}
}

func TestRunShutsDownOnCancel(t *testing.T) {
	s := NewServer(store.NewInMemoryStore(), WithAddr("127.0.0.1:0"))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestRecordsHandlerRowsFormat(t *testing.T) {
	st := store.NewInMemoryStore()
	rec := models.Record{
		ID:          "r1",
		UserID:      "u1",
		Name:        "Alice",
		Predictions: map[string]float64{models.DiseaseDiabetes: 35},
		CreatedAt:   time.Now(),
	}
	if err := st.AppendRecord(context.Background(), rec); err != nil {
		t.Fatalf("AppendRecord failed: %v", err)
	}
	s := NewServer(st)

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/records/u1?format=rows", nil))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "rows")
	resp := testutil.AssertJSONResponse(t, rr, models.APIStatusOK)
	rows, ok := resp["result"].([]interface{})
	if !ok || len(rows) != 1 {
		t.Fatalf("expected one row, got %v", resp["result"])
	}
	cols := rows[0].([]interface{})
	last := cols[len(cols)-1].(map[string]interface{})
	if last["key"] != models.DiseaseDiabetes || last["value"] != "35" {
		t.Errorf("expected disease column last, got %v", last)
	}

	rr = httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/records/u1?format=csv", nil))
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "bad format")
}
