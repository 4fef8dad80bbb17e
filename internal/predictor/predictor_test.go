package predictor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BTreeMap/HealthMate/internal/models"
)

func newTestServer(t *testing.T, status int, body string, seen *map[string]float64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected JSON content type, got %q", ct)
		}
		if seen != nil {
			if err := json.NewDecoder(r.Body).Decode(seen); err != nil {
				t.Errorf("failed to decode request: %v", err)
			}
		}
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
}

func TestPredictSendsFeatureVector(t *testing.T) {
	var seen map[string]float64
	srv := newTestServer(t, http.StatusOK, `{"predictions": {"Diagnosed_diabetes": 35.5, "Risk_asthma": 2}}`, &seen)
	defer srv.Close()

	c, err := NewClient(WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	features := models.FeatureVector{Age: 30, Gender: 1, BMI: 33.06, PhysicalActivityMins: 60, FamilyHistory: 1}
	got, err := c.Predict(context.Background(), features)
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if got[models.DiseaseDiabetes] != 35.5 || got[models.DiseaseAsthma] != 2 {
		t.Errorf("unexpected predictions: %v", got)
	}
	if len(seen) != len(models.FeatureOrder) {
		t.Errorf("expected %d features in request, got %d", len(models.FeatureOrder), len(seen))
	}
	if seen["BMI"] != 33.06 || seen["Physical_activity_mins"] != 60 || seen["Screen_time_hrs"] != 0 {
		t.Errorf("unexpected request body: %v", seen)
	}
}

func TestPredictAcceptsAlternateShapes(t *testing.T) {
	body := `{"predictions": {"Risk_tb": {"label": "ok", "probability": 1.5}, "Risk_cancer": ["⚠️", 42]}}`
	srv := newTestServer(t, http.StatusOK, body, nil)
	defer srv.Close()

	c, _ := NewClient(WithBaseURL(srv.URL))
	got, err := c.Predict(context.Background(), models.FeatureVector{})
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if got[models.DiseaseTB] != 1.5 || got[models.DiseaseCancer] != 42 {
		t.Errorf("unexpected predictions: %v", got)
	}
}

func TestPredictErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		malformed bool
	}{
		{"server error", http.StatusInternalServerError, `boom`, false},
		{"error field", http.StatusOK, `{"error": "model not loaded"}`, false},
		{"not json", http.StatusOK, `<html>`, true},
		{"empty predictions", http.StatusOK, `{"predictions": {}}`, true},
		{"out of range", http.StatusOK, `{"predictions": {"Risk_tb": 120}}`, true},
		{"negative", http.StatusOK, `{"predictions": {"Risk_tb": -1}}`, true},
		{"string value", http.StatusOK, `{"predictions": {"Risk_tb": "high"}}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.status, tt.body, nil)
			defer srv.Close()
			c, _ := NewClient(WithBaseURL(srv.URL))
			_, err := c.Predict(context.Background(), models.FeatureVector{})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, models.ErrMalformedResponse); got != tt.malformed {
				t.Errorf("expected malformed=%v, got %v (%v)", tt.malformed, got, err)
			}
		})
	}
}

func TestPredictTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c, _ := NewClient(WithBaseURL(srv.URL), WithTimeout(20*time.Millisecond))
	if _, err := c.Predict(context.Background(), models.FeatureVector{}); err == nil {
		t.Error("expected timeout error")
	}
}

func TestPredictContextCancelled(t *testing.T) {
	srv := newTestServer(t, http.StatusOK, `{"predictions": {"Risk_tb": 1}}`, nil)
	defer srv.Close()

	c, _ := NewClient(WithBaseURL(srv.URL))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Predict(ctx, models.FeatureVector{}); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestNewClientRequiresURL(t *testing.T) {
	if _, err := NewClient(); err == nil {
		t.Error("expected error without base URL")
	}
}
