package models

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestStateNextFollowsInterviewOrder(t *testing.T) {
	for i := 0; i < len(InterviewOrder)-1; i++ {
		if got := InterviewOrder[i].Next(); got != InterviewOrder[i+1] {
			t.Errorf("%s.Next() = %q, want %q", InterviewOrder[i], got, InterviewOrder[i+1])
		}
	}
	if got := StateFinalize.Next(); got != "" {
		t.Errorf("StateFinalize.Next() = %q, want empty", got)
	}
	if got := StateComplete.Next(); got != "" {
		t.Errorf("StateComplete.Next() = %q, want empty", got)
	}
}

func TestStateAwaitsInput(t *testing.T) {
	if !StateName.AwaitsInput() || !StateLifestyleFrequency.AwaitsInput() {
		t.Error("interview states should await input")
	}
	for _, s := range []State{StateFinalize, StateComplete, StateCancelled, "", "bogus"} {
		if s.AwaitsInput() {
			t.Errorf("%q should not await input", s)
		}
	}
}

func TestNewPredictionThreshold(t *testing.T) {
	tests := []struct {
		prob float64
		want RiskLabel
	}{
		{0, RiskLabelOK},
		{19.99, RiskLabelOK},
		{20, RiskLabelRisk},
		{87.5, RiskLabelRisk},
	}
	for _, tt := range tests {
		if got := NewPrediction(tt.prob).Label; got != tt.want {
			t.Errorf("NewPrediction(%v).Label = %s, want %s", tt.prob, got, tt.want)
		}
	}
}

func TestNewFeatureVectorOrderAndDefaults(t *testing.T) {
	s := Session{
		Age: 54, Gender: GenderFemale, BMI: 33.06, SleepHours: 6,
		ActivityMinutes: 45, WaterLiters: 1, JunkFoodPerWeek: 5,
		FruitVeggiesPerDay: 1, FamilyHistory: true,
	}
	fv := NewFeatureVector(s)
	want := []float64{54, 0, 33.06, 6, 45, 1, 0, 0, 0, 5, 1, 0, 1}
	if got := fv.Values(); !reflect.DeepEqual(got, want) {
		t.Errorf("Values() = %v, want %v", got, want)
	}
	if len(FeatureOrder) != len(want) {
		t.Fatalf("FeatureOrder has %d entries, want %d", len(FeatureOrder), len(want))
	}

	s.Gender = GenderMale
	s.ExerciseSessions = 3
	fv = NewFeatureVector(s)
	if fv.Gender != 1 {
		t.Errorf("male should encode as 1, got %v", fv.Gender)
	}
	if fv.PhysicalActivityMins != 90 {
		t.Errorf("3 exercise sessions should derive 90 minutes, got %v", fv.PhysicalActivityMins)
	}
}

func TestSortDiseases(t *testing.T) {
	got := SortDiseases([]string{"zeta", DiseaseCancer, "alpha", DiseaseDiabetes})
	want := []string{DiseaseDiabetes, DiseaseCancer, "alpha", "zeta"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SortDiseases = %v, want %v", got, want)
	}
}

func TestRecordRowHasColumnPerDisease(t *testing.T) {
	s := NewSession("42", time.Now())
	s.Name = "Ada"
	s.FamilyHistory = true
	s.Predictions = map[string]Prediction{
		DiseaseAnxiety:  NewPrediction(12),
		DiseaseDiabetes: NewPrediction(40),
	}
	row := NewRecord("rec-1", s, time.Now()).Row()
	last := row[len(row)-2:]
	if last[0].Key != DiseaseDiabetes || last[0].Value != "40" {
		t.Errorf("unexpected disease column %+v", last[0])
	}
	if last[1].Key != DiseaseAnxiety || last[1].Value != "12" {
		t.Errorf("unexpected disease column %+v", last[1])
	}
	for _, c := range row {
		if c.Key == "Family_history" && c.Value != "Yes" {
			t.Errorf("Family_history = %q, want Yes", c.Value)
		}
	}
}

func TestSessionCloneIsDeep(t *testing.T) {
	s := Session{Predictions: map[string]Prediction{DiseaseTB: NewPrediction(5)}}
	c := s.Clone()
	c.Predictions[DiseaseTB] = NewPrediction(50)
	if s.Predictions[DiseaseTB].Probability != 5 {
		t.Error("Clone shared the predictions map")
	}
}

func TestTypedErrorsUnwrap(t *testing.T) {
	cause := errors.New("boom")
	var pe *PredictionError
	if !errors.As(error(&PredictionError{UserID: "1", Err: cause}), &pe) || !errors.Is(pe, cause) {
		t.Error("PredictionError should unwrap to its cause")
	}
	if !errors.Is(&PersistenceError{Err: cause}, cause) || !errors.Is(&SchedulingError{Err: cause}, cause) {
		t.Error("PersistenceError and SchedulingError should unwrap to their cause")
	}
}
