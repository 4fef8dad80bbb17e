package models

import (
	"math"
	"sort"
)

// RiskThreshold is the probability (percent) at or above which a disease is labelled a risk.
const RiskThreshold = 20.0

// MinutesPerExerciseSession converts an exercise-session count into activity minutes.
const MinutesPerExerciseSession = 30

// RiskLabel is the qualitative label attached to a prediction.
type RiskLabel string

const (
	RiskLabelRisk RiskLabel = "risk"
	RiskLabelOK   RiskLabel = "ok"
)

// Disease identifiers produced by the risk models.
const (
	DiseaseDiabetes      = "Diagnosed_diabetes"
	DiseaseAnxiety       = "Risk_anxiety"
	DiseaseDepression    = "Risk_depression"
	DiseaseObesity       = "Risk_obesity"
	DiseaseAsthma        = "Risk_asthma"
	DiseaseMigraine      = "Risk_migraine"
	DiseaseTB            = "Risk_tb"
	DiseaseCancer        = "Risk_cancer"
	DiseaseHeartDisease  = "Risk_heart_disease"
	DiseaseStressBurnout = "Risk_stress_burnout"
)

// Diseases lists the known disease identifiers in display order.
var Diseases = []string{
	DiseaseDiabetes,
	DiseaseAnxiety,
	DiseaseDepression,
	DiseaseObesity,
	DiseaseAsthma,
	DiseaseMigraine,
	DiseaseTB,
	DiseaseCancer,
	DiseaseHeartDisease,
	DiseaseStressBurnout,
}

// Prediction is the risk result for a single disease.
type Prediction struct {
	Label       RiskLabel `json:"label"`
	Probability float64   `json:"probability"`
}

// NewPrediction labels a probability (0..100) against RiskThreshold.
func NewPrediction(probability float64) Prediction {
	label := RiskLabelOK
	if probability >= RiskThreshold {
		label = RiskLabelRisk
	}
	return Prediction{Label: label, Probability: probability}
}

// IsRisk reports whether the prediction is at or above the risk threshold.
func (p Prediction) IsRisk() bool {
	return p.Label == RiskLabelRisk
}

// ValidProbability reports whether p is a usable percentage.
func ValidProbability(p float64) bool {
	return !math.IsNaN(p) && !math.IsInf(p, 0) && p >= 0 && p <= 100
}

// SortDiseases orders disease keys: known diseases first in display order, then the rest alphabetically.
func SortDiseases(keys []string) []string {
	rank := make(map[string]int, len(Diseases))
	for i, d := range Diseases {
		rank[d] = i
	}
	out := append([]string(nil), keys...)
	sort.SliceStable(out, func(i, j int) bool {
		ri, iok := rank[out[i]]
		rj, jok := rank[out[j]]
		switch {
		case iok && jok:
			return ri < rj
		case iok != jok:
			return iok
		default:
			return out[i] < out[j]
		}
	})
	return out
}

// FeatureVector is the ordered input of the risk models.
// Field order and JSON names are a contract with the model server.
type FeatureVector struct {
	Age                  float64 `json:"Age"`
	Gender               float64 `json:"Gender"`
	BMI                  float64 `json:"BMI"`
	SleepHours           float64 `json:"Sleep_hours"`
	PhysicalActivityMins float64 `json:"Physical_activity_mins"`
	WaterIntakeLiters    float64 `json:"Water_intake_liters"`
	ScreenTimeHrs        float64 `json:"Screen_time_hrs"`
	StressLevel          float64 `json:"Stress_level"`
	WorkStudyPressure    float64 `json:"Work_study_pressure"`
	JunkFoodPerWeek      float64 `json:"Junk_food_per_week"`
	FruitVeggiesPerDay   float64 `json:"Fruit_veggies_per_day"`
	SocialInteractionHrs float64 `json:"Social_interaction_hrs"`
	FamilyHistory        float64 `json:"Family_history"`
}

// FeatureOrder is the column order of FeatureVector.Values.
var FeatureOrder = []string{
	"Age", "Gender", "BMI", "Sleep_hours", "Physical_activity_mins",
	"Water_intake_liters", "Screen_time_hrs", "Stress_level",
	"Work_study_pressure", "Junk_food_per_week", "Fruit_veggies_per_day",
	"Social_interaction_hrs", "Family_history",
}

// NewFeatureVector builds the model input from a finished interview.
// Features the interview does not collect are fixed at 0.
func NewFeatureVector(s Session) FeatureVector {
	activity := s.ActivityMinutes
	if s.ExerciseSessions > 0 {
		activity = float64(s.ExerciseSessions * MinutesPerExerciseSession)
	}
	return FeatureVector{
		Age:                  float64(s.Age),
		Gender:               boolFloat(s.Gender == GenderMale),
		BMI:                  s.BMI,
		SleepHours:           s.SleepHours,
		PhysicalActivityMins: activity,
		WaterIntakeLiters:    s.WaterLiters,
		JunkFoodPerWeek:      float64(s.JunkFoodPerWeek),
		FruitVeggiesPerDay:   float64(s.FruitVeggiesPerDay),
		FamilyHistory:        boolFloat(s.FamilyHistory),
	}
}

// Values returns the features in FeatureOrder.
func (f FeatureVector) Values() []float64 {
	return []float64{
		f.Age, f.Gender, f.BMI, f.SleepHours, f.PhysicalActivityMins,
		f.WaterIntakeLiters, f.ScreenTimeHrs, f.StressLevel,
		f.WorkStudyPressure, f.JunkFoodPerWeek, f.FruitVeggiesPerDay,
		f.SocialInteractionHrs, f.FamilyHistory,
	}
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
