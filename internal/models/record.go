package models

import (
	"strconv"
	"time"
)

// Record is one append-only row written when a session is finalized.
type Record struct {
	ID                 string             `json:"id"`
	UserID             string             `json:"user_id"`
	Name               string             `json:"name"`
	Age                int                `json:"age"`
	Gender             Gender             `json:"gender"`
	HeightCM           float64            `json:"height_cm"`
	WeightKG           float64            `json:"weight_kg"`
	BMI                float64            `json:"bmi"`
	SleepHours         float64            `json:"sleep_hours"`
	ActivityMinutes    float64            `json:"activity_minutes"`
	WaterLiters        float64            `json:"water_liters"`
	JunkFoodPerWeek    int                `json:"junk_food_per_week"`
	FruitVeggiesPerDay int                `json:"fruit_veggies_per_day"`
	FamilyHistory      bool               `json:"family_history"`
	Lifestyle          LifestyleHabit     `json:"lifestyle"`
	LifestyleFrequency int                `json:"lifestyle_frequency"`
	Predictions        map[string]float64 `json:"predictions"`
	CreatedAt          time.Time          `json:"created_at"`
}

// NewRecord flattens a completed session into a record row.
func NewRecord(id string, s Session, now time.Time) Record {
	preds := make(map[string]float64, len(s.Predictions))
	for disease, p := range s.Predictions {
		preds[disease] = p.Probability
	}
	activity := s.ActivityMinutes
	if s.ExerciseSessions > 0 {
		activity = float64(s.ExerciseSessions * MinutesPerExerciseSession)
	}
	return Record{
		ID:                 id,
		UserID:             s.UserID,
		Name:               s.Name,
		Age:                s.Age,
		Gender:             s.Gender,
		HeightCM:           s.HeightCM,
		WeightKG:           s.WeightKG,
		BMI:                s.BMI,
		SleepHours:         s.SleepHours,
		ActivityMinutes:    activity,
		WaterLiters:        s.WaterLiters,
		JunkFoodPerWeek:    s.JunkFoodPerWeek,
		FruitVeggiesPerDay: s.FruitVeggiesPerDay,
		FamilyHistory:      s.FamilyHistory,
		Lifestyle:          s.Lifestyle,
		LifestyleFrequency: s.LifestyleFrequency,
		Predictions:        preds,
		CreatedAt:          now,
	}
}

// Column is one key/value cell of a flattened record.
type Column struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Row flattens the record into ordered columns, one per session field and one per disease.
func (r Record) Row() []Column {
	familyHistory := "No"
	if r.FamilyHistory {
		familyHistory = "Yes"
	}
	cols := []Column{
		{"UserID", r.UserID},
		{"Name", r.Name},
		{"Age", strconv.Itoa(r.Age)},
		{"Gender", string(r.Gender)},
		{"Height_cm", formatFloat(r.HeightCM)},
		{"Weight_kg", formatFloat(r.WeightKG)},
		{"BMI", formatFloat(r.BMI)},
		{"Sleep_hours", formatFloat(r.SleepHours)},
		{"Activity_minutes", formatFloat(r.ActivityMinutes)},
		{"Water_intake_liters", formatFloat(r.WaterLiters)},
		{"Junk_food_per_week", strconv.Itoa(r.JunkFoodPerWeek)},
		{"Fruit_veggies_per_day", strconv.Itoa(r.FruitVeggiesPerDay)},
		{"Family_history", familyHistory},
		{"Lifestyle", string(r.Lifestyle)},
		{"Lifestyle_freq", strconv.Itoa(r.LifestyleFrequency)},
	}
	keys := make([]string, 0, len(r.Predictions))
	for k := range r.Predictions {
		keys = append(keys, k)
	}
	for _, disease := range SortDiseases(keys) {
		cols = append(cols, Column{disease, formatFloat(r.Predictions[disease])})
	}
	return cols
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
