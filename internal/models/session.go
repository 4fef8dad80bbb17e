// Package models defines the core data structures for HealthMate.
//
// It includes the interview session, the conversation states, predictions and
// the persisted record shape, which are shared across modules.
package models

import "time"

// State identifies a step of the health checkup interview.
type State string

const (
	StateName               State = "name"
	StateAge                State = "age"
	StateGender             State = "gender"
	StateHeight             State = "height"
	StateWeight             State = "weight"
	StateSleep              State = "sleep"
	StateActivity           State = "activity"
	StateWater              State = "water"
	StateJunkFood           State = "junk_food"
	StateFruitVeggies       State = "fruit_veggies"
	StateFamilyHistory      State = "family_history"
	StateLifestyle          State = "lifestyle"
	StateLifestyleFrequency State = "lifestyle_frequency"
	StateFinalize           State = "finalize"
	// StateComplete is reached once predictions are attached.
	StateComplete State = "complete"
	// StateCancelled is terminal; cancelled sessions are removed from the store.
	StateCancelled State = "cancelled"
)

// InterviewOrder is the fixed total order of interview states.
var InterviewOrder = []State{
	StateName,
	StateAge,
	StateGender,
	StateHeight,
	StateWeight,
	StateSleep,
	StateActivity,
	StateWater,
	StateJunkFood,
	StateFruitVeggies,
	StateFamilyHistory,
	StateLifestyle,
	StateLifestyleFrequency,
	StateFinalize,
}

// Next returns the fixed successor of s, or "" when s has none.
func (s State) Next() State {
	for i, st := range InterviewOrder {
		if st == s && i+1 < len(InterviewOrder) {
			return InterviewOrder[i+1]
		}
	}
	return ""
}

// AwaitsInput reports whether the state is waiting for a user answer.
func (s State) AwaitsInput() bool {
	switch s {
	case StateFinalize, StateComplete, StateCancelled, "":
		return false
	}
	for _, st := range InterviewOrder {
		if st == s {
			return true
		}
	}
	return false
}

// Gender is the self-reported gender option.
type Gender string

const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
)

// LifestyleHabit is the smoking/alcohol habit option.
type LifestyleHabit string

const (
	LifestyleNone    LifestyleHabit = "None"
	LifestyleSmoking LifestyleHabit = "Smoking"
	LifestyleAlcohol LifestyleHabit = "Alcohol"
	LifestyleBoth    LifestyleHabit = "Both"
)

// Session holds one user's in-progress or completed interview.
type Session struct {
	UserID string `json:"user_id"`
	State  State  `json:"state"`

	Name     string  `json:"name,omitempty"`
	Age      int     `json:"age,omitempty"`
	Gender   Gender  `json:"gender,omitempty"`
	HeightCM float64 `json:"height_cm,omitempty"`
	WeightKG float64 `json:"weight_kg,omitempty"`
	// BMI is derived once from HeightCM and WeightKG when the weight answer is committed.
	BMI float64 `json:"bmi,omitempty"`

	SleepHours      float64 `json:"sleep_hours,omitempty"`
	ActivityMinutes float64 `json:"activity_minutes,omitempty"`
	// ExerciseSessions is set when activity was answered as a count ("3x") instead of minutes.
	ExerciseSessions   int            `json:"exercise_sessions,omitempty"`
	WaterLiters        float64        `json:"water_liters,omitempty"`
	JunkFoodPerWeek    int            `json:"junk_food_per_week,omitempty"`
	FruitVeggiesPerDay int            `json:"fruit_veggies_per_day,omitempty"`
	FamilyHistory      bool           `json:"family_history,omitempty"`
	Lifestyle          LifestyleHabit `json:"lifestyle,omitempty"`
	LifestyleFrequency int            `json:"lifestyle_frequency,omitempty"`

	Predictions map[string]Prediction `json:"predictions,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewSession returns a fresh session positioned at the first interview state.
func NewSession(userID string, now time.Time) Session {
	return Session{
		UserID:    userID,
		State:     StateName,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsComplete reports whether predictions have been attached.
func (s Session) IsComplete() bool {
	return s.State == StateComplete && s.Predictions != nil
}

// Clone returns a deep copy of s.
func (s Session) Clone() Session {
	c := s
	if s.Predictions != nil {
		c.Predictions = make(map[string]Prediction, len(s.Predictions))
		for k, v := range s.Predictions {
			c.Predictions[k] = v
		}
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	return c
}
