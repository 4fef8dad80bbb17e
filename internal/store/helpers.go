package store

import (
	"encoding/json"
	"fmt"

	"github.com/BTreeMap/HealthMate/internal/models"
)

// recordColumns is the column list shared by the SQL backends, in scan order.
const recordColumns = `id, user_id, name, age, gender, height_cm, weight_kg, bmi, sleep_hours,
	activity_minutes, water_liters, junk_food_per_week, fruit_veggies_per_day,
	family_history, lifestyle, lifestyle_frequency, predictions, created_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// recordArgs returns the insert arguments for rec in recordColumns order.
func recordArgs(rec models.Record) ([]any, error) {
	preds, err := json.Marshal(rec.Predictions)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal predictions: %w", err)
	}
	return []any{
		rec.ID, rec.UserID, rec.Name, rec.Age, string(rec.Gender), rec.HeightCM, rec.WeightKG, rec.BMI,
		rec.SleepHours, rec.ActivityMinutes, rec.WaterLiters, rec.JunkFoodPerWeek, rec.FruitVeggiesPerDay,
		rec.FamilyHistory, string(rec.Lifestyle), rec.LifestyleFrequency, string(preds), rec.CreatedAt.UTC(),
	}, nil
}

// scanRecord reads one row selected with recordColumns.
func scanRecord(row rowScanner) (models.Record, error) {
	var rec models.Record
	var gender, lifestyle string
	var preds []byte
	err := row.Scan(
		&rec.ID, &rec.UserID, &rec.Name, &rec.Age, &gender, &rec.HeightCM, &rec.WeightKG, &rec.BMI,
		&rec.SleepHours, &rec.ActivityMinutes, &rec.WaterLiters, &rec.JunkFoodPerWeek, &rec.FruitVeggiesPerDay,
		&rec.FamilyHistory, &lifestyle, &rec.LifestyleFrequency, &preds, &rec.CreatedAt,
	)
	if err != nil {
		return rec, fmt.Errorf("scan record failed: %w", err)
	}
	rec.Gender = models.Gender(gender)
	rec.Lifestyle = models.LifestyleHabit(lifestyle)
	rec.Predictions = make(map[string]float64)
	if len(preds) > 0 {
		if err := json.Unmarshal(preds, &rec.Predictions); err != nil {
			return rec, fmt.Errorf("failed to unmarshal predictions for record %s: %w", rec.ID, err)
		}
	}
	return rec, nil
}
