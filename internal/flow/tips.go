package flow

import (
	"github.com/BTreeMap/HealthMate/internal/models"
)

// healthTips are the curated tips for diseases at or above the risk threshold.
var healthTips = map[string]string{
	models.DiseaseDiabetes:      "🍬 Cut back on sugar and walk daily.",
	models.DiseaseAnxiety:       "🧘 Try meditation and regular sleep.",
	models.DiseaseDepression:    "📔 Journal your thoughts and talk to someone.",
	models.DiseaseObesity:       "🥗 Avoid junk food and move more.",
	models.DiseaseAsthma:        "😷 Avoid allergens and dusty areas.",
	models.DiseaseMigraine:      "💡 Reduce screen time and maintain sleep.",
	models.DiseaseTB:            "🏥 If coughing persists, get tested.",
	models.DiseaseCancer:        "🚭 Avoid smoking/alcohol, eat healthy.",
	models.DiseaseHeartDisease:  "💓 Eat less salt and fat, stay active.",
	models.DiseaseStressBurnout: "⏳ Take breaks and balance work and rest.",
}

// TipsFor returns the tips for every at-risk disease in display order.
// Diseases without a curated tip are skipped.
func TipsFor(preds map[string]models.Prediction) []string {
	keys := make([]string, 0, len(preds))
	for k := range preds {
		keys = append(keys, k)
	}
	var tips []string
	seen := make(map[string]bool)
	for _, disease := range models.SortDiseases(keys) {
		if !preds[disease].IsRisk() {
			continue
		}
		tip, ok := healthTips[disease]
		if !ok || seen[tip] {
			continue
		}
		seen[tip] = true
		tips = append(tips, tip)
	}
	return tips
}
