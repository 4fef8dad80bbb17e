package flow

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/BTreeMap/HealthMate/internal/models"
)

// MaxNameLength is the maximum accepted name length in runes.
const MaxNameLength = 64

// Choice options presented with keyboard prompts.
var (
	GenderOptions    = []string{"Male", "Female"}
	YesNoOptions     = []string{"Yes", "No"}
	LifestyleOptions = []string{"No", "Smoking", "Alcohol", "Both"}
)

var lifestyleByOption = map[string]models.LifestyleHabit{
	"No":      models.LifestyleNone,
	"Smoking": models.LifestyleSmoking,
	"Alcohol": models.LifestyleAlcohol,
	"Both":    models.LifestyleBoth,
}

// Answer is a validated, typed answer for one interview state.
// Only the field matching the state is meaningful.
type Answer struct {
	State  models.State
	Text   string
	Int    int
	Float  float64
	Bool   bool
	Gender models.Gender
	Habit  models.LifestyleHabit
	// Sessions is set when activity was given as an exercise count ("3x").
	Sessions int
}

// numericRule bounds a numeric answer; both ends are inclusive.
type numericRule struct {
	min, max float64
	whole    bool
}

var numericRules = map[models.State]numericRule{
	models.StateAge:                {min: 0, max: 130, whole: true},
	models.StateHeight:             {min: 50, max: 250},
	models.StateWeight:             {min: 2, max: 400},
	models.StateSleep:              {min: 0, max: 24},
	models.StateActivity:           {min: 0, max: 1440},
	models.StateWater:              {min: 0, max: math.Inf(1)},
	models.StateJunkFood:           {min: 0, max: 1000, whole: true},
	models.StateFruitVeggies:       {min: 0, max: 100, whole: true},
	models.StateLifestyleFrequency: {min: 1, max: 1000, whole: true},
}

// maxExerciseSessions bounds the "Nx" activity form to a day's worth of sessions.
const maxExerciseSessions = 48

// ParseAnswer validates raw user text for the given state and coerces it into a typed Answer.
// Failures are returned as *models.ValidationError and never carry a partial value.
func ParseAnswer(state models.State, raw string) (Answer, error) {
	text := strings.TrimSpace(raw)
	ans := Answer{State: state}

	switch state {
	case models.StateName:
		if text == "" {
			return ans, invalid(state, raw, "Please tell me your name.")
		}
		if utf8.RuneCountInString(text) > MaxNameLength {
			return ans, invalid(state, raw, fmt.Sprintf("Please keep your name under %d characters.", MaxNameLength))
		}
		ans.Text = text
		return ans, nil

	case models.StateGender:
		opt, ok := matchOption(text, GenderOptions)
		if !ok {
			return ans, invalid(state, raw, optionReason(GenderOptions))
		}
		ans.Gender = models.Gender(opt)
		return ans, nil

	case models.StateFamilyHistory:
		opt, ok := matchOption(text, YesNoOptions)
		if !ok {
			return ans, invalid(state, raw, optionReason(YesNoOptions))
		}
		ans.Bool = opt == "Yes"
		return ans, nil

	case models.StateLifestyle:
		opt, ok := matchOption(text, LifestyleOptions)
		if !ok {
			return ans, invalid(state, raw, optionReason(LifestyleOptions))
		}
		ans.Habit = lifestyleByOption[opt]
		return ans, nil

	case models.StateActivity:
		if count, ok := strings.CutSuffix(strings.ToLower(text), "x"); ok {
			n, reason := parseWhole(strings.TrimSpace(count), 0, maxExerciseSessions)
			if reason != "" {
				return ans, invalid(state, raw, reason)
			}
			ans.Sessions = n
			ans.Float = float64(n * models.MinutesPerExerciseSession)
			return ans, nil
		}
	}

	rule, ok := numericRules[state]
	if !ok {
		return ans, invalid(state, raw, "No answer is expected right now.")
	}
	if rule.whole {
		n, reason := parseWhole(text, rule.min, rule.max)
		if reason != "" {
			return ans, invalid(state, raw, reason)
		}
		ans.Int = n
		ans.Float = float64(n)
		return ans, nil
	}
	v, reason := parseNumber(text, rule.min, rule.max)
	if reason != "" {
		return ans, invalid(state, raw, reason)
	}
	ans.Float = v
	return ans, nil
}

func parseNumber(text string, min, max float64) (float64, string) {
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, "Please enter a number."
	}
	if v < min || v > max {
		return 0, rangeReason(min, max)
	}
	return v, ""
}

func parseWhole(text string, min, max float64) (int, string) {
	v, reason := parseNumber(text, min, max)
	if reason != "" {
		return 0, reason
	}
	if v != math.Trunc(v) {
		return 0, "Please enter a whole number."
	}
	// int(v) is undefined past the int range.
	if math.Abs(v) > math.MaxInt32 {
		return 0, rangeReason(min, max)
	}
	return int(v), ""
}

func rangeReason(min, max float64) string {
	if math.IsInf(max, 1) {
		return fmt.Sprintf("Please enter a number of at least %s.", formatBound(min))
	}
	return fmt.Sprintf("Please enter a number between %s and %s.", formatBound(min), formatBound(max))
}

func formatBound(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// matchOption performs a case-insensitive exact match against the presented options.
func matchOption(text string, options []string) (string, bool) {
	for _, opt := range options {
		if strings.EqualFold(text, opt) {
			return opt, true
		}
	}
	return "", false
}

func optionReason(options []string) string {
	return "Please choose one of: " + strings.Join(options, ", ") + "."
}

func invalid(state models.State, raw, reason string) error {
	return &models.ValidationError{State: state, RawInput: raw, Reason: reason}
}
