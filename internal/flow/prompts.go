package flow

import (
	"fmt"

	"github.com/BTreeMap/HealthMate/internal/models"
)

// Chat commands understood by the engine.
const (
	CommandStart  = "/start"
	CommandCancel = "/cancel"
	CommandStop   = "/stop"
	CommandHelp   = "/help"
)

// User-facing texts outside the question sequence.
const (
	HelpText = "🤖 I'm HealthMate AI.\n" +
		"/start - begin a new health checkup\n" +
		"/cancel - cancel the checkup in progress\n" +
		"/stop - stop wellness reminders"
	CancelledText     = "No worries, your session was cancelled. Type /start to try again. 😊"
	NothingToCancel   = "There's no checkup in progress. Type /start to begin one."
	CompletedText     = "✅ Your health checkup is already complete. Type /start to take it again."
	RemindersOffText  = "🔕 Reminders are off. Type /start anytime for a new checkup."
	PredictionFailure = "😓 Sorry, I couldn't compute your results right now. Please send any message to try again in a moment."
)

// prompt is the question asked when a state is entered.
type prompt struct {
	text    func(s models.Session) string
	options []string
}

func static(text string) func(models.Session) string {
	return func(models.Session) string { return text }
}

var prompts = map[models.State]prompt{
	models.StateName: {text: static("👋 Hey! I'm HealthMate AI. Let's take care of your wellness today. What's your name?")},
	models.StateAge: {text: func(s models.Session) string {
		return fmt.Sprintf("Nice to meet you, %s! 🎉 How old are you?", s.Name)
	}},
	models.StateGender:             {text: static("Got it! What's your gender?"), options: GenderOptions},
	models.StateHeight:             {text: static("Can you tell me your height in centimeters? 📏")},
	models.StateWeight:             {text: static("Thanks! And your weight in kilograms? ⚖️")},
	models.StateSleep:              {text: static("How many hours of sleep do you get on average per night? 😴")},
	models.StateActivity:           {text: static("Awesome! How many minutes do you usually move or exercise daily? 🏃 (You can also answer with a number of sessions, like 2x.)")},
	models.StateWater:              {text: static("How many liters of water do you drink every day? 💧")},
	models.StateJunkFood:           {text: static("How many times a week do you eat junk food like chips, burgers, or soda? 🍔")},
	models.StateFruitVeggies:       {text: static("How many servings of fruits and vegetables do you eat per day? 🥗")},
	models.StateFamilyHistory:      {text: static("Do you have a family history of chronic diseases? 🧬"), options: YesNoOptions},
	models.StateLifestyle:          {text: static("Do you smoke or consume alcohol? 🚬🍷"), options: LifestyleOptions},
	models.StateLifestyleFrequency: {text: static("How many times a week do you smoke or drink? 🔁")},
}
