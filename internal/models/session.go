package models

// ConversationState is the turn-taking state of a session. Exactly one value is active at a time.
type ConversationState string

// SessionPhase is the lifecycle of a whole session. It only moves forward:
// active -> summarizing -> summary.
type SessionPhase string

const (
	StateIdle       ConversationState = "idle"
	StateListening  ConversationState = "listening"
	StateProcessing ConversationState = "processing"
	StateSpeaking   ConversationState = "speaking"

	PhaseActive      SessionPhase = "active"
	PhaseSummarizing SessionPhase = "summarizing"
	PhaseSummary     SessionPhase = "summary"
)

// Busy reports whether a turn is in flight.
func (s ConversationState) Busy() bool {
	return s == StateProcessing || s == StateSpeaking
}

// Label is the short status line shown under the orb.
func (s ConversationState) Label() string {
	switch s {
	case StateListening:
		return "Listening..."
	case StateProcessing:
		return "Thinking..."
	case StateSpeaking:
		return "Speaking..."
	default:
		return "Tap to speak"
	}
}

// SessionSummary is the end-of-session reflection. It is produced once and never modified.
type SessionSummary struct {
	Arrived    string `json:"arrived"`
	Leaving    string `json:"leaving"`
	Reflection string `json:"reflection"`
}

// FallbackSummary is shown when the summary could not be generated.
func FallbackSummary() SessionSummary {
	return SessionSummary{
		Arrived:    "You arrived carrying something.",
		Leaving:    "You're leaving with a little more space around it.",
		Reflection: "Wonder showed up in the pauses.",
	}
}

// Visual is the result of the visual generation function. Both fields are optional.
type Visual struct {
	ImageBase64      *string `json:"imageBase64"`
	SoundscapePrompt *string `json:"soundscapePrompt"`
}

// Backdrop is what the background currently shows. While Crossfading, Previous fades out under
// Current.
type Backdrop struct {
	Current     string
	Previous    string
	Crossfading bool
	Images      int
}
