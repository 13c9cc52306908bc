package models

import "strings"

// Keys under which user preferences are persisted.
const (
	SettingVoice          = "wonder-voice"
	SettingAutoTranscript = "wonder-auto-transcript"
	SettingVisuals        = "wonder-visuals"
	SettingAmbient        = "wonder-ambient"
)

// DefaultVoiceID is used when no voice has been selected.
const DefaultVoiceID = "EXAVITQu4vr4xnSDxMaL"

// Voice is a selectable text-to-speech voice.
type Voice struct {
	ID          string
	Name        string
	Description string
}

// Voices lists the voices offered in settings.
var Voices = []Voice{
	{ID: "EXAVITQu4vr4xnSDxMaL", Name: "Sarah", Description: "Warm & calm"},
	{ID: "Xb7hH8MSUJpSbSDYk0k2", Name: "Alice", Description: "Bright & clear"},
	{ID: "pFZP5JQG7iQjIQuC4Bku", Name: "Lily", Description: "Soft & soothing"},
}

// LookupVoice finds a voice by ID or case-insensitive name.
func LookupVoice(v string) (Voice, bool) {
	for _, voice := range Voices {
		if voice.ID == v || strings.EqualFold(voice.Name, v) {
			return voice, true
		}
	}
	return Voice{}, false
}
