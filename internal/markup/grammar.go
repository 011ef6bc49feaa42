// Package markup implements the emotion-control tag grammar and validator
// for story dialogue annotated with parenthesised speech-direction tags,
// e.g. `(sad) "I hate you," she said.`
//
// The grammar is closed: every legal tag belongs to exactly one of four
// categories with per-category placement rules. Emotion tags must open
// their sentence; tone markers, audio effects, and special effects may
// appear anywhere. Tags the grammar does not know classify as
// [CategoryUnknown] and never validate.
//
// All functions in this package are pure and safe for concurrent use.
package markup

// Category identifies which placement rules apply to a tag.
type Category string

const (
	// CategoryEmotion tags express a feeling and must appear at the very
	// start of their sentence, before any non-tag content.
	CategoryEmotion Category = "emotion"

	// CategoryTone tags describe delivery manner and may appear anywhere.
	CategoryTone Category = "tone"

	// CategoryAudioEffect tags describe a non-speech sound and may appear
	// anywhere.
	CategoryAudioEffect Category = "audio_effect"

	// CategorySpecialEffect tags are crowd, background, and pause effects
	// and may appear anywhere.
	CategorySpecialEffect Category = "special_effect"

	// CategoryUnknown is returned for tags not present in the grammar.
	// Unknown tags are always invalid.
	CategoryUnknown Category = "unknown"
)

// IsValid reports whether c is a recognised tag category.
func (c Category) IsValid() bool {
	switch c {
	case CategoryEmotion, CategoryTone, CategoryAudioEffect, CategorySpecialEffect:
		return true
	}
	return false
}

// basicEmotions are the common single-word emotion tags.
var basicEmotions = []string{
	"happy", "sad", "angry", "excited", "calm", "nervous", "confident",
	"surprised", "satisfied", "delighted", "scared", "worried", "upset",
	"frustrated", "depressed", "empathetic", "embarrassed", "disgusted",
	"moved", "proud", "relaxed", "grateful", "curious", "sarcastic",
}

// advancedEmotions are the nuanced emotion tags. They follow the same
// sentence-start placement rule as basic emotions.
var advancedEmotions = []string{
	"disdainful", "unhappy", "anxious", "hysterical", "indifferent",
	"uncertain", "doubtful", "confused", "disappointed", "regretful",
	"guilty", "ashamed", "jealous", "envious", "hopeful", "optimistic",
	"pessimistic", "nostalgic", "lonely", "bored", "contemptuous",
	"sympathetic", "compassionate", "determined", "resigned",
}

// toneMarkers describe how a line is delivered.
var toneMarkers = []string{
	"in a hurry tone", "shouting", "screaming", "whispering", "soft tone",
}

// audioEffects are non-speech vocalisations the renderer inserts.
var audioEffects = []string{
	"laughing", "chuckling", "sobbing", "crying loudly", "sighing",
	"groaning", "panting", "gasping", "yawning", "snoring",
}

// specialEffects are crowd/background/pause directives.
var specialEffects = []string{
	"audience laughing", "background laughter", "crowd laughing",
	"break", "long-break",
}

// categories is the single lookup table for the whole grammar, built once
// at package init from the per-category tag lists above.
var categories = buildCategories()

func buildCategories() map[string]Category {
	m := make(map[string]Category, len(basicEmotions)+len(advancedEmotions)+
		len(toneMarkers)+len(audioEffects)+len(specialEffects))
	for _, t := range basicEmotions {
		m[t] = CategoryEmotion
	}
	for _, t := range advancedEmotions {
		m[t] = CategoryEmotion
	}
	for _, t := range toneMarkers {
		m[t] = CategoryTone
	}
	for _, t := range audioEffects {
		m[t] = CategoryAudioEffect
	}
	for _, t := range specialEffects {
		m[t] = CategorySpecialEffect
	}
	return m
}

// CategoryOf returns the category of the given tag name. Names are matched
// case-sensitively against their canonical lowercase forms; surrounding
// whitespace is not trimmed here — callers normalise during extraction.
// Unrecognised names return [CategoryUnknown].
func CategoryOf(name string) Category {
	if c, ok := categories[name]; ok {
		return c
	}
	return CategoryUnknown
}

// IsValidTag reports whether name is a tag the grammar accepts.
func IsValidTag(name string) bool {
	_, ok := categories[name]
	return ok
}

// AllTags returns every tag in the grammar grouped by category. The
// returned slices are fresh copies ordered as in the canonical reference;
// callers may mutate them freely. Used to build LLM prompts and the CLI
// tag listing from the same source of truth the validator uses.
func AllTags() map[Category][]string {
	return map[Category][]string{
		CategoryEmotion:       append(append([]string{}, basicEmotions...), advancedEmotions...),
		CategoryTone:          append([]string{}, toneMarkers...),
		CategoryAudioEffect:   append([]string{}, audioEffects...),
		CategorySpecialEffect: append([]string{}, specialEffects...),
	}
}
