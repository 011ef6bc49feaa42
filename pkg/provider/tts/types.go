package tts

// VoiceProfile describes a TTS voice configuration for a character or the
// director's own speaking voice.
type VoiceProfile struct {
	// ID is the provider-specific voice model identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which TTS provider this voice belongs to.
	Provider string

	// Metadata holds provider-specific voice attributes (gender, age,
	// accent, etc.).
	Metadata map[string]string
}
