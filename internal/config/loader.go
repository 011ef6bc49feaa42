package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "anthropic", "gemini", "ollama", "mistral", "groq"},
	"embeddings": {"openai"},
	"tts":        {"fishaudio"},
}

// previewFormats lists audio formats the preview renderer can write.
var previewFormats = []string{"mp3", "wav", "opus", "pcm"}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. References of the form ${VAR} are expanded from the environment
// before decoding, so API keys can stay out of the file.
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}

	cfg, err := LoadFromReader(strings.NewReader(os.ExpandEnv(string(raw))))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.LogFile != nil && cfg.Server.LogFile.Path == "" {
		errs = append(errs, errors.New("server.log_file.path is required when log_file is set"))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)

	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no LLM provider configured; the director will not be able to respond")
	}

	if cfg.Retrieval.EmbeddingDimensions < 0 {
		errs = append(errs, fmt.Errorf("retrieval.embedding_dimensions %d must not be negative", cfg.Retrieval.EmbeddingDimensions))
	}
	if cfg.Retrieval.PostgresDSN == "" && cfg.Providers.Embeddings.Name != "" {
		slog.Warn("retrieval.postgres_dsn is empty; technique search will not be available")
	}
	if cfg.Retrieval.TopK < 0 {
		errs = append(errs, fmt.Errorf("retrieval.top_k %d must not be negative", cfg.Retrieval.TopK))
	}

	// Preview
	if cfg.Preview.Format != "" && !slices.Contains(previewFormats, cfg.Preview.Format) {
		errs = append(errs, fmt.Errorf("preview.format %q is invalid; valid values: %v", cfg.Preview.Format, previewFormats))
	}
	if cfg.Providers.TTS.Name != "" && cfg.Preview.Voices.Male == "" {
		errs = append(errs, errors.New("preview.voices.male is required when a TTS provider is configured"))
	}

	// Director
	if cfg.Director.Temperature < 0 || cfg.Director.Temperature > 2 {
		errs = append(errs, fmt.Errorf("director.temperature %.2f is out of range [0, 2]", cfg.Director.Temperature))
	}
	if cfg.Director.MaxToolRounds < 0 {
		errs = append(errs, fmt.Errorf("director.max_tool_rounds %d must not be negative", cfg.Director.MaxToolRounds))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
