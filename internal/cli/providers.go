package cli

import (
	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/storyva/storyva/internal/app"
	"github.com/storyva/storyva/internal/config"
	"github.com/storyva/storyva/pkg/provider/embeddings"
	oaembed "github.com/storyva/storyva/pkg/provider/embeddings/openai"
	"github.com/storyva/storyva/pkg/provider/llm"
	"github.com/storyva/storyva/pkg/provider/llm/anyllm"
	oaillm "github.com/storyva/storyva/pkg/provider/llm/openai"
	"github.com/storyva/storyva/pkg/provider/tts"
	"github.com/storyva/storyva/pkg/provider/tts/fishaudio"
)

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the provider
// from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// openai uses the native SDK-backed provider; the remaining LLM vendors
	// share the any-llm backend.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		return oaillm.New(entry.APIKey, entry.Model, opts...)
	})

	for _, providerName := range []string{"anthropic", "gemini", "mistral", "groq"} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterTTS("fishaudio", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []fishaudio.Option
		if entry.Model != "" {
			opts = append(opts, fishaudio.WithModel(entry.Model))
		}
		if latency := optString(entry.Options, "latency"); latency != "" {
			opts = append(opts, fishaudio.WithLatency(latency))
		}
		if format := optString(entry.Options, "format"); format != "" {
			opts = append(opts, fishaudio.WithFormat(format))
		}
		return fishaudio.New(entry.APIKey, opts...)
	})
}

// buildProviders instantiates every provider named in the config. An empty
// provider name leaves the slot nil; the app degrades gracefully.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	p := &app.Providers{}

	if cfg.Providers.LLM.Name != "" {
		prov, err := reg.CreateLLM(cfg.Providers.LLM)
		if err != nil {
			return nil, err
		}
		p.LLM = prov
	}
	if cfg.Providers.Embeddings.Name != "" {
		prov, err := reg.CreateEmbeddings(cfg.Providers.Embeddings)
		if err != nil {
			return nil, err
		}
		p.Embeddings = prov
	}
	if cfg.Providers.TTS.Name != "" {
		prov, err := reg.CreateTTS(cfg.Providers.TTS)
		if err != nil {
			return nil, err
		}
		p.TTS = prov
	}

	return p, nil
}

// optString extracts a string value from a provider Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
