package config_test

import (
	"errors"
	"testing"

	"github.com/storyva/storyva/internal/config"
	"github.com/storyva/storyva/pkg/provider/llm"
	llmmock "github.com/storyva/storyva/pkg/provider/llm/mock"
	"github.com/storyva/storyva/pkg/provider/tts"
	ttsmock "github.com/storyva/storyva/pkg/provider/tts/mock"
)

func TestRegistry_CreateLLM(t *testing.T) {
	r := config.NewRegistry()
	r.RegisterLLM("mock", func(_ config.ProviderEntry) (llm.Provider, error) {
		return &llmmock.Provider{}, nil
	})

	p, err := r.CreateLLM(config.ProviderEntry{Name: "mock"})
	if err != nil {
		t.Fatalf("CreateLLM() error = %v", err)
	}
	if p == nil {
		t.Fatal("CreateLLM() returned nil provider")
	}
}

func TestRegistry_CreateUnregistered(t *testing.T) {
	r := config.NewRegistry()

	_, err := r.CreateLLM(config.ProviderEntry{Name: "nope"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateLLM() error = %v, want ErrProviderNotRegistered", err)
	}

	_, err = r.CreateTTS(config.ProviderEntry{Name: "nope"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateTTS() error = %v, want ErrProviderNotRegistered", err)
	}

	_, err = r.CreateEmbeddings(config.ProviderEntry{Name: "nope"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateEmbeddings() error = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_FactoryErrorPropagates(t *testing.T) {
	r := config.NewRegistry()
	wantErr := errors.New("missing api key")
	r.RegisterTTS("fishaudio", func(_ config.ProviderEntry) (tts.Provider, error) {
		return nil, wantErr
	})

	_, err := r.CreateTTS(config.ProviderEntry{Name: "fishaudio"})
	if !errors.Is(err, wantErr) {
		t.Errorf("CreateTTS() error = %v, want %v", err, wantErr)
	}
}

func TestRegistry_OverwriteRegistration(t *testing.T) {
	r := config.NewRegistry()
	r.RegisterTTS("fishaudio", func(_ config.ProviderEntry) (tts.Provider, error) {
		return nil, errors.New("first")
	})
	r.RegisterTTS("fishaudio", func(_ config.ProviderEntry) (tts.Provider, error) {
		return &ttsmock.Provider{}, nil
	})

	p, err := r.CreateTTS(config.ProviderEntry{Name: "fishaudio"})
	if err != nil {
		t.Fatalf("CreateTTS() error = %v", err)
	}
	if p == nil {
		t.Fatal("CreateTTS() returned nil provider")
	}
}
