// Package fishaudio provides a fish.audio-backed TTS provider. It implements
// the tts.Provider interface using the fish.audio live WebSocket API for
// streaming and the HTTP API for one-shot synthesis.
//
// fish.audio renders inline emotion markup tags such as "(sad)" or
// "(whispering)" directly, which makes it the reference backend for auditioning
// annotated dialogue.
package fishaudio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/coder/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/storyva/storyva/pkg/provider/tts"
)

const (
	wsEndpoint   = "wss://api.fish.audio/v1/tts/live"
	httpEndpoint = "https://api.fish.audio/v1/tts"

	defaultModel   = "speech-1.6"
	defaultLatency = "balanced"
	defaultFormat  = "mp3"
)

// SampleRate is the PCM sample rate fish.audio uses for raw output.
const SampleRate = 24000

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithModel sets the fish.audio TTS model (e.g., "speech-1.6").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLatency sets the latency mode: "normal", "balanced", or "aggressive".
func WithLatency(latency string) Option {
	return func(p *Provider) {
		p.latency = latency
	}
}

// WithFormat sets the audio output format (e.g., "mp3", "wav", "opus", "pcm").
func WithFormat(format string) Option {
	return func(p *Provider) {
		p.format = format
	}
}

// WithHTTPClient overrides the HTTP client used for one-shot synthesis.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements tts.Provider backed by the fish.audio API.
type Provider struct {
	apiKey     string
	model      string
	latency    string
	format     string
	httpClient *http.Client
	endpoint   string
	wsURL      string
}

// New creates a new fish.audio Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("fishaudio: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		latency:    defaultLatency,
		format:     defaultFormat,
		httpClient: &http.Client{},
		endpoint:   httpEndpoint,
		wsURL:      wsEndpoint,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ---- wire message types ----

// startMessage opens a live synthesis session.
type startMessage struct {
	Event   string       `msgpack:"event"`
	Request startRequest `msgpack:"request"`
}

type startRequest struct {
	Text        string `msgpack:"text"`
	ReferenceID string `msgpack:"reference_id"`
	Latency     string `msgpack:"latency"`
	Format      string `msgpack:"format"`
}

// textMessage carries one text fragment into an open session.
type textMessage struct {
	Event string `msgpack:"event"`
	Text  string `msgpack:"text"`
}

// controlMessage is any event without a payload, e.g. "stop".
type controlMessage struct {
	Event string `msgpack:"event"`
}

// serverMessage is a message received from fish.audio. Audio is set on
// "audio" events, Message on "error" events.
type serverMessage struct {
	Event   string `msgpack:"event"`
	Audio   []byte `msgpack:"audio"`
	Message string `msgpack:"message"`
}

// Synthesize implements tts.Provider using the one-shot HTTP API.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) ([]byte, error) {
	if voice.ID == "" {
		return nil, errors.New("fishaudio: voice.ID must not be empty")
	}

	payload, err := json.Marshal(map[string]string{
		"text":         text,
		"reference_id": voice.ID,
		"format":       p.format,
		"latency":      p.latency,
	})
	if err != nil {
		return nil, fmt.Errorf("fishaudio: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("fishaudio: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Model", p.model)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fishaudio: synthesize HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fishaudio: synthesize: unexpected status %d: %s", resp.StatusCode, body)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fishaudio: read audio: %w", err)
	}
	return audio, nil
}

// SynthesizeStream opens a WebSocket session to fish.audio, pipes text
// fragments from the text channel, and returns a channel emitting audio
// chunks. Messages on the wire are msgpack-encoded per the fish.audio live
// protocol: a "start" event configures the session, "text" events carry
// fragments, "stop" flushes, and the server answers with "audio" events
// followed by "finish".
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice tts.VoiceProfile) (<-chan []byte, error) {
	if voice.ID == "" {
		return nil, errors.New("fishaudio: voice.ID must not be empty")
	}

	conn, _, err := websocket.Dial(ctx, p.wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + p.apiKey},
			"Model":         []string{p.model},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("fishaudio: dial: %w", err)
	}

	start, err := msgpack.Marshal(startMessage{
		Event: "start",
		Request: startRequest{
			ReferenceID: voice.ID,
			Latency:     p.latency,
			Format:      p.format,
		},
	})
	if err != nil {
		conn.Close(websocket.StatusInternalError, "encode start")
		return nil, fmt.Errorf("fishaudio: encode start: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageBinary, start); err != nil {
		conn.Close(websocket.StatusInternalError, "send start")
		return nil, fmt.Errorf("fishaudio: send start: %w", err)
	}

	audioCh := make(chan []byte, 256)

	go func() {
		defer close(audioCh)
		defer conn.Close(websocket.StatusNormalClosure, "done")

		readDone := make(chan struct{})
		go func() {
			defer close(readDone)
			for {
				_, msg, err := conn.Read(ctx)
				if err != nil {
					return
				}
				var sm serverMessage
				if err := msgpack.Unmarshal(msg, &sm); err != nil {
					continue
				}
				switch sm.Event {
				case "audio":
					if len(sm.Audio) == 0 {
						continue
					}
					select {
					case audioCh <- sm.Audio:
					case <-ctx.Done():
						return
					}
				case "finish", "done", "end", "error":
					return
				}
			}
		}()

		for {
			select {
			case fragment, ok := <-text:
				if !ok {
					stop, _ := msgpack.Marshal(controlMessage{Event: "stop"})
					_ = conn.Write(ctx, websocket.MessageBinary, stop)
					// Wait for the reader to drain the remaining audio.
					<-readDone
					return
				}
				if fragment == "" {
					continue
				}
				payload, err := msgpack.Marshal(textMessage{Event: "text", Text: fragment})
				if err != nil {
					return
				}
				if err := conn.Write(ctx, websocket.MessageBinary, payload); err != nil {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return audioCh, nil
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
