// Package sarvam provides a Sarvam AI-backed TTS provider using the Bulbul
// text-to-speech API. It implements the tts.Provider interface and is the
// default route for Hindi synthesis.
package sarvam

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/anuvox/anuvox/pkg/provider/tts"
)

const (
	defaultEndpoint   = "https://api.sarvam.ai/text-to-speech"
	defaultModel      = "bulbul:v2"
	defaultVoice      = "anushka"
	defaultSampleRate = 22050
	defaultTimeout    = 60 * time.Second
)

// Option is a functional option for configuring the Sarvam Provider.
type Option func(*Provider)

// WithModel sets the Bulbul model variant (e.g., "bulbul:v2").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithDefaultVoice sets the voice used when a request carries no VoiceID.
func WithDefaultVoice(voice string) Option {
	return func(p *Provider) { p.defaultVoice = voice }
}

// WithEndpoint overrides the API endpoint, for tests and proxies.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) { p.endpoint = endpoint }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements tts.Provider backed by the Sarvam Bulbul API.
type Provider struct {
	apiKey       string
	model        string
	defaultVoice string
	endpoint     string
	httpClient   *http.Client
}

// Compile-time assertion that Provider satisfies tts.Provider.
var _ tts.Provider = (*Provider)(nil)

// New creates a new Sarvam TTS Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("sarvam: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		model:        defaultModel,
		defaultVoice: defaultVoice,
		endpoint:     defaultEndpoint,
		httpClient:   &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// synthesizeRequest is the JSON body of a Bulbul synthesis call.
type synthesizeRequest struct {
	Inputs             []string `json:"inputs"`
	TargetLanguageCode string   `json:"target_language_code"`
	Speaker            string   `json:"speaker"`
	Model              string   `json:"model"`
	SpeechSampleRate   int      `json:"speech_sample_rate"`
	Pace               float64  `json:"pace,omitempty"`
}

// synthesizeResponse is the JSON body of a Bulbul synthesis response. Each
// entry of Audios is a base64-encoded WAV file, one per input.
type synthesizeResponse struct {
	RequestID string   `json:"request_id"`
	Audios    []string `json:"audios"`
}

// Synthesize sends the request text to the Bulbul API and returns the
// decoded WAV payload.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Result, error) {
	if req.Text == "" {
		return nil, errors.New("sarvam: empty text")
	}

	voice := req.VoiceID
	if voice == "" {
		voice = p.defaultVoice
	}
	sr := req.SampleRate
	if sr <= 0 {
		sr = defaultSampleRate
	}
	lang := req.Language
	if lang == "" {
		lang = "hi-IN"
	}

	body, err := json.Marshal(synthesizeRequest{
		Inputs:             []string{req.Text},
		TargetLanguageCode: lang,
		Speaker:            voice,
		Model:              p.model,
		SpeechSampleRate:   sr,
		Pace:               req.Pace,
	})
	if err != nil {
		return nil, fmt.Errorf("sarvam: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("sarvam: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("api-subscription-key", p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sarvam: request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("sarvam: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sarvam: status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var parsed synthesizeResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("sarvam: decode response: %w", err)
	}
	if len(parsed.Audios) == 0 || parsed.Audios[0] == "" {
		return nil, errors.New("sarvam: no audio in response")
	}

	audio, err := base64.StdEncoding.DecodeString(parsed.Audios[0])
	if err != nil {
		return nil, fmt.Errorf("sarvam: decode audio: %w", err)
	}

	return &tts.Result{
		Audio:      audio,
		Encoding:   tts.EncodingWAV,
		SampleRate: sr,
	}, nil
}

// bulbulVoices is the fixed Bulbul v2 voice catalogue.
var bulbulVoices = []tts.Voice{
	{ID: "anushka", Name: "Anushka", Language: "hi-IN", Gender: "female"},
	{ID: "manisha", Name: "Manisha", Language: "hi-IN", Gender: "female"},
	{ID: "vidya", Name: "Vidya", Language: "hi-IN", Gender: "female"},
	{ID: "arya", Name: "Arya", Language: "hi-IN", Gender: "female"},
	{ID: "abhilash", Name: "Abhilash", Language: "hi-IN", Gender: "male"},
	{ID: "karun", Name: "Karun", Language: "hi-IN", Gender: "male"},
	{ID: "hitesh", Name: "Hitesh", Language: "hi-IN", Gender: "male"},
}

// ListVoices returns the Bulbul voice catalogue. The set is fixed per model
// release, so no network call is made.
func (p *Provider) ListVoices(_ context.Context) ([]tts.Voice, error) {
	out := make([]tts.Voice, len(bulbulVoices))
	copy(out, bulbulVoices)
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
