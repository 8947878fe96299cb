// Package cartesia provides a Cartesia-backed TTS provider using the Sonic
// WebSocket API. It implements the tts.Provider interface and is the default
// route for non-Hindi synthesis.
package cartesia

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/anuvox/anuvox/pkg/provider/tts"
)

const (
	wsEndpoint     = "wss://api.cartesia.ai/tts/websocket"
	voicesEndpoint = "https://api.cartesia.ai/voices"

	defaultModel      = "sonic-2"
	defaultVersion    = "2024-11-13"
	defaultVoiceID    = "a0e99841-438c-4a64-b679-ae501e7d6091"
	defaultSampleRate = 22050
	defaultTimeout    = 60 * time.Second
)

// Option is a functional option for configuring the Cartesia Provider.
type Option func(*Provider)

// WithModel sets the Sonic model (e.g., "sonic-2").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithDefaultVoice sets the voice used when a request carries no VoiceID.
func WithDefaultVoice(voiceID string) Option {
	return func(p *Provider) { p.defaultVoice = voiceID }
}

// WithVersion sets the Cartesia-Version API header/query value.
func WithVersion(v string) Option {
	return func(p *Provider) { p.version = v }
}

// WithEndpoints overrides the WebSocket and voices endpoints, for tests.
func WithEndpoints(ws, voices string) Option {
	return func(p *Provider) {
		p.wsEndpoint = ws
		p.voicesEndpoint = voices
	}
}

// WithHTTPClient replaces the HTTP client used for the voices catalogue and
// the WebSocket handshake.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements tts.Provider backed by the Cartesia Sonic API. Each
// Synthesize call opens its own WebSocket, sends one finalised transcript,
// and collects the raw PCM chunks until the server reports done.
type Provider struct {
	apiKey         string
	model          string
	defaultVoice   string
	version        string
	wsEndpoint     string
	voicesEndpoint string
	httpClient     *http.Client
}

// Compile-time assertion that Provider satisfies tts.Provider.
var _ tts.Provider = (*Provider)(nil)

// New creates a new Cartesia TTS Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("cartesia: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:         apiKey,
		model:          defaultModel,
		defaultVoice:   defaultVoiceID,
		version:        defaultVersion,
		wsEndpoint:     wsEndpoint,
		voicesEndpoint: voicesEndpoint,
		httpClient:     &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// synthesizeMessage is the JSON message sent over the WebSocket. With
// Continue=false the server treats the transcript as complete and flushes
// all audio for the context.
type synthesizeMessage struct {
	ModelID    string `json:"model_id"`
	Transcript string `json:"transcript"`
	Continue   bool   `json:"continue"`
	ContextID  string `json:"context_id"`
	Voice      struct {
		Mode string `json:"mode"`
		ID   string `json:"id"`
	} `json:"voice"`
	OutputFormat struct {
		Container  string `json:"container"`
		Encoding   string `json:"encoding"`
		SampleRate int    `json:"sample_rate"`
	} `json:"output_format"`
	Language string `json:"language,omitempty"`
}

// serverMessage is the JSON structure of messages received from the server.
type serverMessage struct {
	Type      string `json:"type"`
	ContextID string `json:"context_id"`
	Data      string `json:"data"`
	Error     string `json:"error"`
	Done      bool   `json:"done"`
}

// Synthesize opens a WebSocket, sends the full transcript as one finalised
// context, and concatenates the returned raw PCM chunks.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Result, error) {
	if req.Text == "" {
		return nil, errors.New("cartesia: empty text")
	}

	sr := req.SampleRate
	if sr <= 0 {
		sr = defaultSampleRate
	}
	voice := req.VoiceID
	if voice == "" {
		voice = p.defaultVoice
	}

	conn, err := p.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("cartesia: dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "synthesis complete")

	msg := synthesizeMessage{
		ModelID:    p.model,
		Transcript: req.Text,
		Continue:   false,
		ContextID:  uuid.NewString(),
		Language:   sonicLanguage(req.Language),
	}
	msg.Voice.Mode = "id"
	msg.Voice.ID = voice
	msg.OutputFormat.Container = "raw"
	msg.OutputFormat.Encoding = "pcm_s16le"
	msg.OutputFormat.SampleRate = sr

	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("cartesia: encode message: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		return nil, fmt.Errorf("cartesia: send transcript: %w", err)
	}

	audio, err := p.collectAudio(ctx, conn, msg.ContextID)
	if err != nil {
		return nil, err
	}
	return &tts.Result{
		Audio:      audio,
		Encoding:   tts.EncodingPCM,
		SampleRate: sr,
	}, nil
}

// dial opens the WebSocket. Cartesia authenticates via query parameters on
// the handshake URL.
func (p *Provider) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(p.wsEndpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("api_key", p.apiKey)
	q.Set("cartesia_version", p.version)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		HTTPClient: p.httpClient,
	})
	return conn, err
}

// collectAudio reads server messages until a done or error message for the
// given context arrives, appending decoded chunk payloads along the way.
func (p *Provider) collectAudio(ctx context.Context, conn *websocket.Conn, contextID string) ([]byte, error) {
	var audio []byte
	for {
		_, raw, err := conn.Read(ctx)
		if err != nil {
			return nil, fmt.Errorf("cartesia: read: %w", err)
		}

		var msg serverMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if msg.ContextID != "" && msg.ContextID != contextID {
			// Stale message from a previous context on a pooled connection.
			continue
		}

		switch msg.Type {
		case "chunk":
			if msg.Data == "" {
				continue
			}
			chunk, err := base64.StdEncoding.DecodeString(msg.Data)
			if err != nil {
				return nil, fmt.Errorf("cartesia: decode chunk: %w", err)
			}
			audio = append(audio, chunk...)
		case "done":
			if len(audio) == 0 {
				return nil, errors.New("cartesia: no audio in response")
			}
			return audio, nil
		case "error":
			return nil, fmt.Errorf("cartesia: server error: %s", msg.Error)
		}
	}
}

// voiceEntry is one entry of the voices catalogue response.
type voiceEntry struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Language    string `json:"language"`
	Gender      string `json:"gender"`
	Description string `json:"description"`
}

// ListVoices fetches the voice catalogue from the Cartesia REST API.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.voicesEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("cartesia: build request: %w", err)
	}
	httpReq.Header.Set("X-API-Key", p.apiKey)
	httpReq.Header.Set("Cartesia-Version", p.version)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("cartesia: request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("cartesia: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cartesia: status %d", resp.StatusCode)
	}

	var entries []voiceEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("cartesia: decode voices: %w", err)
	}

	voices := make([]tts.Voice, 0, len(entries))
	for _, e := range entries {
		voices = append(voices, tts.Voice{
			ID:       e.ID,
			Name:     e.Name,
			Language: e.Language,
			Gender:   e.Gender,
		})
	}
	return voices, nil
}

// sonicLanguage maps a BCP-47 tag like "ta-IN" down to the two-letter code
// the Sonic API expects.
func sonicLanguage(tag string) string {
	if tag == "" {
		return ""
	}
	if i := strings.IndexByte(tag, '-'); i > 0 {
		return strings.ToLower(tag[:i])
	}
	return strings.ToLower(tag)
}
