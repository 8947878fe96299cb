// Package sarvam provides a Sarvam AI-backed ASR provider using the Saarika
// batch speech-to-text API with speaker diarization enabled. It implements
// the asr.Provider interface.
package sarvam

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/anuvox/anuvox/pkg/media"
	"github.com/anuvox/anuvox/pkg/provider/asr"
)

const (
	defaultEndpoint = "https://api.sarvam.ai/speech-to-text"
	defaultModel    = "saarika:v2.5"
	defaultTimeout  = 120 * time.Second
)

// Option is a functional option for configuring the Sarvam Provider.
type Option func(*Provider)

// WithModel sets the Saarika model variant (e.g., "saarika:v2.5").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithEndpoint overrides the API endpoint, for tests and proxies.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) { p.endpoint = endpoint }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements asr.Provider backed by the Sarvam batch API.
type Provider struct {
	apiKey     string
	model      string
	endpoint   string
	httpClient *http.Client
}

// Compile-time assertion that Provider satisfies asr.Provider.
var _ asr.Provider = (*Provider)(nil)

// New creates a new Sarvam ASR Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("sarvam: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		endpoint:   defaultEndpoint,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// sarvamResponse is the JSON structure returned by the Saarika API.
type sarvamResponse struct {
	RequestID          string `json:"request_id"`
	Transcript         string `json:"transcript"`
	LanguageCode       string `json:"language_code"`
	DiarizedTranscript struct {
		Entries []struct {
			Transcript       string  `json:"transcript"`
			StartTimeSeconds float64 `json:"start_time_seconds"`
			EndTimeSeconds   float64 `json:"end_time_seconds"`
			SpeakerID        string  `json:"speaker_id"`
		} `json:"entries"`
	} `json:"diarized_transcript"`
}

// Transcribe uploads the request audio as a WAV attachment and parses the
// diarized response. The provider always requests diarization; callers that
// need plain transcription simply ignore the speaker labels.
func (p *Provider) Transcribe(ctx context.Context, req asr.Request) (*asr.Result, error) {
	if len(req.Audio) == 0 {
		return nil, errors.New("sarvam: empty audio")
	}
	sr := req.SampleRate
	if sr <= 0 {
		sr = media.RateSynthesis
	}

	var wav bytes.Buffer
	if err := media.EncodeWAV(&wav, media.Clip{Data: req.Audio, SampleRate: sr}); err != nil {
		return nil, fmt.Errorf("sarvam: encode wav: %w", err)
	}

	body, contentType, err := p.buildForm(wav.Bytes(), req.Language)
	if err != nil {
		return nil, fmt.Errorf("sarvam: build form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("sarvam: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
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

	var parsed sarvamResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("sarvam: decode response: %w", err)
	}

	return toResult(parsed), nil
}

// buildForm assembles the multipart upload: the WAV attachment plus the
// model, language, and diarization form fields.
func (p *Provider) buildForm(wav []byte, language string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(wav); err != nil {
		return nil, "", err
	}

	if err := w.WriteField("model", p.model); err != nil {
		return nil, "", err
	}
	lang := language
	if lang == "" {
		lang = "unknown"
	}
	if err := w.WriteField("language_code", lang); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("with_diarization", "true"); err != nil {
		return nil, "", err
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// toResult converts the wire response into an asr.Result. When the API
// returns no diarized entries but a non-empty transcript, the transcript is
// wrapped in a single catch-all segment so downstream stages still see one
// speaker.
func toResult(parsed sarvamResponse) *asr.Result {
	result := &asr.Result{
		LanguageCode: parsed.LanguageCode,
		Transcript:   strings.TrimSpace(parsed.Transcript),
	}

	for _, e := range parsed.DiarizedTranscript.Entries {
		text := strings.TrimSpace(e.Transcript)
		if text == "" {
			continue
		}
		speaker := e.SpeakerID
		if speaker == "" {
			speaker = "SPEAKER_00"
		}
		result.Segments = append(result.Segments, asr.Segment{
			Speaker: speaker,
			Start:   e.StartTimeSeconds,
			End:     e.EndTimeSeconds,
			Text:    text,
		})
	}
	return result
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
