package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anuvox/anuvox/pkg/provider/llm"
	"github.com/anuvox/anuvox/pkg/types"
)

// batchSegment is the wire shape of one segment in a batch exchange. Only
// id, speaker, and text cross the model boundary; all other segment
// metadata stays on our side and is re-attached afterwards.
type batchSegment struct {
	SegmentID string `json:"segment_id"`
	Speaker   string `json:"speaker"`
	Text      string `json:"text"`
}

// batchResponse is the JSON object the model must return.
type batchResponse struct {
	Transcript string         `json:"transcript"`
	Segments   []batchSegment `json:"segments"`
}

// TranslateBatch translates the whole diarization through batched JSON
// calls. Inputs above the chunk threshold are split into chunks of at most
// ChunkSize segments; order and per-segment metadata are preserved across
// chunks. Malformed model output is retried with feedback appended to the
// prompt, up to MaxValidationRetries times per chunk; a chunk that still
// fails gets error markers on its segments.
func (t *Translator) TranslateBatch(ctx context.Context, d *types.Diarization, sourceLang, targetLang types.Language) (*types.Diarization, error) {
	out := cloneDiarization(d)
	out.TargetLanguage = string(targetLang)

	chunks := chunkIndices(len(d.Segments), t.opts.ChunkThreshold, t.opts.ChunkSize)
	for _, c := range chunks {
		translations, err := t.translateChunk(ctx, d.Segments[c.start:c.end], sourceLang, targetLang)
		if err != nil {
			slog.Warn("chunk translation failed",
				"from", c.start, "to", c.end, "error", err)
			for i := c.start; i < c.end; i++ {
				out.Segments[i].TranslatedText = errorMarker(err)
			}
			continue
		}
		for i := c.start; i < c.end; i++ {
			text, ok := translations[d.Segments[i].SegmentID]
			if !ok || strings.TrimSpace(text) == "" {
				out.Segments[i].TranslatedText = errorMarker(fmt.Errorf("segment %s missing from model output", d.Segments[i].SegmentID))
				continue
			}
			out.Segments[i].TranslatedText = strings.TrimSpace(text)
		}
	}

	succeeded := 0
	for _, seg := range out.Segments {
		if seg.HasTranslation() {
			succeeded++
		}
	}
	out.Transcript = out.TranslatedTranscript()
	if succeeded == 0 && len(out.Segments) > 0 {
		return out, ErrAllSegmentsFailed
	}
	return out, nil
}

// span is a half-open index range.
type span struct{ start, end int }

// chunkIndices splits n segments into spans. Below the threshold everything
// goes in one span.
func chunkIndices(n, threshold, size int) []span {
	if n == 0 {
		return nil
	}
	if n <= threshold {
		return []span{{0, n}}
	}
	var out []span
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		out = append(out, span{start, end})
	}
	return out
}

// translateChunk runs the validate-and-retry loop for one chunk, returning
// segment_id → translated text.
func (t *Translator) translateChunk(ctx context.Context, segments []types.Segment, sourceLang, targetLang types.Language) (map[string]string, error) {
	prompt, err := buildBatchPrompt(segments, targetLang)
	if err != nil {
		return nil, err
	}

	var lastErr error
	feedback := ""
	for attempt := 0; attempt <= t.opts.MaxValidationRetries; attempt++ {
		resp, err := t.provider.Complete(ctx, llm.Request{
			SystemPrompt: batchSystemPrompt(sourceLang, targetLang),
			Messages: []llm.Message{
				{Role: "user", Content: prompt + feedback},
			},
			Temperature: t.opts.Temperature,
		})
		if err != nil {
			return nil, err
		}

		parsed, err := parseBatchResponse(resp.Content, segments)
		if err == nil {
			return parsed, nil
		}
		lastErr = err
		feedback = fmt.Sprintf("\n\nYour previous reply was rejected: %v. Return only the corrected JSON object.", err)
		slog.Debug("batch output rejected, retrying with feedback",
			"attempt", attempt+1, "error", err)
	}
	return nil, fmt.Errorf("output invalid after %d retries: %w", t.opts.MaxValidationRetries, lastErr)
}

// buildBatchPrompt renders the chunk as JSON the model must translate in
// place.
func buildBatchPrompt(segments []types.Segment, targetLang types.Language) (string, error) {
	wire := make([]batchSegment, len(segments))
	for i, seg := range segments {
		wire[i] = batchSegment{SegmentID: seg.SegmentID, Speaker: seg.Speaker, Text: seg.Text}
	}
	encoded, err := json.MarshalIndent(wire, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode chunk: %w", err)
	}
	return fmt.Sprintf(
		"Translate every segment below into %s.\n"+
			"Return a single JSON object of the form "+
			`{"transcript": "<all translations joined with spaces>", "segments": [{"segment_id": "...", "speaker": "...", "text": "<translation>"}]}`+
			" with exactly the same segment_ids in the same order.\n\n%s",
		targetLang.DisplayName(), encoded), nil
}

// batchSystemPrompt is the instruction set for whole-diarization calls.
func batchSystemPrompt(sourceLang, targetLang types.Language) string {
	src := "the source language"
	if sourceLang.IsValid() {
		src = sourceLang.DisplayName()
	}
	return fmt.Sprintf(
		"You are a professional dubbing translator converting %s dialogue into %s. "+
			"Preserve speaker attribution and segment boundaries exactly. "+
			"Output only valid JSON, no markdown fences, no commentary.",
		src, targetLang.DisplayName())
}

// parseBatchResponse validates the model output against the contract: a
// JSON object with a string transcript and a segments array where every
// entry carries text.
func parseBatchResponse(content string, input []types.Segment) (map[string]string, error) {
	content = stripFences(content)

	var parsed batchResponse
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("not a JSON object: %v", err)
	}
	if parsed.Segments == nil {
		return nil, errors.New(`missing "segments" array`)
	}
	if parsed.Transcript == "" {
		return nil, errors.New(`missing "transcript" string`)
	}
	out := make(map[string]string, len(parsed.Segments))
	for i, seg := range parsed.Segments {
		if strings.TrimSpace(seg.Text) == "" {
			return nil, fmt.Errorf("segments[%d] has no text", i)
		}
		id := seg.SegmentID
		if id == "" && i < len(input) {
			// Tolerate dropped ids as long as order held.
			id = input[i].SegmentID
		}
		out[id] = seg.Text
	}
	return out, nil
}

// stripFences removes a surrounding markdown code fence if present.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}
