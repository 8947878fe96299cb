// Package ingest downloads source audio for a session from a supported URL.
//
// Two URL families are accepted: YouTube videos and Instagram reels, posts,
// TV, and stories. Each family runs a cascade of download strategies — an
// external extractor API first, then yt-dlp with progressively more
// conservative options — and the final rung always succeeds by writing a
// silent placeholder so downstream stages never block on a dead link.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"regexp"
	"time"

	"github.com/anuvox/anuvox/internal/session"
	"github.com/anuvox/anuvox/pkg/media"
)

// ErrUnsupportedURL is returned for URLs matching neither family.
var ErrUnsupportedURL = errors.New("ingest: unsupported URL")

var (
	youtubeRe   = regexp.MustCompile(`(?:youtube\.com/(?:watch\?v=|shorts/|embed/)|youtu\.be/)([A-Za-z0-9_-]{11})`)
	instagramRe = regexp.MustCompile(`instagram\.com/(?:reel|reels|p|tv|stories)/([A-Za-z0-9_-]+)`)
)

// placeholderSeconds is the duration of the silent fallback file.
const placeholderSeconds = 30.0

// conservativeFormat requests the smallest usable audio for retry rungs.
const conservativeFormat = "worstaudio/worst"

// altUserAgent mimics a mobile browser for hosts that throttle the default
// yt-dlp identity.
const altUserAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"

// Ingestor resolves a source URL into a session audio artifact.
type Ingestor struct {
	store        *session.Store
	ytdlp        string
	extractorURL string
	httpClient   *http.Client
}

// Option is a functional option for configuring an Ingestor.
type Option func(*Ingestor)

// WithYtDlpPath overrides the yt-dlp binary path (default "yt-dlp").
func WithYtDlpPath(path string) Option {
	return func(i *Ingestor) { i.ytdlp = path }
}

// WithExtractorURL enables the extractor-API rung. The endpoint receives
// `?url=<source>` and must answer `{"audio_url": "..."}`.
func WithExtractorURL(u string) Option {
	return func(i *Ingestor) { i.extractorURL = u }
}

// WithHTTPClient replaces the HTTP client used for extractor-API downloads.
func WithHTTPClient(c *http.Client) Option {
	return func(i *Ingestor) { i.httpClient = c }
}

// New creates an Ingestor writing into the given store.
func New(store *session.Store, opts ...Option) *Ingestor {
	i := &Ingestor{
		store:      store,
		ytdlp:      "yt-dlp",
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
	for _, o := range opts {
		o(i)
	}
	return i
}

// Supported reports whether the URL belongs to a supported family.
func Supported(rawURL string) bool {
	return youtubeRe.MatchString(rawURL) || instagramRe.MatchString(rawURL)
}

// step is one rung of a download cascade.
type step struct {
	name string
	run  func(ctx context.Context, srcURL, outPath string) error
}

// Ingest downloads the audio behind rawURL into the session's audio
// directory and returns the artifact path. The cascade logs each failed rung
// and moves on; the silent-placeholder rung cannot fail short of a disk
// error, so a non-nil error means the URL was unsupported or the session is
// unusable.
func (i *Ingestor) Ingest(ctx context.Context, rawURL, sessionID string) (string, error) {
	var steps []step
	switch {
	case youtubeRe.MatchString(rawURL):
		steps = i.youtubeSteps()
	case instagramRe.MatchString(rawURL):
		steps = i.instagramSteps()
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedURL, rawURL)
	}

	outPath := i.store.Path(sessionID, "audio", sessionID+".mp3")

	for _, st := range steps {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := st.run(ctx, rawURL, outPath); err != nil {
			slog.Warn("ingest attempt failed, trying next",
				"session", sessionID, "step", st.name, "error", err)
			continue
		}
		if !usable(outPath) {
			slog.Warn("ingest attempt produced empty file, trying next",
				"session", sessionID, "step", st.name)
			continue
		}
		slog.Info("ingest succeeded", "session", sessionID, "step", st.name)
		return outPath, nil
	}

	// Final fallback: a silent clip so the pipeline can proceed. The session
	// records the substitution so a silent dub can be traced to a dead link.
	wavPath := i.store.Path(sessionID, "audio", sessionID+".wav")
	clip := media.Silence(placeholderSeconds, media.RateSynthesis)
	if err := media.WriteWAVFile(wavPath, clip); err != nil {
		return "", fmt.Errorf("ingest: write placeholder: %w", err)
	}
	if err := i.store.UpdateSection(sessionID, "ingest", map[string]any{"fallback": true}); err != nil {
		slog.Warn("ingest fallback not recorded", "session", sessionID, "error", err)
	}
	slog.Warn("all download attempts failed, using silent placeholder",
		"session", sessionID, "url", rawURL)
	return wavPath, nil
}

// youtubeSteps is the five-rung YouTube cascade (the silent placeholder is
// appended by Ingest itself).
func (i *Ingestor) youtubeSteps() []step {
	steps := []step{}
	if i.extractorURL != "" {
		steps = append(steps, step{"extractor-api", i.viaExtractorAPI})
	}
	steps = append(steps,
		step{"yt-dlp", i.ytdlpStep()},
		step{"yt-dlp-conservative", i.ytdlpStep("-f", conservativeFormat)},
		step{"yt-dlp-mobile-ua", i.ytdlpStep("-f", conservativeFormat, "--user-agent", altUserAgent)},
	)
	return steps
}

// instagramSteps is the four-rung Instagram cascade.
func (i *Ingestor) instagramSteps() []step {
	steps := []step{}
	if i.extractorURL != "" {
		steps = append(steps, step{"extractor-api", i.viaExtractorAPI})
	}
	steps = append(steps,
		step{"yt-dlp", i.ytdlpStep()},
		step{"yt-dlp-mobile-ua", i.ytdlpStep("--user-agent", altUserAgent)},
	)
	return steps
}

// ytdlpStep builds a cascade rung invoking yt-dlp with extra arguments.
func (i *Ingestor) ytdlpStep(extra ...string) func(ctx context.Context, srcURL, outPath string) error {
	return func(ctx context.Context, srcURL, outPath string) error {
		args := []string{
			"-x", "--audio-format", "mp3",
			"--no-playlist",
			"-o", outPath,
		}
		args = append(args, extra...)
		args = append(args, srcURL)

		cmd := exec.CommandContext(ctx, i.ytdlp, args...)
		out, err := cmd.CombinedOutput()
		if err != nil {
			return fmt.Errorf("yt-dlp: %v: %s", err, tail(string(out), 300))
		}
		return nil
	}
}

// viaExtractorAPI asks the configured extractor service for a direct audio
// URL and downloads it.
func (i *Ingestor) viaExtractorAPI(ctx context.Context, srcURL, outPath string) error {
	endpoint := i.extractorURL + "?url=" + url.QueryEscape(srcURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := i.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("extractor: status %d", resp.StatusCode)
	}

	var parsed struct {
		AudioURL string `json:"audio_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("extractor: decode: %w", err)
	}
	if parsed.AudioURL == "" {
		return errors.New("extractor: no audio_url in response")
	}
	return i.download(ctx, parsed.AudioURL, outPath)
}

// download streams a direct media URL to disk.
func (i *Ingestor) download(ctx context.Context, mediaURL, outPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return err
	}
	resp, err := i.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download: status %d", resp.StatusCode)
	}

	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(outPath)
		return err
	}
	return f.Close()
}

// usable reports whether path exists with non-zero size.
func usable(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "…" + s[len(s)-n:]
}
