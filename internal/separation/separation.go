// Package separation splits session audio into vocal and background stems
// with an external two-stem source-separation model and records loudness
// statistics that drive the stitcher's background-mix policy.
package separation

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/anuvox/anuvox/internal/session"
	"github.com/anuvox/anuvox/pkg/media"
	"github.com/anuvox/anuvox/pkg/types"
)

// defaultModel is the demucs model used for two-stem separation.
const defaultModel = "htdemucs"

// metadataArtifact is the separation stats file consumed by the stitcher.
const metadataArtifact = "music/metadata.json"

// Separator invokes demucs and persists the resulting stems.
type Separator struct {
	store  *session.Store
	demucs string
	model  string

	// thresholdDB is the mean background loudness above which the stem
	// counts as significant.
	thresholdDB float64
}

// Option is a functional option for configuring a Separator.
type Option func(*Separator)

// WithDemucsPath overrides the demucs binary path (default "demucs").
func WithDemucsPath(path string) Option {
	return func(s *Separator) { s.demucs = path }
}

// WithModel overrides the demucs model (default "htdemucs").
func WithModel(model string) Option {
	return func(s *Separator) { s.model = model }
}

// WithThresholdDB overrides the significance threshold (default −40 dBFS).
func WithThresholdDB(db float64) Option {
	return func(s *Separator) { s.thresholdDB = db }
}

// New creates a Separator writing into the given store.
func New(store *session.Store, opts ...Option) *Separator {
	s := &Separator{
		store:       store,
		demucs:      "demucs",
		model:       defaultModel,
		thresholdDB: -40,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Separate splits inputPath into vocal and background stems, copies both to
// their canonical session locations, and writes separation metadata. The
// returned metadata mirrors what lands in music/metadata.json.
func (s *Separator) Separate(ctx context.Context, sessionID, inputPath string) (*types.SeparationMetadata, error) {
	workDir, err := os.MkdirTemp("", "anuvox-demucs-*")
	if err != nil {
		return nil, fmt.Errorf("separation: temp dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	cmd := exec.CommandContext(ctx, s.demucs,
		"--two-stems", "vocals",
		"-n", s.model,
		"-o", workDir,
		inputPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("separation: demucs: %v: %s", err, tail(string(out), 300))
	}

	// demucs writes <workdir>/<model>/<track>/{vocals,no_vocals}.wav.
	track := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	stemDir := filepath.Join(workDir, s.model, track)
	vocalsSrc := filepath.Join(stemDir, "vocals.wav")
	backgroundSrc := filepath.Join(stemDir, "no_vocals.wav")

	vocalsPath := s.store.Path(sessionID, "audio", "vocals.wav")
	backgroundPath := s.store.Path(sessionID, "music", "background.wav")
	if err := copyFile(vocalsSrc, vocalsPath); err != nil {
		return nil, fmt.Errorf("separation: copy vocals: %w", err)
	}
	if err := copyFile(backgroundSrc, backgroundPath); err != nil {
		return nil, fmt.Errorf("separation: copy background: %w", err)
	}

	meta, err := s.analyse(vocalsPath, backgroundPath)
	if err != nil {
		return nil, err
	}

	if err := s.store.WriteJSON(sessionID, metadataArtifact, meta); err != nil {
		return nil, err
	}
	if err := s.store.UpdateSection(sessionID, "audio_separation", map[string]any{
		"vocals_path":                meta.VocalsPath,
		"background_path":            meta.BackgroundPath,
		"has_significant_background": meta.HasSignificantBackground,
		"background_rms_db":          meta.Stats.BackgroundRMSDB,
		"vocals_rms_db":              meta.Stats.VocalsRMSDB,
	}); err != nil {
		return nil, err
	}

	slog.Info("stems separated",
		"session", sessionID,
		"vocals_db", meta.Stats.VocalsRMSDB,
		"background_db", meta.Stats.BackgroundRMSDB,
		"significant_background", meta.HasSignificantBackground)
	return meta, nil
}

// analyse computes loudness statistics for the two stems.
func (s *Separator) analyse(vocalsPath, backgroundPath string) (*types.SeparationMetadata, error) {
	vocals, err := media.ReadAudioFile(vocalsPath)
	if err != nil {
		return nil, fmt.Errorf("separation: read vocals: %w", err)
	}
	background, err := media.ReadAudioFile(backgroundPath)
	if err != nil {
		return nil, fmt.Errorf("separation: read background: %w", err)
	}

	vDB := media.RMSDBFS(vocals)
	bDB := media.RMSDBFS(background)

	// Energy shares from the linear amplitudes.
	vLin := math.Pow(10, vDB/20)
	bLin := math.Pow(10, bDB/20)
	total := vLin + bLin
	var vPct, bPct float64
	if total > 0 {
		vPct = vLin / total * 100
		bPct = bLin / total * 100
	}

	return &types.SeparationMetadata{
		VocalsPath:               vocalsPath,
		BackgroundPath:           backgroundPath,
		HasSignificantBackground: bDB > s.thresholdDB,
		Stats: types.SeparationStats{
			VocalsRMSDB:          vDB,
			BackgroundRMSDB:      bDB,
			VocalsPercentage:     vPct,
			BackgroundPercentage: bPct,
		},
	}, nil
}

// Metadata loads the stored separation metadata for a session.
func Metadata(store *session.Store, sessionID string) (*types.SeparationMetadata, error) {
	meta := &types.SeparationMetadata{}
	if err := store.ReadJSON(sessionID, metadataArtifact, meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// copyFile copies src to dst, creating parent directories.
func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "…" + s[len(s)-n:]
}
