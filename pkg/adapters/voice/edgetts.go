// Package voice synthesizes narration with the edge-tts command line tool.
package voice

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dukex/dailyreel/pkg/adapters"
	"github.com/dukex/dailyreel/pkg/models"
)

const scriptInput = "narration.txt"

type Config struct {
	Command string
	Voice   string
	Rate    string
	Volume  string
}

// Synthesizer writes narration.mp3 and subtitles.vtt into the run directory.
type Synthesizer struct {
	cfg    Config
	runner adapters.Runner
	logger *slog.Logger
}

func NewSynthesizer(cfg Config, runner adapters.Runner, logger *slog.Logger) *Synthesizer {
	if cfg.Command == "" {
		cfg.Command = "edge-tts"
	}

	return &Synthesizer{
		cfg:    cfg,
		runner: runner,
		logger: logger.With("module", "voice"),
	}
}

func (s *Synthesizer) SynthesizeVoice(ctx context.Context, bodyText, dir string) (models.Narration, error) {
	if strings.TrimSpace(bodyText) == "" {
		return models.Narration{}, adapters.Permanent(adapters.CodeMalformedInput, "script body is empty", nil)
	}

	err := os.WriteFile(filepath.Join(dir, scriptInput), []byte(bodyText), 0600)
	if err != nil {
		return models.Narration{}, adapters.Permanent(adapters.CodeSynthesisFailed, "failed to stage script text", err)
	}

	args := []string{
		"--file", scriptInput,
		"--voice", s.cfg.Voice,
		"--write-media", filepath.Base(adapters.PartialPath(dir, models.NarrationAudio)),
		"--write-subtitles", filepath.Base(adapters.PartialPath(dir, models.NarrationCaptions)),
	}

	if s.cfg.Rate != "" {
		args = append(args, "--rate="+s.cfg.Rate)
	}

	if s.cfg.Volume != "" {
		args = append(args, "--volume="+s.cfg.Volume)
	}

	s.logger.InfoContext(ctx, "Synthesizing narration", "voice", s.cfg.Voice, "chars", len(bodyText))

	_, err = s.runner.Run(ctx, dir, s.cfg.Command, args...)
	if err != nil {
		adapters.Discard(dir, models.NarrationAudio)
		adapters.Discard(dir, models.NarrationCaptions)

		// edge-tts talks to a hosted service, so most failures are network blips.
		return models.Narration{}, adapters.CommandError(ctx, adapters.CodeSynthesisFailed, "edge-tts failed", err, true)
	}

	for _, name := range []string{models.NarrationAudio, models.NarrationCaptions} {
		if err := adapters.Commit(dir, name); err != nil {
			return models.Narration{}, adapters.Transient(adapters.CodeSynthesisFailed, "edge-tts produced no "+name, err)
		}
	}

	return models.Narration{
		AudioRef:    models.NarrationAudio,
		SubtitleRef: models.NarrationCaptions,
	}, nil
}
