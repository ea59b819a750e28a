package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"codequiz-publisher/pkg/config"
	"codequiz-publisher/pkg/errutil"
	"codequiz-publisher/pkg/ffmpeg"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	videoWidth  = 1080
	videoHeight = 1920

	keystrokeInterval = 80 * time.Millisecond
	tailHold          = 1500 * time.Millisecond

	// maxTypingFrames bounds frame count on long snippets; characters are
	// grouped per frame instead of dropped.
	maxTypingFrames = 150
)

// Generator assembles the vertical typing-animation video for a task.
type Generator struct {
	renderer  *Renderer
	ffmpegBin string
	workDir   string
	tapSound  string
}

type GeneratorParams struct {
	fx.In
	Renderer *Renderer
	Cfg      *config.Config
}

func NewGenerator(p GeneratorParams) *Generator {
	return &Generator{
		renderer:  p.Renderer,
		ffmpegBin: p.Cfg.Media.FFmpegBin,
		workDir:   p.Cfg.Media.WorkDir,
		tapSound:  p.Cfg.Media.TapSoundPath,
	}
}

// Generate renders typing frames for the question's code and encodes them
// with the background track and keyboard taps. Progress percent is emitted
// on progress when non-nil. The returned bytes are a playable MP4.
func (g *Generator) Generate(ctx context.Context, question, topic string, track *BackgroundMusic, progress chan<- int) ([]byte, error) {
	if err := ffmpeg.Available(g.ffmpegBin); err != nil {
		return nil, errutil.MediaGeneration("ffmpeg binary not found", errutil.WithErr(err))
	}

	code, lang := ExtractCode(question)
	code = Reformat(code, lang)
	if code == "" {
		return nil, errutil.MediaGeneration("no code to animate")
	}

	music, tap, err := g.resolveAudio(track)
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp(g.workDir, "typing-video-*")
	if err != nil {
		return nil, errutil.MediaGeneration("create work dir", errutil.WithErr(err))
	}
	defer os.RemoveAll(dir)

	frames, taps, err := g.renderFrames(dir, code, lang, topic)
	if err != nil {
		return nil, err
	}

	spec := ffmpeg.EncodeSpec{
		Frames:    frames,
		Width:     videoWidth,
		Height:    videoHeight,
		Taps:      taps,
		MusicPath: music,
		TapPath:   tap,
		Output:    filepath.Join(dir, "question.mp4"),
	}

	if err := ffmpeg.Encode(ctx, g.ffmpegBin, spec, progress); err != nil {
		return nil, errutil.MediaGeneration("encode typing video", errutil.WithErr(err))
	}

	out, err := os.ReadFile(spec.Output)
	if err != nil {
		return nil, errutil.MediaGeneration("read encoded video", errutil.WithErr(err))
	}
	return out, nil
}

// resolveAudio picks the audio assets that exist on disk. A missing
// background track is tolerated, the video plays with taps only; no audio
// at all is not: a silent typing video is a broken deliverable.
func (g *Generator) resolveAudio(track *BackgroundMusic) (music, tap string, err error) {
	if track != nil {
		if _, statErr := os.Stat(track.FilePath); statErr == nil {
			music = track.FilePath
		} else {
			zap.L().Warn("background track missing on disk, encoding without music",
				zap.String("path", track.FilePath))
		}
	}
	if g.tapSound != "" {
		if _, statErr := os.Stat(g.tapSound); statErr == nil {
			tap = g.tapSound
		}
	}
	if music == "" && tap == "" {
		return "", "", errutil.MediaGeneration("no audio assets available")
	}
	return music, tap, nil
}

// renderFrames paints one PNG per keystroke group plus a held final frame,
// and records the tap offsets aligned with each keystroke boundary.
func (g *Generator) renderFrames(dir, code, lang, topic string) ([]ffmpeg.Frame, []time.Duration, error) {
	runes := []rune(code)
	step := 1
	if len(runes) > maxTypingFrames {
		step = (len(runes) + maxTypingFrames - 1) / maxTypingFrames
	}

	var frames []ffmpeg.Frame
	var taps []time.Duration
	elapsed := time.Duration(0)

	for i := step; i <= len(runes); i += step {
		end := i
		if end > len(runes) {
			end = len(runes)
		}
		img, err := g.renderer.RenderCode(string(runes[:end]), lang, topic)
		if err != nil {
			return nil, nil, errutil.MediaGeneration("render typing frame", errutil.WithErr(err))
		}

		path := filepath.Join(dir, fmt.Sprintf("frame_%04d.png", len(frames)))
		if err := os.WriteFile(path, img, 0o644); err != nil {
			return nil, nil, errutil.MediaGeneration("write typing frame", errutil.WithErr(err))
		}

		frames = append(frames, ffmpeg.Frame{Path: path, Duration: keystrokeInterval})
		taps = append(taps, elapsed)
		elapsed += keystrokeInterval
	}

	if len(frames) == 0 {
		return nil, nil, errutil.MediaGeneration("no frames rendered")
	}

	// hold the completed snippet so the viewer can read it
	frames[len(frames)-1].Duration = tailHold

	return frames, taps, nil
}
