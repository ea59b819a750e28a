package ffmpeg

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Frame is one still of the typing animation with its display duration.
type Frame struct {
	Path     string
	Duration time.Duration
}

// EncodeSpec describes a vertical typing video: a frame sequence, an
// optional looped background track and keyboard-tap sounds at the given
// offsets from the start.
type EncodeSpec struct {
	Frames    []Frame
	Width     int
	Height    int
	MusicPath string
	TapPath   string
	Taps      []time.Duration
	Output    string
}

// maxTapInputs bounds the adelay fan-in so the filter graph stays within
// ffmpeg's practical limits on long snippets.
const maxTapInputs = 48

const (
	backgroundVolume = 0.25
	tapVolume        = 0.9
)

func Available(bin string) error {
	_, err := exec.LookPath(bin)
	return err
}

// TotalDuration sums the frame durations of the spec.
func (s EncodeSpec) TotalDuration() time.Duration {
	var total time.Duration
	for _, f := range s.Frames {
		total += f.Duration
	}
	return total
}

// Encode runs ffmpeg over the spec. Progress percent is sent on progress
// when non-nil; the channel is never closed by Encode.
func Encode(ctx context.Context, bin string, spec EncodeSpec, progress chan<- int) error {
	if len(spec.Frames) == 0 {
		return fmt.Errorf("encode: no frames")
	}

	listPath, err := writeConcatList(spec)
	if err != nil {
		return err
	}
	defer os.Remove(listPath)

	args, err := buildArgs(listPath, spec)
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	cmd.Stderr = os.Stderr

	zap.L().Info("ffmpeg: encoding typing video",
		zap.String("output", spec.Output),
		zap.Int("frames", len(spec.Frames)),
		zap.Duration("duration", spec.TotalDuration()),
	)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ffmpeg start: %w", err)
	}

	go reportProgress(stdout, spec.TotalDuration(), progress)

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg: %w", err)
	}
	return nil
}

// writeConcatList emits a concat-demuxer file next to the first frame.
// The final frame is repeated because the demuxer ignores the last
// duration directive.
func writeConcatList(spec EncodeSpec) (string, error) {
	var b strings.Builder
	for _, f := range spec.Frames {
		fmt.Fprintf(&b, "file '%s'\n", f.Path)
		fmt.Fprintf(&b, "duration %.3f\n", f.Duration.Seconds())
	}
	fmt.Fprintf(&b, "file '%s'\n", spec.Frames[len(spec.Frames)-1].Path)

	listPath := filepath.Join(filepath.Dir(spec.Frames[0].Path), "frames.txt")
	if err := os.WriteFile(listPath, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("write concat list: %w", err)
	}
	return listPath, nil
}

func buildArgs(listPath string, spec EncodeSpec) ([]string, error) {
	args := []string{
		"-loglevel", "error",
		"-progress", "pipe:1",
		"-f", "concat", "-safe", "0", "-i", listPath,
	}

	musicInput := -1
	tapInput := -1
	inputIdx := 1

	if spec.MusicPath != "" {
		args = append(args, "-stream_loop", "-1", "-i", spec.MusicPath)
		musicInput = inputIdx
		inputIdx++
	}
	if spec.TapPath != "" && len(spec.Taps) > 0 {
		args = append(args, "-i", spec.TapPath)
		tapInput = inputIdx
	}

	var filters []string
	var mixInputs []string

	filters = append(filters, fmt.Sprintf(
		"[0:v]scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,format=yuv420p[vout]",
		spec.Width, spec.Height, spec.Width, spec.Height,
	))

	if musicInput >= 0 {
		filters = append(filters, fmt.Sprintf("[%d:a]volume=%.2f[bg]", musicInput, backgroundVolume))
		mixInputs = append(mixInputs, "[bg]")
	}
	if tapInput >= 0 {
		taps := spec.Taps
		if len(taps) > maxTapInputs {
			taps = thinTaps(taps, maxTapInputs)
		}
		for i, at := range taps {
			ms := at.Milliseconds()
			filters = append(filters, fmt.Sprintf(
				"[%d:a]adelay=%d|%d,volume=%.2f[tap%d]", tapInput, ms, ms, tapVolume, i,
			))
			mixInputs = append(mixInputs, fmt.Sprintf("[tap%d]", i))
		}
	}

	args = append(args, "-filter_complex")
	if len(mixInputs) > 0 {
		mix := fmt.Sprintf("%samix=inputs=%d:duration=first:dropout_transition=0[aout]",
			strings.Join(mixInputs, ""), len(mixInputs))
		args = append(args, strings.Join(append(filters, mix), ";"),
			"-map", "[vout]", "-map", "[aout]")
	} else {
		args = append(args, strings.Join(filters, ";"), "-map", "[vout]")
	}

	args = append(args,
		"-t", fmt.Sprintf("%.3f", spec.TotalDuration().Seconds()),
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "23",
		"-r", "30",
	)
	if len(mixInputs) > 0 {
		args = append(args, "-c:a", "aac", "-b:a", "128k")
	}
	args = append(args, "-y", spec.Output)

	return args, nil
}

// thinTaps keeps an evenly spaced subset of the keystroke offsets.
func thinTaps(taps []time.Duration, max int) []time.Duration {
	out := make([]time.Duration, 0, max)
	step := float64(len(taps)) / float64(max)
	for i := 0; i < max; i++ {
		out = append(out, taps[int(float64(i)*step)])
	}
	return out
}

func reportProgress(r interface{ Read([]byte) (int, error) }, total time.Duration, progress chan<- int) {
	scanner := bufio.NewScanner(bufio.NewReader(r))
	last := -1
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "out_time_ms=") {
			continue
		}
		us, err := strconv.ParseInt(strings.TrimPrefix(line, "out_time_ms="), 10, 64)
		if err != nil || total <= 0 {
			continue
		}
		pct := int(float64(us) / float64(total.Microseconds()) * 100)
		if pct > 100 {
			pct = 100
		}
		if pct != last {
			last = pct
			if progress != nil {
				select {
				case progress <- pct:
				default:
				}
			}
		}
	}
}
