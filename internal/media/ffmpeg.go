package media

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// FFmpeg implements Prober and Cutter by shelling out to ffprobe/ffmpeg.
type FFmpeg struct {
	FFprobeBin string
	FFmpegBin  string
}

// NewFFmpeg returns an FFmpeg capability using binaries found on PATH.
func NewFFmpeg() *FFmpeg {
	return &FFmpeg{
		FFprobeBin: "ffprobe",
		FFmpegBin:  "ffmpeg",
	}
}

// Probe extracts duration, frame rate and frame count from the container.
func (f *FFmpeg) Probe(ctx context.Context, path string) (Info, error) {
	cmd := exec.CommandContext(ctx, f.FFprobeBin,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=avg_frame_rate,nb_frames:format=duration",
		"-of", "default=noprint_wrappers=1",
		path,
	)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return Info{}, fmt.Errorf("ffprobe %s: %v: %s", filepath.Base(path), err,
			strings.TrimSpace(stderr.String()))
	}

	info, err := parseProbeOutput(out.String())
	if err != nil {
		return Info{}, fmt.Errorf("ffprobe %s: %w", filepath.Base(path), err)
	}
	return info, nil
}

// parseProbeOutput parses ffprobe key=value lines into an Info. Missing
// nb_frames (common for streamed containers) is derived from duration and
// frame rate.
func parseProbeOutput(output string) (Info, error) {
	var info Info
	for _, line := range strings.Split(output, "\n") {
		key, value, found := strings.Cut(strings.TrimSpace(line), "=")
		if !found || value == "N/A" {
			continue
		}
		switch key {
		case "duration":
			d, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return Info{}, fmt.Errorf("bad duration %q", value)
			}
			info.Duration = d
		case "avg_frame_rate":
			fps, err := parseRational(value)
			if err != nil {
				return Info{}, fmt.Errorf("bad frame rate %q", value)
			}
			info.FPS = fps
		case "nb_frames":
			n, err := strconv.Atoi(value)
			if err != nil {
				return Info{}, fmt.Errorf("bad frame count %q", value)
			}
			info.FrameCount = n
		}
	}

	if info.Duration <= 0 {
		return Info{}, fmt.Errorf("container has no duration")
	}
	if info.FrameCount == 0 && info.FPS > 0 {
		info.FrameCount = int(math.Round(info.Duration * info.FPS))
	}
	return info, nil
}

// parseRational parses ffprobe rationals like "30000/1001" or "25/1".
func parseRational(value string) (float64, error) {
	num, den, found := strings.Cut(value, "/")
	if !found {
		return strconv.ParseFloat(value, 64)
	}
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, err
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return 0, fmt.Errorf("zero denominator")
	}
	return n / d, nil
}

// Cut copies the [start, end) slice of the input into outPath without
// re-encoding. The parent directory is created if needed.
func (f *FFmpeg) Cut(ctx context.Context, path string, start, end float64, outPath string) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create chunk directory: %w", err)
	}

	cmd := exec.CommandContext(ctx, f.FFmpegBin,
		"-v", "error",
		"-y",
		"-ss", formatSeconds(start),
		"-to", formatSeconds(end),
		"-i", path,
		"-c", "copy",
		outPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg cut [%s, %s): %v: %s",
			formatSeconds(start), formatSeconds(end), err,
			strings.TrimSpace(stderr.String()))
	}
	return nil
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}
