package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/surgitrain/segmentation-service/internal/domain/port"
	"go.uber.org/zap"
)

// Engine shells out to ffmpeg/ffprobe for everything the pipeline needs from
// the video: metadata, single-frame decode and clip cutting.
type Engine struct {
	logger *zap.Logger
}

func NewEngine(logger *zap.Logger) *Engine {
	return &Engine{logger: logger}
}

func (e *Engine) Probe(ctx context.Context, videoPath string) (*port.VideoMetadata, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=r_frame_rate,nb_frames:format=duration",
		"-of", "default=noprint_wrappers=1",
		videoPath,
	)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe: %w", err)
	}

	meta := &port.VideoMetadata{}
	for _, line := range strings.Split(strings.TrimSpace(string(output)), "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		switch key {
		case "duration":
			meta.DurationSec, _ = strconv.ParseFloat(value, 64)
		case "r_frame_rate":
			meta.FPS = parseRate(value)
		case "nb_frames":
			meta.FrameCount, _ = strconv.Atoi(value)
		}
	}

	if meta.FPS <= 0 {
		return nil, fmt.Errorf("ffprobe: no frame rate in output for %s", videoPath)
	}
	if meta.FrameCount == 0 && meta.DurationSec > 0 {
		// Some containers omit nb_frames; estimate from duration.
		meta.FrameCount = int(meta.DurationSec * meta.FPS)
	}

	return meta, nil
}

// DecodeFrame extracts one frame as a JPEG, seeking by timestamp derived from
// the frame index.
func (e *Engine) DecodeFrame(ctx context.Context, videoPath string, frameIndex int, fps float64) ([]byte, error) {
	ts := float64(frameIndex) / fps

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-ss", fmt.Sprintf("%.4f", ts),
		"-i", videoPath,
		"-frames:v", "1",
		"-f", "image2",
		"-c:v", "mjpeg",
		"pipe:1",
	)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("decode frame %d: %w, stderr: %s", frameIndex, err, stderr.String())
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("decode frame %d: empty output", frameIndex)
	}
	return stdout.Bytes(), nil
}

// WriteClip cuts [startSec, endSec) by stream copy, without re-encoding.
func (e *Engine) WriteClip(ctx context.Context, videoPath string, startSec, endSec float64, outPath string) error {
	duration := endSec - startSec
	if duration <= 0 {
		return fmt.Errorf("invalid clip duration %.3fs [%.3f, %.3f)", duration, startSec, endSec)
	}

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y",
		"-ss", fmt.Sprintf("%.3f", startSec),
		"-i", videoPath,
		"-t", fmt.Sprintf("%.3f", duration),
		"-c", "copy",
		"-avoid_negative_ts", "make_zero",
		outPath,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg clip cut: %w, output: %s", err, string(output))
	}

	e.logger.Debug("clip written",
		zap.String("out_path", outPath),
		zap.Float64("start_sec", startSec),
		zap.Float64("end_sec", endSec),
	)
	return nil
}

// parseRate handles ffprobe rational rates like "30000/1001".
func parseRate(value string) float64 {
	num, den, ok := strings.Cut(value, "/")
	if !ok {
		f, _ := strconv.ParseFloat(value, 64)
		return f
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}
