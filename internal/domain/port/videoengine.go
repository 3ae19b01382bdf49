package port

import "context"

type VideoMetadata struct {
	DurationSec float64
	FPS         float64
	FrameCount  int
}

// VideoEngine is the external decode/encode collaborator.
type VideoEngine interface {
	Probe(ctx context.Context, videoPath string) (*VideoMetadata, error)
	// DecodeFrame returns the encoded image for one frame index.
	DecodeFrame(ctx context.Context, videoPath string, frameIndex int, fps float64) ([]byte, error)
	// WriteClip cuts [startSec, endSec) of the video into outPath without
	// re-encoding.
	WriteClip(ctx context.Context, videoPath string, startSec, endSec float64, outPath string) error
}
