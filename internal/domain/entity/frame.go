package entity

// FrameSample is one decoded frame handed to the inference adapters.
// Produced by the sampler, consumed immediately, never persisted.
type FrameSample struct {
	Index        int
	TimestampSec float64
	Image        []byte
}
