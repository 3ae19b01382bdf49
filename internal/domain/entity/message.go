package entity

import "github.com/google/uuid"

// SegmentVideoMessage is the inbound message from the video.segmentation queue.
type SegmentVideoMessage struct {
	VideoID   uuid.UUID `json:"video_id"`
	VideoKey  string    `json:"video_key"`
	FileSize  int64     `json:"file_size"`
	UserEmail string    `json:"user_email"`
}

// ExportVideoMessage is the inbound message from the video.export queue. It
// names the annotation version to cut clips from; zero means latest.
type ExportVideoMessage struct {
	VideoID  uuid.UUID `json:"video_id"`
	VideoKey string    `json:"video_key"`
	Version  int       `json:"version,omitempty"`
}

// EditAnnotationMessage is the inbound message from the annotation.edit queue:
// a reviewer committing a full replacement segment list.
type EditAnnotationMessage struct {
	VideoID     uuid.UUID `json:"video_id"`
	BaseVersion int       `json:"base_version"`
	Segments    []Segment `json:"segments"`
}

// VideoStatusMessage is the outbound message published to the video.status
// queue. The export fields summarize what went into the clip archive.
type VideoStatusMessage struct {
	VideoID             uuid.UUID         `json:"video_id"`
	Status              ProcessingStatus  `json:"status"`
	VideoKey            string            `json:"video_key"`
	Version             int               `json:"annotation_version,omitempty"`
	SegmentCount        int               `json:"segment_count,omitempty"`
	DurationSec         float64           `json:"duration_seconds,omitempty"`
	ExportKey           string            `json:"export_key,omitempty"`
	ClipCount           int               `json:"clip_count,omitempty"`
	ClipsPerTask        map[TaskLabel]int `json:"clips_per_task,omitempty"`
	ExportedDurationSec float64           `json:"exported_duration_seconds,omitempty"`
	ErrorMessage        string            `json:"error_message,omitempty"`
	Attempt             int               `json:"attempt"`
	MaxAttempts         int               `json:"max_attempts"`
}
