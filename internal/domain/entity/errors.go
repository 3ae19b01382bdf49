package entity

import "errors"

var (
	// ErrInvalidConfiguration is fatal and surfaced before any processing starts.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrInferenceUnavailable means the accelerator-backed model cannot serve;
	// callers fall back to the slower CPU path instead of aborting.
	ErrInferenceUnavailable = errors.New("inference backend unavailable")

	// ErrSegmentationInvariant indicates a logic bug: the built segments do not
	// partition the video. The video's task aborts, the store stays untouched.
	ErrSegmentationInvariant = errors.New("segmentation invariant violated")

	// ErrConcurrentSaveConflict is returned when two saves race for the same
	// video's next version slot; the loser retries against the new latest.
	ErrConcurrentSaveConflict = errors.New("concurrent annotation save conflict")

	// ErrEmptyAnnotation blocks export of a version with no segments.
	ErrEmptyAnnotation = errors.New("annotation has no segments")

	ErrAnnotationNotFound = errors.New("annotation not found")
	ErrVideoNotFound      = errors.New("video not found")
)
