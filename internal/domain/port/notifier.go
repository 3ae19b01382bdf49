package port

import "context"

type FailureNotifier interface {
	NotifyFailure(ctx context.Context, userEmail string, videoID string, videoKey string, errorMsg string) error
}
