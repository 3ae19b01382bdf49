package port

import "context"

type ClipArchiver interface {
	// CreateZip bundles filePaths into outputPath. Entries are named relative
	// to baseDir; an empty baseDir flattens to base names.
	CreateZip(ctx context.Context, baseDir string, filePaths []string, outputPath string) error
}
