package app

import (
	"context"

	"video_clip_service/internal/media/ffmpeg"
)

// MediaTool is the slice of the ffmpeg adapter the usecases depend on,
// kept as an interface so tests can mock it.
type MediaTool interface {
	ProbeMetadata(ctx context.Context, path string) (*ffmpeg.Metadata, error)
	ExtractThumbnail(ctx context.Context, path string) (string, error)
	ExtractAudio(ctx context.Context, path string) (string, error)
	DetectSceneCuts(ctx context.Context, path string, duration, threshold float64) ([]float64, error)
	ExtractSegment(ctx context.Context, path string, start, end float64) (string, error)
	Concatenate(ctx context.Context, paths []string) (string, error)
}

// JobQueue is the enqueue side of the redis job queue.
type JobQueue interface {
	Enqueue(ctx context.Context, name string, payload interface{}) (string, error)
}
