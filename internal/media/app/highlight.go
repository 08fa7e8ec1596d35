package app

import (
	"context"
	"fmt"
	"os"

	"video_clip_service/internal/media/domain"
	"video_clip_service/internal/media/repository"
	"video_clip_service/pkg/database"
	errprocess "video_clip_service/pkg/err"
	"video_clip_service/pkg/logger"

	"go.uber.org/zap"
)

// Renderer materializes a highlight into one output video: each ordered
// entry is cut out of its source, the segments are concatenated and the
// result lands in object storage.
type Renderer struct {
	highlights repository.HighlightRepo
	clips      repository.ClipRepo
	videos     repository.VideoRepo
	media      MediaTool
	objects    database.ObjectStore
}

// NewRenderer create Renderer
func NewRenderer(
	highlights repository.HighlightRepo,
	clips repository.ClipRepo,
	videos repository.VideoRepo,
	media MediaTool,
	objects database.ObjectStore,
) *Renderer {
	return &Renderer{
		highlights: highlights,
		clips:      clips,
		videos:     videos,
		media:      media,
		objects:    objects,
	}
}

// RenderHighlight is the handler for the highlight queue. A rerun of an
// already-ready highlight is a no-op.
func (r *Renderer) RenderHighlight(ctx context.Context, job domain.HighlightJob) error {
	h, err := r.highlights.GetByID(job.HighlightID)
	if err != nil {
		return errprocess.Fatal(err)
	}
	if h.Status == string(domain.HighlightReady) {
		return nil
	}
	if len(h.Clips) == 0 {
		return r.markFailed(h.ID, errprocess.Fatal(
			errprocess.Setf("highlight %d has no clips to render", h.ID)))
	}

	if err := r.highlights.UpdateStatus(h.ID, domain.HighlightProcessing); err != nil {
		return r.markFailed(h.ID, err)
	}

	var segments []string
	defer func() {
		for _, p := range segments {
			os.Remove(p)
		}
	}()

	// h.Clips comes back ordered by position.
	for _, entry := range h.Clips {
		src, start, end, err := r.resolveEntry(entry)
		if err != nil {
			return r.markFailed(h.ID, err)
		}
		seg, err := r.media.ExtractSegment(ctx, src, start, end)
		if err != nil {
			return r.markFailed(h.ID, err)
		}
		segments = append(segments, seg)
	}

	out, err := r.media.Concatenate(ctx, segments)
	if err != nil {
		return r.markFailed(h.ID, err)
	}
	defer os.Remove(out)

	outputKey := fmt.Sprintf("highlights/%d.mp4", h.ID)
	if err := r.objects.UploadFile(ctx, outputKey, out, "video/mp4"); err != nil {
		return r.markFailed(h.ID, err)
	}

	if err := r.highlights.SetOutput(h.ID, outputKey); err != nil {
		return r.markFailed(h.ID, err)
	}
	logger.Log.Info("highlight rendered",
		zap.Uint("highlight_id", h.ID), zap.Int("segments", len(segments)))
	return nil
}

// resolveEntry maps one highlight entry to a source file and time
// range. An entry references either a persisted clip or a raw video
// range; the clip's stored bounds win over the entry's.
func (r *Renderer) resolveEntry(entry domain.HighlightClip) (src string, start, end float64, err error) {
	switch {
	case entry.ClipID != nil:
		clip, cerr := r.clips.GetByID(*entry.ClipID)
		if cerr != nil {
			return "", 0, 0, errprocess.Fatal(cerr)
		}
		video, verr := r.videos.GetByID(clip.VideoID)
		if verr != nil {
			return "", 0, 0, errprocess.Fatal(verr)
		}
		return video.FilePath, clip.StartTime, clip.EndTime, nil

	case entry.VideoID != nil:
		video, verr := r.videos.GetByID(*entry.VideoID)
		if verr != nil {
			return "", 0, 0, errprocess.Fatal(verr)
		}
		if entry.EndTime <= entry.StartTime {
			return "", 0, 0, errprocess.Fatal(
				errprocess.Setf("highlight entry %d has an empty time range", entry.ID))
		}
		return video.FilePath, entry.StartTime, entry.EndTime, nil

	default:
		return "", 0, 0, errprocess.Fatal(
			errprocess.Setf("highlight entry %d references neither a clip nor a video", entry.ID))
	}
}

func (r *Renderer) markFailed(highlightID uint, cause error) error {
	if err := r.highlights.UpdateStatus(highlightID, domain.HighlightFailed); err != nil {
		logger.Log.Errorf("failed to mark highlight failed:", err, zap.Uint("highlight_id", highlightID))
	}
	return cause
}
