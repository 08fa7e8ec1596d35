package app

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"

	"video_clip_service/internal/media/domain"
	"video_clip_service/internal/media/ffmpeg"
	"video_clip_service/internal/media/provider"
	"video_clip_service/internal/media/repository"
	"video_clip_service/pkg/config"
	"video_clip_service/pkg/database"
	errprocess "video_clip_service/pkg/err"
	"video_clip_service/pkg/logger"

	"go.uber.org/zap"
)

// Processor drives the per-video pipeline: probe, thumbnail, scene
// segmentation, clip materialization, transcription and embedding. One
// ProcessVideo call owns its video row end to end; the queue guarantees
// at-least-once delivery, so every step must tolerate a rerun.
type Processor struct {
	videos      repository.VideoRepo
	clips       repository.ClipRepo
	media       MediaTool
	transcriber provider.Transcriber
	embedder    provider.Embedder
	jobs        JobQueue
	objects     database.ObjectStore

	minClipSeconds float64
	sceneThreshold float64
	batchLimit     int
}

// NewProcessor create Processor, filling config defaults.
func NewProcessor(
	videos repository.VideoRepo,
	clips repository.ClipRepo,
	media MediaTool,
	transcriber provider.Transcriber,
	embedder provider.Embedder,
	jobs JobQueue,
	objects database.ObjectStore,
	cfg config.MediaConfig,
) *Processor {
	p := &Processor{
		videos:      videos,
		clips:       clips,
		media:       media,
		transcriber: transcriber,
		embedder:    embedder,
		jobs:        jobs,
		objects:     objects,

		minClipSeconds: cfg.MinClipSeconds,
		sceneThreshold: cfg.SceneThreshold,
		batchLimit:     cfg.EmbedBatchLimit,
	}
	if p.minClipSeconds <= 0 {
		p.minClipSeconds = 3
	}
	if p.sceneThreshold <= 0 {
		p.sceneThreshold = 0.2
	}
	if p.batchLimit <= 0 {
		p.batchLimit = 10
	}
	return p
}

// ProcessVideo runs the whole pipeline for one video. Fatal errors (the
// source file is gone, the probe output is garbage) mark the video
// failed and stop retries; transient errors mark it failed and bubble
// up so the queue retries, and a rerun moves it back to processing.
func (p *Processor) ProcessVideo(ctx context.Context, job domain.ProcessingJob) error {
	if _, err := os.Stat(job.Path); err != nil {
		return p.markFailed(job.VideoID, errprocess.Fatal(
			errprocess.Setf("source file missing for video %d: %v", job.VideoID, err)))
	}

	if err := p.videos.UpdateStatus(job.VideoID, domain.VideoProcessing); err != nil {
		return p.markFailed(job.VideoID, err)
	}

	md, thumbPath, err := p.inspect(ctx, job.Path)
	if err != nil {
		return p.markFailed(job.VideoID, err)
	}

	mdBlob, _ := json.Marshal(md)
	fields := map[string]interface{}{
		"duration": md.Duration,
		"metadata": mdBlob,
	}
	if thumbPath != "" {
		thumbKey := fmt.Sprintf("thumbnails/%d.jpg", job.VideoID)
		if err := p.objects.UploadFile(ctx, thumbKey, thumbPath, "image/jpeg"); err != nil {
			logger.Log.Warn("thumbnail upload failed, continuing without one",
				zap.Uint("video_id", job.VideoID), zap.Error(err))
		} else {
			fields["thumbnail_path"] = thumbKey
		}
		os.Remove(thumbPath)
	}
	if err := p.videos.UpdateFields(job.VideoID, fields); err != nil {
		return p.markFailed(job.VideoID, err)
	}

	cuts, err := p.media.DetectSceneCuts(ctx, job.Path, md.Duration, p.sceneThreshold)
	if err != nil {
		return p.markFailed(job.VideoID, err)
	}

	clips, err := p.materializeClips(job.VideoID, cuts, md.Duration)
	if err != nil {
		return p.markFailed(job.VideoID, err)
	}

	if err := p.videos.UpdateStatus(job.VideoID, domain.VideoTranscribing); err != nil {
		return p.markFailed(job.VideoID, err)
	}

	tr, err := p.transcribe(ctx, job.Path)
	if err != nil {
		return p.markFailed(job.VideoID, err)
	}

	if err := p.assignTranscripts(clips, tr.Segments); err != nil {
		return p.markFailed(job.VideoID, err)
	}

	if err := p.videos.UpdateStatus(job.VideoID, domain.VideoEmbedding); err != nil {
		return p.markFailed(job.VideoID, err)
	}

	if err := p.embedClips(ctx, job.VideoID, clips); err != nil {
		return p.markFailed(job.VideoID, err)
	}

	return p.CheckCompletion(ctx, job.VideoID)
}

// inspect runs probe and thumbnail extraction concurrently; the probe
// result is required, the thumbnail is best effort.
func (p *Processor) inspect(ctx context.Context, path string) (*ffmpeg.Metadata, string, error) {
	var (
		wg        sync.WaitGroup
		md        *ffmpeg.Metadata
		probeErr  error
		thumbPath string
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		md, probeErr = p.media.ProbeMetadata(ctx, path)
	}()
	go func() {
		defer wg.Done()
		tp, err := p.media.ExtractThumbnail(ctx, path)
		if err != nil {
			logger.Log.Warn("thumbnail extraction failed, continuing without one",
				zap.String("path", path), zap.Error(err))
			return
		}
		thumbPath = tp
	}()
	wg.Wait()

	if probeErr != nil {
		return nil, thumbPath, probeErr
	}
	if md.Duration <= 0 {
		return nil, thumbPath, errprocess.Fatal(
			errprocess.Setf("probe reported non-positive duration for %s", path))
	}
	return md, thumbPath, nil
}

// materializeClips writes the clip rows for the cut list exactly once:
// a rerun that finds existing rows reuses them instead of duplicating.
func (p *Processor) materializeClips(videoID uint, cuts []float64, duration float64) ([]domain.Clip, error) {
	n, err := p.clips.CountByVideo(videoID)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		logger.Log.Info("clips already materialized, reusing",
			zap.Uint("video_id", videoID), zap.Int64("count", n))
		return p.clips.FindByVideo(videoID)
	}

	spans := buildClipSpans(cuts, duration, p.minClipSeconds)
	rows := make([]domain.Clip, len(spans))
	for i, s := range spans {
		rows[i] = domain.Clip{VideoID: videoID, StartTime: s.start, EndTime: s.end}
	}
	if err := p.clips.CreateBatch(rows); err != nil {
		return nil, err
	}
	return p.clips.FindByVideo(videoID)
}

type clipSpan struct {
	start, end float64
}

// buildClipSpans turns a sorted boundary list into contiguous, gapless
// spans. A span shorter than minSeconds is merged forward into the next
// one; the final span is emitted regardless of length. A degenerate
// boundary list collapses to a single whole-video span.
func buildClipSpans(cuts []float64, duration, minSeconds float64) []clipSpan {
	var spans []clipSpan
	start := 0.0
	for i := 1; i < len(cuts); i++ {
		end := cuts[i]
		if end <= start {
			continue
		}
		if end > duration {
			end = duration
		}
		if end-start >= minSeconds || i == len(cuts)-1 {
			spans = append(spans, clipSpan{start: start, end: end})
			start = end
		}
	}
	if len(spans) == 0 {
		return []clipSpan{{start: 0, end: duration}}
	}
	return spans
}

// transcribe extracts the full audio track and transcribes it in one
// shot; the intermediate WAV never outlives the call.
func (p *Processor) transcribe(ctx context.Context, path string) (*provider.Transcription, error) {
	audioPath, err := p.media.ExtractAudio(ctx, path)
	if err != nil {
		return nil, err
	}
	defer os.Remove(audioPath)

	return p.transcriber.Transcribe(ctx, audioPath)
}

// assignTranscripts partitions the whole-video segments across clips by
// temporal overlap and persists each clip's joined text, including the
// empty string: an empty transcript marks the clip as processed so the
// completion check can exclude it.
func (p *Processor) assignTranscripts(clips []domain.Clip, segments []domain.TranscriptSegment) error {
	for i := range clips {
		text := transcriptForSpan(segments, clips[i].StartTime, clips[i].EndTime, i == len(clips)-1)
		if err := p.clips.UpdateTranscript(clips[i].ID, text); err != nil {
			return err
		}
		clips[i].Transcript = &text
	}
	return nil
}

// transcriptForSpan joins the trimmed text of every segment overlapping
// [start,end). Zero-length segments landing exactly inside the span
// still count; the last clip additionally claims markers sitting exactly
// on its end boundary, which belong to no later clip.
func transcriptForSpan(segments []domain.TranscriptSegment, start, end float64, inclusiveEnd bool) string {
	var parts []string
	for _, s := range segments {
		lo := math.Max(s.Start, start)
		hi := math.Min(s.End, end)
		marker := s.Start == s.End && s.Start >= start &&
			(s.Start < end || (inclusiveEnd && s.Start == end))
		if lo >= hi && !marker {
			continue
		}
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// embedClips embeds every clip that got a non-empty transcript. Small
// sets are embedded inline as one batch; large sets fan out to the
// embedding queue so one slow video cannot monopolize a worker. An
// inline batch failure degrades to fan-out instead of failing the
// video.
func (p *Processor) embedClips(ctx context.Context, videoID uint, clips []domain.Clip) error {
	var pending []domain.Clip
	for _, c := range clips {
		if c.Transcript != nil && strings.TrimSpace(*c.Transcript) != "" {
			pending = append(pending, c)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	if len(pending) > p.batchLimit {
		return p.enqueueEmbeddings(ctx, pending)
	}

	texts := make([]string, len(pending))
	for i, c := range pending {
		texts[i] = *c.Transcript
	}
	embeddings, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		logger.Log.Warn("inline batch embedding failed, falling back to queue fan-out",
			zap.Uint("video_id", videoID), zap.Error(err))
		return p.enqueueEmbeddings(ctx, pending)
	}

	for i, e := range embeddings {
		if len(e.Vector) == 0 {
			// Per-item fallback inside the batch gave up on this clip.
			// Hand it to the embedding queue so its attempt policy owns
			// the terminal outcome instead of stranding the video.
			if err := p.enqueueEmbeddings(ctx, pending[i:i+1]); err != nil {
				return err
			}
			continue
		}
		if err := p.clips.UpdateEmbedding(pending[i].ID, provider.EncodeVector(e.Vector)); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) enqueueEmbeddings(ctx context.Context, clips []domain.Clip) error {
	for _, c := range clips {
		_, err := p.jobs.Enqueue(ctx, domain.QueueEmbedding, domain.EmbeddingJob{
			ClipID:     c.ID,
			Transcript: *c.Transcript,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// HandleEmbeddingJob embeds one clip's transcript and re-checks video
// completion. This is the handler for the embedding queue.
func (p *Processor) HandleEmbeddingJob(ctx context.Context, job domain.EmbeddingJob) error {
	clip, err := p.clips.GetByID(job.ClipID)
	if err != nil {
		return errprocess.Fatal(err)
	}
	if len(clip.Embedding) > 0 {
		// A retried job can land after a sibling already embedded it.
		return p.CheckCompletion(ctx, clip.VideoID)
	}

	e, err := p.embedder.Embed(ctx, job.Transcript)
	if err != nil {
		return err
	}
	if err := p.clips.UpdateEmbedding(clip.ID, provider.EncodeVector(e.Vector)); err != nil {
		return err
	}
	return p.CheckCompletion(ctx, clip.VideoID)
}

// CheckCompletion flips the video to ready once no clip still awaits an
// embedding. The compare-and-swap transition makes concurrent checks
// from racing embedding jobs harmless.
func (p *Processor) CheckCompletion(ctx context.Context, videoID uint) error {
	n, err := p.clips.CountPendingEmbeddings(videoID)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	moved, err := p.videos.UpdateStatusIf(videoID, domain.VideoEmbedding, domain.VideoReady)
	if err != nil {
		return err
	}
	if moved {
		logger.Log.Info("video pipeline complete", zap.Uint("video_id", videoID))
	}
	return nil
}

func (p *Processor) markFailed(videoID uint, cause error) error {
	if err := p.videos.UpdateStatus(videoID, domain.VideoFailed); err != nil {
		logger.Log.Errorf("failed to mark video failed:", err, zap.Uint("video_id", videoID))
	}
	return cause
}
