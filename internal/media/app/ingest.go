package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"video_clip_service/internal/media/domain"
	"video_clip_service/internal/media/repository"
	"video_clip_service/pkg/database"
	errprocess "video_clip_service/pkg/err"
	"video_clip_service/pkg/logger"

	"go.uber.org/zap"
)

// Ingestor finalizes an upload: it persists the video row, moves the
// spooled file into the managed upload directory, archives the original
// to object storage and kicks off the processing pipeline.
type Ingestor struct {
	videos    repository.VideoRepo
	objects   database.ObjectStore
	jobs      JobQueue
	uploadDir string
}

// NewIngestor create Ingestor
func NewIngestor(videos repository.VideoRepo, objects database.ObjectStore, jobs JobQueue, uploadDir string) *Ingestor {
	if uploadDir == "" {
		uploadDir = "./uploads"
	}
	return &Ingestor{videos: videos, objects: objects, jobs: jobs, uploadDir: uploadDir}
}

// UploadVideo registers the spooled file and enqueues its processing
// job. The response only confirms acceptance; everything downstream is
// asynchronous.
func (i *Ingestor) UploadVideo(ctx context.Context, req domain.UploadVideoReq) (*domain.UploadVideoRes, error) {
	video := &domain.Video{
		UserID:   req.UserID,
		Title:    req.Title,
		Size:     req.Size,
		MimeType: req.MimeType,
		Status:   string(domain.VideoUploading),
	}
	if err := i.videos.Create(video); err != nil {
		return nil, errprocess.Setf("create video row failed: %v", err)
	}

	if err := os.MkdirAll(i.uploadDir, 0755); err != nil {
		return nil, errprocess.Setf("create upload directory failed: %v", err)
	}
	dest := filepath.Join(i.uploadDir, fmt.Sprintf("%d_%s", video.ID, filepath.Base(req.FileName)))
	if err := moveFile(req.TempPath, dest); err != nil {
		return nil, errprocess.Setf("move upload into place failed: %v", err)
	}

	objectKey := fmt.Sprintf("original/%d/%s", video.ID, filepath.Base(req.FileName))
	if err := i.objects.UploadFile(ctx, objectKey, dest, req.MimeType); err != nil {
		// The local copy is what the pipeline reads; losing the archive
		// copy is recoverable, so log and continue.
		logger.Log.Errorf("archive upload to object storage failed:", err,
			zap.Uint("video_id", video.ID))
		objectKey = ""
	}

	if err := i.videos.UpdateFields(video.ID, map[string]interface{}{
		"file_path":  dest,
		"object_key": objectKey,
		"status":     string(domain.VideoProcessing),
	}); err != nil {
		return nil, errprocess.Setf("persist upload paths failed: %v", err)
	}

	if _, err := i.jobs.Enqueue(ctx, domain.QueueProcessing, domain.ProcessingJob{
		VideoID: video.ID,
		Path:    dest,
	}); err != nil {
		return nil, errprocess.Setf("enqueue processing job failed: %v", err)
	}

	logger.Log.Info("video accepted",
		zap.Uint("video_id", video.ID), zap.String("title", req.Title), zap.Int64("size", req.Size))
	return &domain.UploadVideoRes{VideoID: video.ID, Status: string(domain.VideoProcessing)}, nil
}

// moveFile renames when possible and falls back to copy+remove for
// cross-device moves.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
