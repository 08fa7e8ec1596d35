package handlers

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"video_clip_service/internal/media/app"
	"video_clip_service/internal/media/domain"
	"video_clip_service/internal/media/repository"
	"video_clip_service/pkg/database"
	"video_clip_service/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// MediaHandler definition video/clip/highlight HTTP handlers
type MediaHandler struct {
	Ingestor      *app.Ingestor
	Searcher      *app.Searcher
	VideoRepo     repository.VideoRepo
	ClipRepo      repository.ClipRepo
	HighlightRepo repository.HighlightRepo
	ObjectStore   database.ObjectStore
	JobQueue      app.JobQueue

	SpoolDir string
}

// UploadVideo accepts a multipart upload, spools it to disk and hands
// it to the ingestor. The response confirms acceptance only; processing
// is asynchronous.
func (h *MediaHandler) UploadVideo(c *fiber.Ctx) error {
	title := c.FormValue("title")

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "no file in request"})
	}

	spoolDir := h.SpoolDir
	if spoolDir == "" {
		spoolDir = "./tmp"
	}
	if err := os.MkdirAll(spoolDir, 0755); err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "create spool directory failed"})
	}
	tempPath := filepath.Join(spoolDir, fmt.Sprintf("%s_%s", uuid.NewString(), filepath.Base(fileHeader.Filename)))
	if err := c.SaveFile(fileHeader, tempPath); err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "save upload failed"})
	}

	if title == "" {
		title = fileHeader.Filename
	}
	res, err := h.Ingestor.UploadVideo(c.Context(), domain.UploadVideoReq{
		UserID:   uint(c.QueryInt("user_id")),
		Title:    title,
		FileName: fileHeader.Filename,
		MimeType: fileHeader.Header.Get("Content-Type"),
		Size:     fileHeader.Size,
		TempPath: tempPath,
	})
	if err != nil {
		os.Remove(tempPath)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "accept upload failed"})
	}
	return c.Status(http.StatusAccepted).JSON(res)
}

// GetVideo returns one video row, including pipeline status.
func (h *MediaHandler) GetVideo(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid video id"})
	}
	video, err := h.VideoRepo.GetByID(uint(id))
	if err != nil {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "video not found"})
	}
	return c.JSON(video)
}

// ListVideos returns a page of videos, optionally filtered by user.
func (h *MediaHandler) ListVideos(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)
	offset := c.QueryInt("offset", 0)
	videos, err := h.VideoRepo.List(uint(c.QueryInt("user_id")), limit, offset)
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "list videos failed"})
	}
	return c.JSON(videos)
}

// DeleteVideo removes the video row; clips cascade.
func (h *MediaHandler) DeleteVideo(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid video id"})
	}
	video, err := h.VideoRepo.GetByID(uint(id))
	if err != nil {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "video not found"})
	}
	if err := h.VideoRepo.Delete(video.ID); err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "delete video failed"})
	}
	if video.FilePath != "" {
		if err := os.Remove(video.FilePath); err != nil && !os.IsNotExist(err) {
			logger.Log.Errorf("delete local video file failed:", err)
		}
	}
	return c.JSON(fiber.Map{"msg": "deleted", "video_id": video.ID})
}

// ListClips returns a page of one video's clips ordered by start time.
func (h *MediaHandler) ListClips(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid video id"})
	}
	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)

	clips, err := h.ClipRepo.ListByVideo(uint(id), limit, offset)
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "list clips failed"})
	}
	total, err := h.ClipRepo.CountByVideo(uint(id))
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "count clips failed"})
	}
	return c.JSON(fiber.Map{"clips": clips, "total": total, "limit": limit, "offset": offset})
}

// SearchClips ranks clips against a free-text query.
func (h *MediaHandler) SearchClips(c *fiber.Ctx) error {
	query := c.Query("q")
	if query == "" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "missing query parameter q"})
	}
	matches, err := h.Searcher.Search(c.Context(), query, c.QueryInt("limit", 10))
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "search failed"})
	}
	return c.JSON(matches)
}

// createHighlightReq is the POST /highlights body.
type createHighlightReq struct {
	UserID uint   `json:"user_id"`
	Name   string `json:"name"`
	Clips  []struct {
		ClipID    *uint   `json:"clip_id"`
		VideoID   *uint   `json:"video_id"`
		StartTime float64 `json:"start_time"`
		EndTime   float64 `json:"end_time"`
	} `json:"clips"`
}

// CreateHighlight persists the composition and enqueues its render job.
func (h *MediaHandler) CreateHighlight(c *fiber.Ctx) error {
	var req createHighlightReq
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if len(req.Clips) == 0 {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "highlight needs at least one clip"})
	}

	highlight := &domain.Highlight{
		UserID: req.UserID,
		Name:   req.Name,
		Status: string(domain.HighlightPending),
	}
	entries := make([]domain.HighlightClip, len(req.Clips))
	for i, e := range req.Clips {
		if e.ClipID == nil && e.VideoID == nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{
				"error": fmt.Sprintf("clip %d references neither a clip nor a video", i)})
		}
		entries[i] = domain.HighlightClip{
			Position:  i,
			ClipID:    e.ClipID,
			VideoID:   e.VideoID,
			StartTime: e.StartTime,
			EndTime:   e.EndTime,
		}
	}
	if err := h.HighlightRepo.CreateWithClips(highlight, entries); err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "create highlight failed"})
	}

	if _, err := h.JobQueue.Enqueue(c.Context(), domain.QueueHighlight, domain.HighlightJob{
		HighlightID: highlight.ID,
	}); err != nil {
		logger.Log.Errorf("enqueue highlight render failed:", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "enqueue render job failed"})
	}
	return c.Status(http.StatusAccepted).JSON(fiber.Map{
		"highlight_id": highlight.ID,
		"status":       highlight.Status,
	})
}

// GetHighlight returns one highlight with its ordered clips.
func (h *MediaHandler) GetHighlight(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid highlight id"})
	}
	highlight, err := h.HighlightRepo.GetByID(uint(id))
	if err != nil {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "highlight not found"})
	}
	return c.JSON(highlight)
}

// DownloadHighlight returns a presigned URL for the rendered file, or
// 409 while the render is still in flight.
func (h *MediaHandler) DownloadHighlight(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid highlight id"})
	}
	highlight, err := h.HighlightRepo.GetByID(uint(id))
	if err != nil {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "highlight not found"})
	}
	if highlight.Status != string(domain.HighlightReady) || highlight.OutputKey == nil {
		return c.Status(http.StatusConflict).JSON(fiber.Map{
			"error":  "highlight is not ready",
			"status": highlight.Status,
		})
	}

	url, err := h.ObjectStore.PresignGetURL(c.Context(), *highlight.OutputKey, 15*time.Minute)
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "generate download URL failed"})
	}
	return c.JSON(fiber.Map{"url": url})
}
