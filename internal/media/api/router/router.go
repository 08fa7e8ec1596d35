package router

import (
	"video_clip_service/internal/media/api/handlers"

	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes registers the video, clip and highlight routes.
func RegisterRoutes(app *fiber.App, mediaHandler *handlers.MediaHandler) {
	app.Post("/videos", mediaHandler.UploadVideo)
	app.Get("/videos", mediaHandler.ListVideos)
	app.Get("/videos/:id", mediaHandler.GetVideo)
	app.Delete("/videos/:id", mediaHandler.DeleteVideo)
	app.Get("/videos/:id/clips", mediaHandler.ListClips)
	app.Get("/search", mediaHandler.SearchClips)
	app.Post("/highlights", mediaHandler.CreateHighlight)
	app.Get("/highlights/:id", mediaHandler.GetHighlight)
	app.Get("/highlights/:id/download", mediaHandler.DownloadHighlight)
}
