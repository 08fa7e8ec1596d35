package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"video_clip_service/internal/media/api/handlers"
	"video_clip_service/internal/media/api/router"
	"video_clip_service/internal/media/app"
	"video_clip_service/internal/media/domain"
	"video_clip_service/internal/media/ffmpeg"
	"video_clip_service/internal/media/provider"
	"video_clip_service/internal/media/repository"
	"video_clip_service/pkg/config"
	"video_clip_service/pkg/database"
	"video_clip_service/pkg/logger"
	"video_clip_service/pkg/queue"

	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"
)

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.ClipService, config.EnvConfig.ClipServiceLogPath)

	cfg := config.LoadConfig[config.ClipService](config.EnvConfig.ClipService, config.EnvConfig.ClipServiceYAMLPath)

	// 1. PostgreSQL
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		cfg.PostgreSQL.Host, cfg.PostgreSQL.User, cfg.PostgreSQL.Password, cfg.PostgreSQL.Database, cfg.PostgreSQL.Port)
	db, err := database.NewPGConnection(database.Connection{
		ConnectStr: dsn,

		RetryCount:    cfg.PostgreSQL.RetryCount,
		RetryInterval: time.Duration(cfg.PostgreSQL.RetryInterval),
	})
	if err != nil {
		logger.Log.Fatal(
			"Unable to connect to postgreSQL database after retries",
			zap.String("address", fmt.Sprintf("[%s]", dsn)),
			zap.Error(err),
		)
	}

	videoRepo := repository.NewVideoRepo(db)
	clipRepo := repository.NewClipRepo(db)
	highlightRepo := repository.NewHighlightRepo(db)
	if err := videoRepo.AutoMigrate(); err != nil {
		log.Fatalf("database migration failed: %v", err)
	}

	// 2. Redis job queue
	redisClient, err := database.NewRedisClient(database.RedisConnection{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.RedisDB,

		RetryCount:    cfg.Redis.RetryCount,
		RetryInterval: time.Duration(cfg.Redis.RetryInterval),
	})
	if err != nil {
		logger.Log.Fatal("Unable to connect to redis after retries",
			zap.String("address", cfg.Redis.Addr), zap.Error(err))
	}
	jobQueue := queue.New(redisClient, cfg.Queues.Prefix)

	// 3. MinIO object storage
	minioClient, err := database.NewMinIOConnection(database.MinIOConnection{
		Endpoint:   fmt.Sprintf("%s:%d", cfg.MinIO.Host, cfg.MinIO.Port),
		User:       cfg.MinIO.User,
		Password:   cfg.MinIO.Password,
		BucketName: cfg.MinIO.BucketName,
		UseSSL:     cfg.MinIO.UseSSL,

		RetryCount:    cfg.MinIO.RetryCount,
		RetryInterval: time.Duration(cfg.MinIO.RetryInterval),
	})
	if err != nil {
		logger.Log.Fatal("Unable to connect to minio after retries",
			zap.String("address", fmt.Sprintf("%s:%d", cfg.MinIO.Host, cfg.MinIO.Port)),
			zap.Error(err))
	}

	// 4. Media tool and inference backends
	mediaTool := ffmpeg.New(cfg.FFmpeg, cfg.Media.ShortVideoSeconds)

	transcriber, err := provider.NewTranscriber(cfg.Transcriber, mediaTool)
	if err != nil {
		log.Fatalf("transcriber setup failed: %v", err)
	}
	embedder, err := provider.NewEmbedder(cfg.Embedder)
	if err != nil {
		log.Fatalf("embedder setup failed: %v", err)
	}

	// 5. Usecases
	processor := app.NewProcessor(videoRepo, clipRepo, mediaTool, transcriber, embedder, jobQueue, minioClient, cfg.Media)
	renderer := app.NewRenderer(highlightRepo, clipRepo, videoRepo, mediaTool, minioClient)
	ingestor := app.NewIngestor(videoRepo, minioClient, jobQueue, cfg.Media.UploadDir)
	searcher := app.NewSearcher(clipRepo, embedder)

	// 6. Queue workers
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	processingWorker := queue.NewWorker(jobQueue, domain.QueueProcessing, cfg.Queues.Processing,
		func(ctx context.Context, job *queue.Job) error {
			var payload domain.ProcessingJob
			if err := job.Decode(&payload); err != nil {
				return err
			}
			return processor.ProcessVideo(ctx, payload)
		})
	embeddingWorker := queue.NewWorker(jobQueue, domain.QueueEmbedding, cfg.Queues.Embedding,
		func(ctx context.Context, job *queue.Job) error {
			var payload domain.EmbeddingJob
			if err := job.Decode(&payload); err != nil {
				return err
			}
			return processor.HandleEmbeddingJob(ctx, payload)
		})
	highlightWorker := queue.NewWorker(jobQueue, domain.QueueHighlight, cfg.Queues.Highlight,
		func(ctx context.Context, job *queue.Job) error {
			var payload domain.HighlightJob
			if err := job.Decode(&payload); err != nil {
				return err
			}
			return renderer.RenderHighlight(ctx, payload)
		})
	processingWorker.Start(ctx)
	embeddingWorker.Start(ctx)
	highlightWorker.Start(ctx)

	// 7. Fiber app
	r := fiber.New(fiber.Config{
		BodyLimit: 2 << 30, // raw uploads are large
	})

	file, err := os.OpenFile(fmt.Sprintf("%s/access.log", config.EnvConfig.ClipServiceLogPath),
		os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer file.Close()

	r.Use(fiber_log.New(fiber_log.Config{
		Output: file,
	}))

	mediaHandler := &handlers.MediaHandler{
		Ingestor:      ingestor,
		Searcher:      searcher,
		VideoRepo:     videoRepo,
		ClipRepo:      clipRepo,
		HighlightRepo: highlightRepo,
		ObjectStore:   minioClient,
		JobQueue:      jobQueue,
		SpoolDir:      cfg.Media.UploadDir,
	}
	router.RegisterRoutes(r, mediaHandler)

	go func() {
		if err := r.Listen(cfg.IP + ":" + cfg.Port); err != nil {
			logger.Log.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// 8. Shutdown: stop intake, cancel workers, drain.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("shutting down")
	if err := r.Shutdown(); err != nil {
		logger.Log.Errorf("fiber shutdown failed:", err)
	}
	cancel()
	processingWorker.Wait()
	embeddingWorker.Wait()
	highlightWorker.Wait()
	logger.Log.Sync()
}
