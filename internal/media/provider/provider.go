package provider

import (
	"context"
	"fmt"

	"video_clip_service/internal/media/domain"
	"video_clip_service/pkg/config"
)

// Transcription is the whole-video transcription result.
type Transcription struct {
	Segments []domain.TranscriptSegment `json:"segments"`
	Language string                     `json:"language"`
	Duration float64                    `json:"duration"`
}

// Transcriber converts an audio file into timestamped text segments.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (*Transcription, error)
}

// Embedding is one text's fixed-length vector representation.
type Embedding struct {
	Vector []float32 `json:"vector"`
	Text   string    `json:"text"`
	Model  string    `json:"model"`
}

// Embedder converts text into vectors, singly or in batch.
type Embedder interface {
	Embed(ctx context.Context, text string) (*Embedding, error)
	EmbedBatch(ctx context.Context, texts []string) ([]Embedding, error)
}

// AudioSplitter is the slice of the media tool adapter the cloud
// transcriber needs to split oversized audio.
type AudioSplitter interface {
	ExtractAudioSegment(ctx context.Context, path string, start, end float64) (string, error)
	ProbeDuration(ctx context.Context, path string) (float64, error)
}

// NewTranscriber resolves the configured transcription backend exactly
// once at startup.
func NewTranscriber(cfg config.ProviderConfig, splitter AudioSplitter) (Transcriber, error) {
	switch cfg.Backend {
	case "local":
		return NewWhisperLocal(cfg), nil
	case "openai":
		return NewWhisperOpenAI(cfg, splitter), nil
	default:
		return nil, fmt.Errorf("unknown transcriber backend %q", cfg.Backend)
	}
}

// NewEmbedder resolves the configured embedding backend exactly once at
// startup.
func NewEmbedder(cfg config.ProviderConfig) (Embedder, error) {
	switch cfg.Backend {
	case "local":
		return NewEmbedderLocal(cfg), nil
	case "openai":
		return NewEmbedderOpenAI(cfg), nil
	default:
		return nil, fmt.Errorf("unknown embedder backend %q", cfg.Backend)
	}
}
