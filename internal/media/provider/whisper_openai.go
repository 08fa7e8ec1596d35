package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"video_clip_service/internal/media/domain"
	"video_clip_service/pkg/config"
	"video_clip_service/pkg/logger"

	"go.uber.org/zap"
)

const (
	// maxUploadBytes is the provider's hard input-size ceiling.
	maxUploadBytes = 25 << 20
	// targetChunkBytes sizes chunks comfortably under the ceiling.
	targetChunkBytes = 20 << 20
	// maxTranscribeAttempts bounds local retry of connection failures.
	maxTranscribeAttempts = 3
)

// whisperOpenAI talks to an OpenAI-compatible transcription API.
// Oversized inputs are transparently split into duration-equal chunks
// whose segment timestamps get offset and re-merged.
type whisperOpenAI struct {
	baseURL  string
	apiKey   string
	model    string
	client   *http.Client
	splitter AudioSplitter
}

// NewWhisperOpenAI builds the cloud-API transcription backend.
func NewWhisperOpenAI(cfg config.ProviderConfig, splitter AudioSplitter) Transcriber {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	model := cfg.Model
	if model == "" {
		model = "whisper-1"
	}
	return &whisperOpenAI{
		baseURL:  cfg.BaseURL,
		apiKey:   cfg.APIKey,
		model:    model,
		client:   &http.Client{Timeout: timeout},
		splitter: splitter,
	}
}

type whisperAPIResponse struct {
	Language string                     `json:"language"`
	Duration float64                    `json:"duration"`
	Segments []domain.TranscriptSegment `json:"segments"`
	Text     string                     `json:"text"`
}

func (w *whisperOpenAI) Transcribe(ctx context.Context, audioPath string) (*Transcription, error) {
	st, err := os.Stat(audioPath)
	if err != nil {
		return nil, fmt.Errorf("stat audio file: %w", err)
	}

	if st.Size() > maxUploadBytes {
		return w.transcribeChunked(ctx, audioPath, st.Size())
	}

	tr, err := w.transcribeWithRetry(ctx, audioPath)
	if err != nil {
		// The size check can pass on stale metadata; the provider's 413
		// is authoritative, so switch to chunking late.
		var api *APIError
		if errors.As(err, &api) && api.Category == CategoryPayloadTooLarge {
			logger.Log.Warn("provider rejected payload size, switching to chunked transcription",
				zap.String("audio", audioPath))
			return w.transcribeChunked(ctx, audioPath, st.Size())
		}
		return nil, err
	}
	return tr, nil
}

// transcribeWithRetry retries connection-class failures with
// exponential backoff; other categories return immediately.
func (w *whisperOpenAI) transcribeWithRetry(ctx context.Context, audioPath string) (*Transcription, error) {
	var lastErr error
	for attempt := 1; attempt <= maxTranscribeAttempts; attempt++ {
		tr, err := w.transcribeFile(ctx, audioPath)
		if err == nil {
			return tr, nil
		}
		lastErr = err
		if !isConnectionError(err) {
			return nil, err
		}
		if attempt < maxTranscribeAttempts {
			delay := time.Second << (attempt - 1)
			logger.Log.Warn("transcription connection failure, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return nil, lastErr
}

func (w *whisperOpenAI) transcribeFile(ctx context.Context, audioPath string) (*Transcription, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, err
	}
	_ = mw.WriteField("model", w.model)
	_ = mw.WriteField("response_format", "verbose_json")
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/v1/audio/transcriptions", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+w.apiKey)

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, classifyStatus(resp.StatusCode, string(b))
	}

	var out whisperAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode transcription response: %w", err)
	}

	segments := out.Segments
	if segments == nil {
		segments = []domain.TranscriptSegment{}
	}
	return &Transcription{
		Segments: segments,
		Language: out.Language,
		Duration: out.Duration,
	}, nil
}

// transcribeChunked splits the audio into duration-equal chunks sized
// to target ~20MB, transcribes each independently, offsets each chunk's
// timestamps by its start offset, and merges sorted by start.
func (w *whisperOpenAI) transcribeChunked(ctx context.Context, audioPath string, size int64) (*Transcription, error) {
	duration, err := w.splitter.ProbeDuration(ctx, audioPath)
	if err != nil {
		return nil, fmt.Errorf("probe audio duration for chunking: %w", err)
	}
	if duration <= 0 {
		return nil, fmt.Errorf("cannot chunk audio with non-positive duration")
	}

	chunks := int(math.Ceil(float64(size) / float64(targetChunkBytes)))
	if chunks < 2 {
		chunks = 2
	}
	chunkDur := duration / float64(chunks)

	merged := &Transcription{Segments: []domain.TranscriptSegment{}, Duration: duration}
	for i := 0; i < chunks; i++ {
		start := float64(i) * chunkDur
		end := start + chunkDur
		if end > duration {
			end = duration
		}

		chunkPath, err := w.splitter.ExtractAudioSegment(ctx, audioPath, start, end)
		if err != nil {
			return nil, fmt.Errorf("extract audio chunk %d/%d: %w", i+1, chunks, err)
		}

		tr, err := w.transcribeWithRetry(ctx, chunkPath)
		os.Remove(chunkPath)
		if err != nil {
			return nil, fmt.Errorf("transcribe chunk %d/%d: %w", i+1, chunks, err)
		}

		merged.Segments = append(merged.Segments, offsetSegments(tr.Segments, start)...)
		if merged.Language == "" {
			merged.Language = tr.Language
		}
	}

	sort.Slice(merged.Segments, func(a, b int) bool {
		return merged.Segments[a].Start < merged.Segments[b].Start
	})
	return merged, nil
}

// offsetSegments shifts chunk-relative timestamps into whole-file time.
func offsetSegments(segments []domain.TranscriptSegment, offset float64) []domain.TranscriptSegment {
	out := make([]domain.TranscriptSegment, len(segments))
	for i, s := range segments {
		out[i] = domain.TranscriptSegment{
			Start: s.Start + offset,
			End:   s.End + offset,
			Text:  s.Text,
		}
	}
	return out
}
