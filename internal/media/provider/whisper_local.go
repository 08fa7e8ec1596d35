package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"video_clip_service/internal/media/domain"
	"video_clip_service/pkg/config"
	"video_clip_service/pkg/logger"

	"go.uber.org/zap"
)

// whisperLocal talks to a local whisper.cpp inference sidecar over
// HTTP. On any failure it returns an empty result instead of an error:
// an empty transcript is a valid, degraded outcome and must not fail
// the pipeline.
type whisperLocal struct {
	baseURL string
	client  *http.Client
}

// NewWhisperLocal builds the local-inference transcription backend.
func NewWhisperLocal(cfg config.ProviderConfig) Transcriber {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &whisperLocal{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type whisperLocalResponse struct {
	Success  bool                       `json:"success"`
	Segments []domain.TranscriptSegment `json:"segments"`
	Language string                     `json:"language"`
}

func (w *whisperLocal) Transcribe(ctx context.Context, audioPath string) (*Transcription, error) {
	res, err := w.post(ctx, audioPath)
	if err != nil {
		logger.Log.Warn("local transcription failed, continuing with empty transcript",
			zap.String("audio", audioPath), zap.Error(err))
		return &Transcription{Segments: []domain.TranscriptSegment{}}, nil
	}
	return res, nil
}

func (w *whisperLocal) post(ctx context.Context, audioPath string) (*Transcription, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("audio", filepath.Base(audioPath))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/transcribe", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("whisper server returned status %d: %s", resp.StatusCode, b)
	}

	var out whisperLocalResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}

	tr := &Transcription{
		Segments: out.Segments,
		Language: out.Language,
	}
	if tr.Segments == nil {
		tr.Segments = []domain.TranscriptSegment{}
	}
	if n := len(tr.Segments); n > 0 {
		tr.Duration = tr.Segments[n-1].End
	}
	return tr, nil
}
