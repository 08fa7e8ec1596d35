package app

import (
	"context"
	"time"

	"video_clip_service/internal/media/domain"
	"video_clip_service/internal/media/ffmpeg"
	"video_clip_service/internal/media/provider"

	"github.com/stretchr/testify/mock"
)

type mockVideoRepo struct{ mock.Mock }

func (m *mockVideoRepo) AutoMigrate() error { return m.Called().Error(0) }

func (m *mockVideoRepo) Create(video *domain.Video) error {
	return m.Called(video).Error(0)
}

func (m *mockVideoRepo) GetByID(id uint) (*domain.Video, error) {
	args := m.Called(id)
	if v := args.Get(0); v != nil {
		return v.(*domain.Video), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockVideoRepo) List(userID uint, limit, offset int) ([]domain.Video, error) {
	args := m.Called(userID, limit, offset)
	if v := args.Get(0); v != nil {
		return v.([]domain.Video), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockVideoRepo) UpdateFields(id uint, fields map[string]interface{}) error {
	return m.Called(id, fields).Error(0)
}

func (m *mockVideoRepo) UpdateStatus(id uint, status domain.VideoStatus) error {
	return m.Called(id, status).Error(0)
}

func (m *mockVideoRepo) UpdateStatusIf(id uint, from, to domain.VideoStatus) (bool, error) {
	args := m.Called(id, from, to)
	return args.Bool(0), args.Error(1)
}

func (m *mockVideoRepo) Delete(id uint) error { return m.Called(id).Error(0) }

type mockClipRepo struct{ mock.Mock }

func (m *mockClipRepo) CreateBatch(clips []domain.Clip) error {
	return m.Called(clips).Error(0)
}

func (m *mockClipRepo) GetByID(id uint) (*domain.Clip, error) {
	args := m.Called(id)
	if v := args.Get(0); v != nil {
		return v.(*domain.Clip), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockClipRepo) FindByVideo(videoID uint) ([]domain.Clip, error) {
	args := m.Called(videoID)
	if v := args.Get(0); v != nil {
		return v.([]domain.Clip), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockClipRepo) ListByVideo(videoID uint, limit, offset int) ([]domain.Clip, error) {
	args := m.Called(videoID, limit, offset)
	if v := args.Get(0); v != nil {
		return v.([]domain.Clip), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockClipRepo) CountByVideo(videoID uint) (int64, error) {
	args := m.Called(videoID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockClipRepo) UpdateTranscript(id uint, transcript string) error {
	return m.Called(id, transcript).Error(0)
}

func (m *mockClipRepo) UpdateEmbedding(id uint, embedding []byte) error {
	return m.Called(id, embedding).Error(0)
}

func (m *mockClipRepo) CountPendingEmbeddings(videoID uint) (int64, error) {
	args := m.Called(videoID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockClipRepo) FindEmbedded(limit int) ([]domain.Clip, error) {
	args := m.Called(limit)
	if v := args.Get(0); v != nil {
		return v.([]domain.Clip), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockHighlightRepo struct{ mock.Mock }

func (m *mockHighlightRepo) CreateWithClips(h *domain.Highlight, clips []domain.HighlightClip) error {
	return m.Called(h, clips).Error(0)
}

func (m *mockHighlightRepo) GetByID(id uint) (*domain.Highlight, error) {
	args := m.Called(id)
	if v := args.Get(0); v != nil {
		return v.(*domain.Highlight), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockHighlightRepo) UpdateStatus(id uint, status domain.HighlightStatus) error {
	return m.Called(id, status).Error(0)
}

func (m *mockHighlightRepo) SetOutput(id uint, objectKey string) error {
	return m.Called(id, objectKey).Error(0)
}

type mockMediaTool struct{ mock.Mock }

func (m *mockMediaTool) ProbeMetadata(ctx context.Context, path string) (*ffmpeg.Metadata, error) {
	args := m.Called(ctx, path)
	if v := args.Get(0); v != nil {
		return v.(*ffmpeg.Metadata), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockMediaTool) ExtractThumbnail(ctx context.Context, path string) (string, error) {
	args := m.Called(ctx, path)
	return args.String(0), args.Error(1)
}

func (m *mockMediaTool) ExtractAudio(ctx context.Context, path string) (string, error) {
	args := m.Called(ctx, path)
	return args.String(0), args.Error(1)
}

func (m *mockMediaTool) DetectSceneCuts(ctx context.Context, path string, duration, threshold float64) ([]float64, error) {
	args := m.Called(ctx, path, duration, threshold)
	if v := args.Get(0); v != nil {
		return v.([]float64), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockMediaTool) ExtractSegment(ctx context.Context, path string, start, end float64) (string, error) {
	args := m.Called(ctx, path, start, end)
	return args.String(0), args.Error(1)
}

func (m *mockMediaTool) Concatenate(ctx context.Context, paths []string) (string, error) {
	args := m.Called(ctx, paths)
	return args.String(0), args.Error(1)
}

type mockJobQueue struct{ mock.Mock }

func (m *mockJobQueue) Enqueue(ctx context.Context, name string, payload interface{}) (string, error) {
	args := m.Called(ctx, name, payload)
	return args.String(0), args.Error(1)
}

type mockObjectStore struct{ mock.Mock }

func (m *mockObjectStore) UploadFile(ctx context.Context, objectName, filePath, contentType string) error {
	return m.Called(ctx, objectName, filePath, contentType).Error(0)
}

func (m *mockObjectStore) DownloadFile(ctx context.Context, objectName, destPath string) error {
	return m.Called(ctx, objectName, destPath).Error(0)
}

func (m *mockObjectStore) PresignGetURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	args := m.Called(ctx, objectName, expiry)
	return args.String(0), args.Error(1)
}

type mockTranscriber struct{ mock.Mock }

func (m *mockTranscriber) Transcribe(ctx context.Context, audioPath string) (*provider.Transcription, error) {
	args := m.Called(ctx, audioPath)
	if v := args.Get(0); v != nil {
		return v.(*provider.Transcription), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockEmbedder struct{ mock.Mock }

func (m *mockEmbedder) Embed(ctx context.Context, text string) (*provider.Embedding, error) {
	args := m.Called(ctx, text)
	if v := args.Get(0); v != nil {
		return v.(*provider.Embedding), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]provider.Embedding, error) {
	args := m.Called(ctx, texts)
	if v := args.Get(0); v != nil {
		return v.([]provider.Embedding), args.Error(1)
	}
	return nil, args.Error(1)
}
