package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"video_clip_service/internal/media/domain"
	"video_clip_service/internal/media/ffmpeg"
	"video_clip_service/internal/media/provider"
	"video_clip_service/pkg/config"
	errprocess "video_clip_service/pkg/err"
	"video_clip_service/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.Log = logger.Initialize("app_test", os.TempDir())
	os.Exit(m.Run())
}

func strPtr(s string) *string { return &s }

func newTestProcessor(
	videos *mockVideoRepo,
	clips *mockClipRepo,
	media *mockMediaTool,
	transcriber *mockTranscriber,
	embedder *mockEmbedder,
	jobs *mockJobQueue,
	objects *mockObjectStore,
) *Processor {
	return NewProcessor(videos, clips, media, transcriber, embedder, jobs, objects, config.MediaConfig{
		MinClipSeconds:  3,
		SceneThreshold:  0.2,
		EmbedBatchLimit: 10,
	})
}

func TestBuildClipSpans(t *testing.T) {
	spans := buildClipSpans([]float64{0, 40, 80, 120}, 120, 3)
	require.Len(t, spans, 3)
	assert.Equal(t, clipSpan{0, 40}, spans[0])
	assert.Equal(t, clipSpan{40, 80}, spans[1])
	assert.Equal(t, clipSpan{80, 120}, spans[2])
}

func TestBuildClipSpansMergesShortSpansForward(t *testing.T) {
	// the 10..11 cut is under the 3s minimum, so 10..14 is one span
	spans := buildClipSpans([]float64{0, 10, 11, 14, 20}, 20, 3)
	require.Len(t, spans, 3)
	assert.Equal(t, clipSpan{0, 10}, spans[0])
	assert.Equal(t, clipSpan{10, 14}, spans[1])
	assert.Equal(t, clipSpan{14, 20}, spans[2])
}

func TestBuildClipSpansEmitsShortFinalSpan(t *testing.T) {
	spans := buildClipSpans([]float64{0, 10, 11}, 11, 3)
	require.Len(t, spans, 2)
	assert.Equal(t, clipSpan{10, 11}, spans[1])
}

func TestBuildClipSpansContiguous(t *testing.T) {
	spans := buildClipSpans([]float64{0, 5, 6, 9, 30, 31, 60}, 60, 3)
	require.NotEmpty(t, spans)
	assert.Equal(t, 0.0, spans[0].start)
	assert.Equal(t, 60.0, spans[len(spans)-1].end)
	for i := 1; i < len(spans); i++ {
		assert.Equal(t, spans[i-1].end, spans[i].start)
	}
}

func TestBuildClipSpansDegenerate(t *testing.T) {
	for _, cuts := range [][]float64{nil, {0}, {0, 0}} {
		spans := buildClipSpans(cuts, 42, 3)
		require.Len(t, spans, 1)
		assert.Equal(t, clipSpan{0, 42}, spans[0])
	}
}

func TestTranscriptForSpan(t *testing.T) {
	segments := []domain.TranscriptSegment{
		{Start: 0, End: 5, Text: " hello "},
		{Start: 5, End: 12, Text: "world"},
		{Start: 12, End: 20, Text: "out of range"},
	}

	assert.Equal(t, "hello world", transcriptForSpan(segments, 0, 10, false))
	assert.Equal(t, "out of range", transcriptForSpan(segments, 12, 20, false))
	assert.Equal(t, "", transcriptForSpan(segments, 30, 40, false))
}

func TestTranscriptForSpanZeroLengthSegment(t *testing.T) {
	segments := []domain.TranscriptSegment{{Start: 5, End: 5, Text: "marker"}}

	assert.Equal(t, "marker", transcriptForSpan(segments, 0, 10, false))
	assert.Equal(t, "", transcriptForSpan(segments, 6, 10, false))
}

func TestTranscriptForSpanMarkerAtFinalBoundary(t *testing.T) {
	// a zero-length segment exactly at the video's end belongs to the
	// last clip; earlier clips still treat their end as exclusive
	segments := []domain.TranscriptSegment{{Start: 20, End: 20, Text: "marker"}}

	assert.Equal(t, "", transcriptForSpan(segments, 10, 20, false))
	assert.Equal(t, "marker", transcriptForSpan(segments, 10, 20, true))
	assert.Equal(t, "", transcriptForSpan(nil, 10, 20, true))
}

func TestAssignTranscriptsClaimsEndOfVideoMarker(t *testing.T) {
	clips := new(mockClipRepo)
	clips.On("UpdateTranscript", uint(1), "speech").Return(nil)
	clips.On("UpdateTranscript", uint(2), "outro").Return(nil)

	p := newTestProcessor(new(mockVideoRepo), clips, new(mockMediaTool),
		new(mockTranscriber), new(mockEmbedder), new(mockJobQueue), new(mockObjectStore))

	rows := []domain.Clip{
		{ID: 1, StartTime: 0, EndTime: 10},
		{ID: 2, StartTime: 10, EndTime: 20},
	}
	segments := []domain.TranscriptSegment{
		{Start: 0, End: 9, Text: "speech"},
		{Start: 20, End: 20, Text: "outro"},
	}
	require.NoError(t, p.assignTranscripts(rows, segments))
	clips.AssertExpectations(t)
}

func TestProcessVideoMissingFileIsFatal(t *testing.T) {
	videos := new(mockVideoRepo)
	videos.On("UpdateStatus", uint(7), domain.VideoFailed).Return(nil)

	p := newTestProcessor(videos, new(mockClipRepo), new(mockMediaTool),
		new(mockTranscriber), new(mockEmbedder), new(mockJobQueue), new(mockObjectStore))

	err := p.ProcessVideo(context.Background(), domain.ProcessingJob{VideoID: 7, Path: "/nope/missing.mp4"})
	require.Error(t, err)
	assert.True(t, errprocess.IsFatal(err))
	videos.AssertExpectations(t)
}

func TestProcessVideoHappyPath(t *testing.T) {
	src := filepath.Join(t.TempDir(), "input.mp4")
	require.NoError(t, os.WriteFile(src, []byte("fake video"), 0644))

	videos := new(mockVideoRepo)
	clips := new(mockClipRepo)
	media := new(mockMediaTool)
	transcriber := new(mockTranscriber)
	embedder := new(mockEmbedder)
	jobs := new(mockJobQueue)
	objects := new(mockObjectStore)

	videos.On("UpdateStatus", uint(1), domain.VideoProcessing).Return(nil)
	media.On("ProbeMetadata", mock.Anything, src).Return(&ffmpeg.Metadata{Duration: 120, Width: 1920, Height: 1080}, nil)
	media.On("ExtractThumbnail", mock.Anything, src).Return("", errors.New("no keyframe"))
	videos.On("UpdateFields", uint(1), mock.Anything).Return(nil)

	media.On("DetectSceneCuts", mock.Anything, src, 120.0, 0.2).Return([]float64{0, 40, 80, 120}, nil)
	clips.On("CountByVideo", uint(1)).Return(int64(0), nil)
	clips.On("CreateBatch", mock.MatchedBy(func(rows []domain.Clip) bool {
		return len(rows) == 3 && rows[0].StartTime == 0 && rows[2].EndTime == 120
	})).Return(nil)
	stored := []domain.Clip{
		{ID: 11, VideoID: 1, StartTime: 0, EndTime: 40},
		{ID: 12, VideoID: 1, StartTime: 40, EndTime: 80},
		{ID: 13, VideoID: 1, StartTime: 80, EndTime: 120},
	}
	clips.On("FindByVideo", uint(1)).Return(stored, nil)

	videos.On("UpdateStatus", uint(1), domain.VideoTranscribing).Return(nil)
	media.On("ExtractAudio", mock.Anything, src).Return("/tmp/does-not-exist.wav", nil)
	transcriber.On("Transcribe", mock.Anything, "/tmp/does-not-exist.wav").Return(&provider.Transcription{
		Segments: []domain.TranscriptSegment{
			{Start: 0, End: 39, Text: "first scene"},
			{Start: 41, End: 79, Text: "second scene"},
		},
	}, nil)
	clips.On("UpdateTranscript", uint(11), "first scene").Return(nil)
	clips.On("UpdateTranscript", uint(12), "second scene").Return(nil)
	clips.On("UpdateTranscript", uint(13), "").Return(nil)

	videos.On("UpdateStatus", uint(1), domain.VideoEmbedding).Return(nil)
	embedder.On("EmbedBatch", mock.Anything, []string{"first scene", "second scene"}).Return([]provider.Embedding{
		{Vector: []float32{1, 0}, Text: "first scene"},
		{Vector: []float32{0, 1}, Text: "second scene"},
	}, nil)
	clips.On("UpdateEmbedding", uint(11), mock.Anything).Return(nil)
	clips.On("UpdateEmbedding", uint(12), mock.Anything).Return(nil)

	clips.On("CountPendingEmbeddings", uint(1)).Return(int64(0), nil)
	videos.On("UpdateStatusIf", uint(1), domain.VideoEmbedding, domain.VideoReady).Return(true, nil)

	p := newTestProcessor(videos, clips, media, transcriber, embedder, jobs, objects)
	err := p.ProcessVideo(context.Background(), domain.ProcessingJob{VideoID: 1, Path: src})
	require.NoError(t, err)

	videos.AssertExpectations(t)
	clips.AssertExpectations(t)
	media.AssertExpectations(t)
	embedder.AssertExpectations(t)
	jobs.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessVideoReusesMaterializedClips(t *testing.T) {
	src := filepath.Join(t.TempDir(), "input.mp4")
	require.NoError(t, os.WriteFile(src, []byte("fake video"), 0644))

	videos := new(mockVideoRepo)
	clips := new(mockClipRepo)
	media := new(mockMediaTool)
	transcriber := new(mockTranscriber)
	embedder := new(mockEmbedder)

	videos.On("UpdateStatus", uint(2), mock.Anything).Return(nil)
	media.On("ProbeMetadata", mock.Anything, src).Return(&ffmpeg.Metadata{Duration: 20}, nil)
	media.On("ExtractThumbnail", mock.Anything, src).Return("", errors.New("skip"))
	videos.On("UpdateFields", uint(2), mock.Anything).Return(nil)
	media.On("DetectSceneCuts", mock.Anything, src, 20.0, 0.2).Return([]float64{0, 20}, nil)

	// a retried job finds the clips already written
	clips.On("CountByVideo", uint(2)).Return(int64(1), nil)
	clips.On("FindByVideo", uint(2)).Return([]domain.Clip{{ID: 21, VideoID: 2, StartTime: 0, EndTime: 20}}, nil)

	media.On("ExtractAudio", mock.Anything, src).Return("/tmp/a.wav", nil)
	transcriber.On("Transcribe", mock.Anything, "/tmp/a.wav").Return(&provider.Transcription{}, nil)
	clips.On("UpdateTranscript", uint(21), "").Return(nil)

	clips.On("CountPendingEmbeddings", uint(2)).Return(int64(0), nil)
	videos.On("UpdateStatusIf", uint(2), domain.VideoEmbedding, domain.VideoReady).Return(true, nil)

	p := newTestProcessor(videos, clips, media, transcriber, embedder, new(mockJobQueue), new(mockObjectStore))
	err := p.ProcessVideo(context.Background(), domain.ProcessingJob{VideoID: 2, Path: src})
	require.NoError(t, err)

	clips.AssertNotCalled(t, "CreateBatch", mock.Anything)
	embedder.AssertNotCalled(t, "EmbedBatch", mock.Anything, mock.Anything)
}

func TestEmbedClipsFansOutAboveBatchLimit(t *testing.T) {
	clips := new(mockClipRepo)
	embedder := new(mockEmbedder)
	jobs := new(mockJobQueue)
	jobs.On("Enqueue", mock.Anything, domain.QueueEmbedding, mock.Anything).Return("job-id", nil)

	p := NewProcessor(new(mockVideoRepo), clips, new(mockMediaTool),
		new(mockTranscriber), embedder, jobs, new(mockObjectStore),
		config.MediaConfig{EmbedBatchLimit: 2})

	pending := []domain.Clip{
		{ID: 1, Transcript: strPtr("a")},
		{ID: 2, Transcript: strPtr("b")},
		{ID: 3, Transcript: strPtr("c")},
	}
	require.NoError(t, p.embedClips(context.Background(), 9, pending))

	jobs.AssertNumberOfCalls(t, "Enqueue", 3)
	embedder.AssertNotCalled(t, "EmbedBatch", mock.Anything, mock.Anything)
}

func TestEmbedClipsFallsBackToQueueOnBatchError(t *testing.T) {
	embedder := new(mockEmbedder)
	embedder.On("EmbedBatch", mock.Anything, mock.Anything).Return(nil, errors.New("backend down"))
	jobs := new(mockJobQueue)
	jobs.On("Enqueue", mock.Anything, domain.QueueEmbedding, mock.Anything).Return("job-id", nil)

	p := NewProcessor(new(mockVideoRepo), new(mockClipRepo), new(mockMediaTool),
		new(mockTranscriber), embedder, jobs, new(mockObjectStore), config.MediaConfig{})

	pending := []domain.Clip{{ID: 1, Transcript: strPtr("a")}}
	require.NoError(t, p.embedClips(context.Background(), 9, pending))
	jobs.AssertNumberOfCalls(t, "Enqueue", 1)
}

func TestEmbedClipsEnqueuesEmptyVectorItems(t *testing.T) {
	clips := new(mockClipRepo)
	embedder := new(mockEmbedder)
	jobs := new(mockJobQueue)

	// the batch succeeded overall but gave up on the second item
	embedder.On("EmbedBatch", mock.Anything, []string{"a", "b"}).Return([]provider.Embedding{
		{Vector: []float32{1}, Text: "a"},
		{Vector: nil, Text: "b"},
	}, nil)
	clips.On("UpdateEmbedding", uint(1), provider.EncodeVector([]float32{1})).Return(nil)
	jobs.On("Enqueue", mock.Anything, domain.QueueEmbedding, domain.EmbeddingJob{
		ClipID:     2,
		Transcript: "b",
	}).Return("job-id", nil)

	p := newTestProcessor(new(mockVideoRepo), clips, new(mockMediaTool),
		new(mockTranscriber), embedder, jobs, new(mockObjectStore))

	pending := []domain.Clip{
		{ID: 1, Transcript: strPtr("a")},
		{ID: 2, Transcript: strPtr("b")},
	}
	require.NoError(t, p.embedClips(context.Background(), 9, pending))

	clips.AssertExpectations(t)
	jobs.AssertNumberOfCalls(t, "Enqueue", 1)
}

func TestHandleEmbeddingJob(t *testing.T) {
	clips := new(mockClipRepo)
	videos := new(mockVideoRepo)
	embedder := new(mockEmbedder)

	clips.On("GetByID", uint(5)).Return(&domain.Clip{ID: 5, VideoID: 3}, nil)
	embedder.On("Embed", mock.Anything, "hello").Return(&provider.Embedding{Vector: []float32{1, 2}}, nil)
	clips.On("UpdateEmbedding", uint(5), provider.EncodeVector([]float32{1, 2})).Return(nil)
	clips.On("CountPendingEmbeddings", uint(3)).Return(int64(0), nil)
	videos.On("UpdateStatusIf", uint(3), domain.VideoEmbedding, domain.VideoReady).Return(true, nil)

	p := newTestProcessor(videos, clips, new(mockMediaTool), new(mockTranscriber),
		embedder, new(mockJobQueue), new(mockObjectStore))

	err := p.HandleEmbeddingJob(context.Background(), domain.EmbeddingJob{ClipID: 5, Transcript: "hello"})
	require.NoError(t, err)
	videos.AssertExpectations(t)
}

func TestHandleEmbeddingJobSkipsAlreadyEmbedded(t *testing.T) {
	clips := new(mockClipRepo)
	videos := new(mockVideoRepo)
	embedder := new(mockEmbedder)

	clips.On("GetByID", uint(5)).Return(&domain.Clip{ID: 5, VideoID: 3, Embedding: []byte{0, 0, 0, 0}}, nil)
	clips.On("CountPendingEmbeddings", uint(3)).Return(int64(2), nil)

	p := newTestProcessor(videos, clips, new(mockMediaTool), new(mockTranscriber),
		embedder, new(mockJobQueue), new(mockObjectStore))

	err := p.HandleEmbeddingJob(context.Background(), domain.EmbeddingJob{ClipID: 5, Transcript: "hello"})
	require.NoError(t, err)
	embedder.AssertNotCalled(t, "Embed", mock.Anything, mock.Anything)
	videos.AssertNotCalled(t, "UpdateStatusIf", mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckCompletionWaitsForPendingClips(t *testing.T) {
	clips := new(mockClipRepo)
	videos := new(mockVideoRepo)
	clips.On("CountPendingEmbeddings", uint(4)).Return(int64(1), nil)

	p := newTestProcessor(videos, clips, new(mockMediaTool), new(mockTranscriber),
		new(mockEmbedder), new(mockJobQueue), new(mockObjectStore))

	require.NoError(t, p.CheckCompletion(context.Background(), 4))
	videos.AssertNotCalled(t, "UpdateStatusIf", mock.Anything, mock.Anything, mock.Anything)
}
