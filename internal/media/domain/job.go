package domain

const (
	// QueueProcessing main per-video pipeline queue
	QueueProcessing = "video-processing"
	// QueueEmbedding per-clip embedding fan-out queue
	QueueEmbedding = "clip-embedding"
	// QueueHighlight highlight render queue
	QueueHighlight = "highlight-render"
)

// ProcessingJob drives the main pipeline for one video.
type ProcessingJob struct {
	VideoID uint   `json:"video_id"`
	Path    string `json:"path"`
}

// EmbeddingJob embeds one clip's transcript.
type EmbeddingJob struct {
	ClipID     uint   `json:"clip_id"`
	Transcript string `json:"transcript"`
}

// HighlightJob renders one highlight.
type HighlightJob struct {
	HighlightID uint `json:"highlight_id"`
}

// TranscriptSegment is one timestamped piece of the whole-video
// transcription. Segments are transient: they are partitioned across
// clips by temporal overlap, never persisted per-segment.
type TranscriptSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}
