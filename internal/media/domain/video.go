package domain

import "time"

// VideoStatus definition video status
type VideoStatus string

const (
	// VideoUploading upload transport still in progress
	VideoUploading VideoStatus = "uploading"
	// VideoProcessing metadata/thumbnail/scene stages running
	VideoProcessing VideoStatus = "processing"
	// VideoTranscribing full-video transcription running
	VideoTranscribing VideoStatus = "transcribing"
	// VideoEmbedding clip embedding running
	VideoEmbedding VideoStatus = "embedding"
	// VideoReady all clips transcribed and embedded
	VideoReady VideoStatus = "ready"
	// VideoFailed pipeline aborted, reachable from any non-terminal state
	VideoFailed VideoStatus = "failed"
)

// Video is the uploaded source file plus everything the pipeline
// derives from it. Only the orchestrator driving the video's job writes
// this row.
type Video struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	UserID    uint   `gorm:"index" json:"user_id"`
	Title     string `json:"title"`
	FilePath  string `json:"file_path"`  // local path handed to the pipeline
	ObjectKey string `json:"object_key"` // original file in object storage
	Size      int64  `json:"size"`
	MimeType  string `json:"mime_type"`

	Duration      *float64 `json:"duration,omitempty"`
	ThumbnailPath *string  `json:"thumbnail_path,omitempty"`
	Metadata      []byte   `gorm:"type:bytea" json:"-"` // opaque probe blob

	Status    string    `gorm:"index" json:"status"`
	CreatedAt time.Time `json:"created_at"`

	Clips []Clip `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// Clip is a time-bounded sub-range of a Video. Transcript and embedding
// are filled in by later stages; a clip with nulls in those fields is a
// valid, queryable entity.
type Clip struct {
	ID        uint    `gorm:"primaryKey" json:"id"`
	VideoID   uint    `gorm:"index;not null" json:"video_id"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"` // invariant: EndTime > StartTime

	Transcript *string `json:"transcript,omitempty"`
	Embedding  []byte  `gorm:"type:bytea" json:"-"` // raw little-endian float32

	Speaker *string `json:"speaker,omitempty"`
	Emotion *string `json:"emotion,omitempty"`
	Action  *string `json:"action,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// UploadVideoReq usecase upload request
type UploadVideoReq struct {
	UserID   uint
	Title    string
	FileName string
	MimeType string
	Size     int64
	TempPath string // spooled upload on local disk
}

// UploadVideoRes usecase upload response
type UploadVideoRes struct {
	VideoID uint   `json:"video_id"`
	Status  string `json:"status"`
}

// ClipMatch is one semantic search hit.
type ClipMatch struct {
	Clip  Clip    `json:"clip"`
	Score float64 `json:"score"`
}
