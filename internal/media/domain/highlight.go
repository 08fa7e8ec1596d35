package domain

import "time"

// HighlightStatus definition highlight status
type HighlightStatus string

const (
	// HighlightPending waiting for a render worker
	HighlightPending HighlightStatus = "pending"
	// HighlightProcessing render in progress
	HighlightProcessing HighlightStatus = "processing"
	// HighlightReady output file available
	HighlightReady HighlightStatus = "ready"
	// HighlightFailed render aborted
	HighlightFailed HighlightStatus = "failed"
)

// Highlight is a user-composed, ordered sequence of clip references
// rendered into one output video.
type Highlight struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index" json:"user_id"`
	Name      string    `json:"name"`
	Status    string    `gorm:"index" json:"status"`
	OutputKey *string   `json:"output_key,omitempty"` // rendered file in object storage
	CreatedAt time.Time `json:"created_at"`

	Clips []HighlightClip `gorm:"constraint:OnDelete:CASCADE" json:"clips"`
}

// HighlightClip is one ordered entry of a highlight. It points either
// at a persisted Clip or directly at a Video time range; order is the
// explicit Position column, not insertion order.
type HighlightClip struct {
	ID          uint `gorm:"primaryKey" json:"id"`
	HighlightID uint `gorm:"index;not null" json:"highlight_id"`
	Position    int  `gorm:"not null" json:"position"`

	ClipID    *uint   `json:"clip_id,omitempty"`
	VideoID   *uint   `json:"video_id,omitempty"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}
