package repository

import (
	"video_clip_service/internal/media/domain"

	"gorm.io/gorm"
)

// HighlightRepo definition highlight persistence operations
type HighlightRepo interface {
	// CreateWithClips writes the highlight and its ordered clip rows in
	// one transaction; a highlight is never visible without its clips.
	CreateWithClips(h *domain.Highlight, clips []domain.HighlightClip) error
	GetByID(id uint) (*domain.Highlight, error)
	UpdateStatus(id uint, status domain.HighlightStatus) error
	SetOutput(id uint, objectKey string) error
}

type highlightRepo struct {
	db *gorm.DB
}

// NewHighlightRepo create HighlightRepo
func NewHighlightRepo(db *gorm.DB) HighlightRepo {
	return &highlightRepo{db: db}
}

func (r *highlightRepo) CreateWithClips(h *domain.Highlight, clips []domain.HighlightClip) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(h).Error; err != nil {
			return err
		}
		for i := range clips {
			clips[i].HighlightID = h.ID
		}
		if len(clips) > 0 {
			if err := tx.Create(&clips).Error; err != nil {
				return err
			}
		}
		h.Clips = clips
		return nil
	})
}

func (r *highlightRepo) GetByID(id uint) (*domain.Highlight, error) {
	var h domain.Highlight
	if err := r.db.Preload("Clips", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).First(&h, id).Error; err != nil {
		return nil, err
	}
	return &h, nil
}

func (r *highlightRepo) UpdateStatus(id uint, status domain.HighlightStatus) error {
	return r.db.Model(&domain.Highlight{}).Where("id = ?", id).Update("status", string(status)).Error
}

func (r *highlightRepo) SetOutput(id uint, objectKey string) error {
	return r.db.Model(&domain.Highlight{}).Where("id = ?", id).Updates(map[string]interface{}{
		"output_key": objectKey,
		"status":     string(domain.HighlightReady),
	}).Error
}
