package repository

import (
	"video_clip_service/internal/media/domain"

	"gorm.io/gorm"
)

// ClipRepo definition clip persistence operations
type ClipRepo interface {
	CreateBatch(clips []domain.Clip) error
	GetByID(id uint) (*domain.Clip, error)
	FindByVideo(videoID uint) ([]domain.Clip, error)
	ListByVideo(videoID uint, limit, offset int) ([]domain.Clip, error)
	CountByVideo(videoID uint) (int64, error)
	UpdateTranscript(id uint, transcript string) error
	UpdateEmbedding(id uint, embedding []byte) error
	// CountPendingEmbeddings counts clips of the video that still lack
	// an embedding but have a non-empty transcript to embed. Zero means
	// the embedding stage is complete.
	CountPendingEmbeddings(videoID uint) (int64, error)
	FindEmbedded(limit int) ([]domain.Clip, error)
}

type clipRepo struct {
	db *gorm.DB
}

// NewClipRepo create ClipRepo
func NewClipRepo(db *gorm.DB) ClipRepo {
	return &clipRepo{db: db}
}

func (r *clipRepo) CreateBatch(clips []domain.Clip) error {
	if len(clips) == 0 {
		return nil
	}
	return r.db.Create(&clips).Error
}

func (r *clipRepo) GetByID(id uint) (*domain.Clip, error) {
	var c domain.Clip
	if err := r.db.First(&c, id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *clipRepo) FindByVideo(videoID uint) ([]domain.Clip, error) {
	var clips []domain.Clip
	if err := r.db.Where("video_id = ?", videoID).Order("start_time ASC").Find(&clips).Error; err != nil {
		return nil, err
	}
	return clips, nil
}

func (r *clipRepo) ListByVideo(videoID uint, limit, offset int) ([]domain.Clip, error) {
	var clips []domain.Clip
	if err := r.db.Where("video_id = ?", videoID).
		Order("start_time ASC").Limit(limit).Offset(offset).
		Find(&clips).Error; err != nil {
		return nil, err
	}
	return clips, nil
}

func (r *clipRepo) CountByVideo(videoID uint) (int64, error) {
	var n int64
	err := r.db.Model(&domain.Clip{}).Where("video_id = ?", videoID).Count(&n).Error
	return n, err
}

func (r *clipRepo) UpdateTranscript(id uint, transcript string) error {
	return r.db.Model(&domain.Clip{}).Where("id = ?", id).Update("transcript", transcript).Error
}

func (r *clipRepo) UpdateEmbedding(id uint, embedding []byte) error {
	return r.db.Model(&domain.Clip{}).Where("id = ?", id).Update("embedding", embedding).Error
}

func (r *clipRepo) CountPendingEmbeddings(videoID uint) (int64, error) {
	var n int64
	err := r.db.Model(&domain.Clip{}).
		Where("video_id = ? AND embedding IS NULL AND transcript IS NOT NULL AND transcript <> ''", videoID).
		Count(&n).Error
	return n, err
}

// FindEmbedded returns clips with an embedding; similarity is computed
// by the caller after decoding the vector bytes.
func (r *clipRepo) FindEmbedded(limit int) ([]domain.Clip, error) {
	var clips []domain.Clip
	if err := r.db.Where("embedding IS NOT NULL").Limit(limit).Find(&clips).Error; err != nil {
		return nil, err
	}
	return clips, nil
}
