package repository

import (
	"video_clip_service/internal/media/domain"

	"gorm.io/gorm"
)

// VideoRepo definition video persistence operations. All mutations are
// single-row, filtered-by-id updates: the queue may interleave videos
// arbitrarily, so nothing here assumes exclusive global access.
type VideoRepo interface {
	AutoMigrate() error
	Create(video *domain.Video) error
	GetByID(id uint) (*domain.Video, error)
	List(userID uint, limit, offset int) ([]domain.Video, error)
	UpdateFields(id uint, fields map[string]interface{}) error
	UpdateStatus(id uint, status domain.VideoStatus) error
	// UpdateStatusIf performs a compare-and-swap transition and reports
	// whether the row actually moved from `from` to `to`.
	UpdateStatusIf(id uint, from, to domain.VideoStatus) (bool, error)
	Delete(id uint) error
}

type videoRepo struct {
	db *gorm.DB
}

// NewVideoRepo create VideoRepo
func NewVideoRepo(db *gorm.DB) VideoRepo {
	return &videoRepo{db: db}
}

func (r *videoRepo) AutoMigrate() error {
	return r.db.AutoMigrate(&domain.Video{}, &domain.Clip{}, &domain.Highlight{}, &domain.HighlightClip{})
}

func (r *videoRepo) Create(video *domain.Video) error {
	return r.db.Create(video).Error
}

func (r *videoRepo) GetByID(id uint) (*domain.Video, error) {
	var v domain.Video
	if err := r.db.First(&v, id).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *videoRepo) List(userID uint, limit, offset int) ([]domain.Video, error) {
	var videos []domain.Video
	q := r.db.Order("created_at DESC").Limit(limit).Offset(offset)
	if userID != 0 {
		q = q.Where("user_id = ?", userID)
	}
	if err := q.Find(&videos).Error; err != nil {
		return nil, err
	}
	return videos, nil
}

// UpdateFields updates only the named columns of one row.
func (r *videoRepo) UpdateFields(id uint, fields map[string]interface{}) error {
	return r.db.Model(&domain.Video{}).Where("id = ?", id).Updates(fields).Error
}

func (r *videoRepo) UpdateStatus(id uint, status domain.VideoStatus) error {
	return r.db.Model(&domain.Video{}).Where("id = ?", id).Update("status", string(status)).Error
}

func (r *videoRepo) UpdateStatusIf(id uint, from, to domain.VideoStatus) (bool, error) {
	res := r.db.Model(&domain.Video{}).
		Where("id = ? AND status = ?", id, string(from)).
		Update("status", string(to))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Delete removes the video; clips cascade via the foreign key.
func (r *videoRepo) Delete(id uint) error {
	return r.db.Select("Clips").Delete(&domain.Video{ID: id}).Error
}
