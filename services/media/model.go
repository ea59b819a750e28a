package media

import (
	"context"
	"math/rand"
	"time"

	"gorm.io/gorm"
)

// BackgroundMusic is an operator-curated audio track for generated videos.
type BackgroundMusic struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Title     string    `gorm:"column:title;not null"`
	FilePath  string    `gorm:"column:file_path;not null"`
	IsActive  bool      `gorm:"column:is_active;default:true;index"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (BackgroundMusic) TableName() string { return "background_music" }

// PickTrack selects a random active track. A nil result with nil error
// means no track is configured; the generator degrades to a silent bed.
func PickTrack(ctx context.Context, db *gorm.DB) (*BackgroundMusic, error) {
	var tracks []BackgroundMusic
	if err := db.WithContext(ctx).
		Where("is_active = ?", true).
		Find(&tracks).Error; err != nil {
		return nil, err
	}
	if len(tracks) == 0 {
		return nil, nil
	}
	return &tracks[rand.Intn(len(tracks))], nil
}
