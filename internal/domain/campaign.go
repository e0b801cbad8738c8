package domain

import "time"

// Campaign groups the posts promoting one song.
type Campaign struct {
	ID         string `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name       string `gorm:"type:varchar(255);not null" json:"name"`
	SongTitle  string `gorm:"type:varchar(255)" json:"song_title"`
	SongArtist string `gorm:"type:varchar(255)" json:"song_artist"`
	Status     string `gorm:"type:varchar(32);default:pending" json:"status"`

	ShareEnabled      bool    `gorm:"default:false" json:"share_enabled"`
	ShareSlug         *string `gorm:"type:varchar(64);uniqueIndex:idx_campaigns_share_slug" json:"share_slug,omitempty"`
	SharePasswordHash string  `gorm:"type:varchar(255)" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Campaign.
func (Campaign) TableName() string {
	return "campaigns"
}
