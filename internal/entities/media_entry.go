package entities

import "time"

// MediaEntry is a row of the local media index: a stored file addressed by
// a content URI rather than a filesystem path.
type MediaEntry struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	RelativePath string    `gorm:"index:idx_media_location;size:512;not null" json:"relative_path"`
	DisplayName  string    `gorm:"index:idx_media_location;size:512;not null" json:"display_name"`
	MimeType     string    `gorm:"size:128" json:"mime_type"`
	Size         int64     `json:"size"`
	Checksum     string    `gorm:"size:64" json:"checksum,omitempty"`
	DataPath     string    `gorm:"size:2048;not null" json:"-"`
	Pending      bool      `gorm:"not null" json:"pending"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (MediaEntry) TableName() string {
	return "media_entries"
}
