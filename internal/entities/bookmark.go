package entities

import "strings"

type BookmarkStatus string

const (
	BookmarkStatusReading  BookmarkStatus = "reading"
	BookmarkStatusPaused   BookmarkStatus = "paused"
	BookmarkStatusFinished BookmarkStatus = "finished"
)

// ParseBookmarkStatus maps a raw status to a known value, defaulting to reading.
func ParseBookmarkStatus(s string) BookmarkStatus {
	switch BookmarkStatus(strings.ToLower(strings.TrimSpace(s))) {
	case BookmarkStatusPaused:
		return BookmarkStatusPaused
	case BookmarkStatusFinished:
		return BookmarkStatusFinished
	default:
		return BookmarkStatusReading
	}
}

// Bookmark is the user's reading status for a book. At most one per book.
type Bookmark struct {
	BookID         int            `gorm:"primaryKey;autoIncrement:false" json:"book_id"`
	Status         BookmarkStatus `gorm:"size:20;index;not null" json:"status"`
	CurrentChapter int            `json:"current_chapter"`
	LastUpdated    string         `gorm:"size:32" json:"last_updated"`
}

func (Bookmark) TableName() string {
	return "bookmarks"
}
