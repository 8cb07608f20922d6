package entities

// Note is a free-text note attached to a book and optionally to a chapter.
// IDs are assigned by the catalog server; locally created notes that were
// never acknowledged get an autoincrement ID.
type Note struct {
	ID        int    `gorm:"primaryKey" json:"id"`
	BookID    int    `gorm:"index;not null" json:"book_id"`
	Chapter   *int   `json:"chapter,omitempty"`
	Text      string `gorm:"type:text;not null" json:"text"`
	CreatedAt string `gorm:"size:32" json:"created_at"`
	UpdatedAt string `gorm:"size:32" json:"updated_at"`
}

func (Note) TableName() string {
	return "notes"
}
