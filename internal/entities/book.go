package entities

import "strings"

// TimestampLayout is the layout used for the string timestamps exchanged
// with the catalog server and stored in the local cache.
const TimestampLayout = "2006-01-02 15:04:05"

// Book is a catalog entry cached locally. The ID comes from the server.
// LocalFilePath is empty when the book has never been stored on this device.
type Book struct {
	ID            int    `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Title         string `gorm:"index;size:512;not null" json:"title"`
	Description   string `gorm:"type:text" json:"description,omitempty"`
	ChapterCount  int    `json:"chapter_count"`
	CoverURL      string `gorm:"size:2048" json:"cover_url,omitempty"`
	EpubURL       string `gorm:"size:2048" json:"epub_url,omitempty"`
	Language      string `gorm:"size:32" json:"language,omitempty"`
	Translator    string `gorm:"size:256" json:"translator,omitempty"`
	Status        string `gorm:"size:64" json:"status,omitempty"`
	DateAdded     string `gorm:"index;size:32" json:"date_added"`
	LocalFilePath string `gorm:"size:2048" json:"local_file_path,omitempty"`
	IsDownloaded  bool   `gorm:"not null" json:"is_downloaded"`
}

func (Book) TableName() string {
	return "books"
}

// HasLocalFile reports whether the cache claims a stored copy of the book.
func (b *Book) HasLocalFile() bool {
	return b.IsDownloaded && strings.TrimSpace(b.LocalFilePath) != ""
}

// Genre is a catalog genre with the server-reported number of books.
type Genre struct {
	Name  string `gorm:"primaryKey;size:255" json:"name"`
	Count int    `json:"count"`
}

func (Genre) TableName() string {
	return "genres"
}

// BookGenre links a book to one of its genres. Removing either side removes
// the link.
type BookGenre struct {
	BookID    int    `gorm:"primaryKey;autoIncrement:false" json:"book_id"`
	GenreName string `gorm:"primaryKey;size:255;index" json:"genre_name"`
	Book      Book   `gorm:"foreignKey:BookID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
	Genre     Genre  `gorm:"foreignKey:GenreName;references:Name;constraint:OnDelete:CASCADE" json:"-"`
}

func (BookGenre) TableName() string {
	return "book_genres"
}
