package entities

type ReaderTheme string

const (
	ReaderThemeLight ReaderTheme = "light"
	ReaderThemeDark  ReaderTheme = "dark"
	ReaderThemeSepia ReaderTheme = "sepia"
)

const (
	DefaultFontSize   = 16
	MinFontSize       = 12
	MaxFontSize       = 24
	DefaultBrightness = 0.5
)

// ParseReaderTheme maps a raw theme name to a known theme, defaulting to light.
func ParseReaderTheme(s string) ReaderTheme {
	switch ReaderTheme(s) {
	case ReaderThemeDark, ReaderThemeSepia:
		return ReaderTheme(s)
	default:
		return ReaderThemeLight
	}
}

// ReaderState holds per-book reader preferences.
type ReaderState struct {
	BookID       int         `gorm:"primaryKey;autoIncrement:false" json:"book_id"`
	LastLocation string      `gorm:"size:1024" json:"last_location,omitempty"`
	FontSize     int         `gorm:"not null" json:"font_size"`
	Theme        ReaderTheme `gorm:"size:16;not null" json:"theme"`
	Brightness   float64     `gorm:"not null" json:"brightness"`
}

func (ReaderState) TableName() string {
	return "reader_state"
}

// DefaultReaderState returns the preferences used before the user changes anything.
func DefaultReaderState(bookID int) ReaderState {
	return ReaderState{
		BookID:     bookID,
		FontSize:   DefaultFontSize,
		Theme:      ReaderThemeLight,
		Brightness: DefaultBrightness,
	}
}

// ReadingPosition is the last reading location within a book.
// LastReadTimestamp is in milliseconds since the Unix epoch.
type ReadingPosition struct {
	BookID            int     `gorm:"primaryKey;autoIncrement:false" json:"book_id"`
	ChapterIndex      int     `json:"chapter_index"`
	TextPosition      int     `json:"text_position"`
	ScrollPosition    float64 `json:"scroll_position"`
	TotalProgress     float64 `json:"total_progress"`
	LastReadTimestamp int64   `gorm:"index" json:"last_read_timestamp"`
}

func (ReadingPosition) TableName() string {
	return "reading_positions"
}
