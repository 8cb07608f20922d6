package downloads

// Progress is one download event for a book. Loading, Complete and a
// non-empty Error are mutually exclusive.
type Progress struct {
	BookID int `json:"book_id"`
	// Fraction is in [0, 1]; zero while Indeterminate.
	Fraction      float64 `json:"progress"`
	Indeterminate bool    `json:"indeterminate,omitempty"`
	BytesWritten  int64   `json:"bytes_written,omitempty"`
	TotalBytes    int64   `json:"total_bytes,omitempty"`

	Loading           bool   `json:"is_loading"`
	Complete          bool   `json:"is_complete"`
	Error             string `json:"error,omitempty"`
	Location          string `json:"file_path,omitempty"`
	AlreadyDownloaded bool   `json:"was_already_downloaded,omitempty"`
}

// Failed reports whether the event ends the download with an error.
func (p Progress) Failed() bool {
	return p.Error != ""
}

// Finished reports whether no more events follow for this download.
func (p Progress) Finished() bool {
	return p.Complete || p.Failed()
}

func chunkProgress(bookID int, written, total int64, location string) Progress {
	p := Progress{
		BookID:       bookID,
		Loading:      true,
		Location:     location,
		BytesWritten: written,
		TotalBytes:   total,
	}
	if total > 0 {
		p.Fraction = fraction(written, total)
	} else {
		p.Indeterminate = true
	}
	return p
}

func fraction(written, total int64) float64 {
	if total <= 0 || written <= 0 {
		return 0
	}
	f := float64(written) / float64(total)
	if f > 1 {
		return 1
	}
	return f
}
