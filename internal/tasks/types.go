package tasks

import (
	"errors"
	"fmt"

	"github.com/mikestefanello/backlite"
)

// TypeInfo describes a task type that can be triggered manually.
type TypeInfo struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Queue       string `json:"queue"`
}

// Types lists the task types that can be triggered manually.
func Types() []TypeInfo {
	return []TypeInfo{
		{
			Type:        "refresh_catalog",
			Description: "Reconcile cached books with the catalog server",
			Queue:       RefreshCatalogTask{}.Config().Name,
		},
		{
			Type:        "refresh_genres",
			Description: "Replace the cached genre list",
			Queue:       RefreshGenresTask{}.Config().Name,
		},
		{
			Type:        "download_book",
			Description: "Download a book's EPUB to local storage",
			Queue:       DownloadBookTask{}.Config().Name,
		},
	}
}

// Params are the inputs of a manually triggered task.
type Params struct {
	BookID         int    `json:"book_id,omitempty" form:"book_id"`
	Query          string `json:"query,omitempty" form:"query"`
	Genre          string `json:"genre,omitempty" form:"genre"`
	BookmarkStatus string `json:"bookmark_status,omitempty" form:"bookmark_status"`
	Sort           string `json:"sort,omitempty" form:"sort"`
	Order          string `json:"order,omitempty" form:"order"`
}

// ErrUnknownType is returned by NewTask for a type not listed by Types.
var ErrUnknownType = errors.New("unknown task type")

// NewTask builds the task of the given type.
func NewTask(taskType string, p Params) (backlite.Task, error) {
	switch taskType {
	case "refresh_catalog":
		return RefreshCatalogTask{
			Query:          p.Query,
			Genre:          p.Genre,
			BookmarkStatus: p.BookmarkStatus,
			Sort:           p.Sort,
			Order:          p.Order,
		}, nil
	case "refresh_genres":
		return RefreshGenresTask{}, nil
	case "download_book":
		if p.BookID <= 0 {
			return nil, fmt.Errorf("book_id is required for download_book task")
		}
		return DownloadBookTask{BookID: p.BookID}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, taskType)
	}
}
