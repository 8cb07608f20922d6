package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/mrlokans/booklibrary/internal/utils"
)

// EPUBMimeType is the media type of downloaded books.
const EPUBMimeType = "application/epub+zip"

// Download is an open EPUB transfer. The caller must close Body.
type Download struct {
	Body io.ReadCloser
	// ContentLength is -1 when the server did not announce a size.
	ContentLength int64
	ContentType   string
	// FileName is the decoded Content-Disposition name, empty when absent.
	FileName string
}

// DownloadEPUB starts streaming the EPUB file of a book. Only the response
// header wait is bounded; the body is read for as long as ctx allows.
func (c *Client) DownloadEPUB(ctx context.Context, id int) (*Download, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("api/books/"+strconv.Itoa(id)+"/download", nil), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", EPUBMimeType+", application/octet-stream")

	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to download book %d: %w", id, err)
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		if resp.Body != nil {
			resp.Body.Close()
		}
		return nil, fmt.Errorf("failed to download book %d: %w", id, ErrEmptyResponse)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = EPUBMimeType
	}

	return &Download{
		Body:          resp.Body,
		ContentLength: resp.ContentLength,
		ContentType:   contentType,
		FileName:      utils.FileNameFromContentDisposition(resp.Header.Get("Content-Disposition")),
	}, nil
}
