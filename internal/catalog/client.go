package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultReadTimeout    = 30 * time.Second
	defaultWriteTimeout   = 30 * time.Second

	maxErrorBodySize = 4 << 10
)

// Client talks to the remote catalog server. Every call is a single attempt:
// there are no retries and no backoff.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	limiter    *rate.Limiter

	// requestTimeout bounds non-streaming calls end to end.
	requestTimeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeouts sets the connect, read and write timeouts.
func WithTimeouts(connect, read, write time.Duration) Option {
	return func(c *Client) {
		c.httpClient = newHTTPClient(connect, read)
		c.requestTimeout = connect + read + write
	}
}

// WithRateLimit caps the request rate to the server. Zero disables the limit.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// NewClient creates a catalog client for the server at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid catalog base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid catalog base URL %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		baseURL:        u,
		httpClient:     newHTTPClient(defaultConnectTimeout, defaultReadTimeout),
		requestTimeout: defaultConnectTimeout + defaultReadTimeout + defaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the server root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// newHTTPClient has no overall timeout so that downloads can stream for as
// long as bytes keep arriving; JSON calls get a per-request deadline instead.
func newHTTPClient(connect, read time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   connect,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.TLSHandshakeTimeout = connect
	transport.ResponseHeaderTimeout = read
	return &http.Client{Transport: transport}
}

// ListParams selects a page of the server's book listing.
type ListParams struct {
	Query          string
	Genre          string
	Sort           string
	Order          string
	BookmarkStatus string
	Page           int
	Limit          int
}

func (p ListParams) values() url.Values {
	q := url.Values{}
	if p.Query != "" {
		q.Set("q", p.Query)
	}
	if p.Genre != "" {
		q.Set("genre", p.Genre)
	}
	sort := p.Sort
	if sort == "" {
		sort = "date_added"
	}
	q.Set("sort", sort)
	order := p.Order
	if order == "" {
		order = "desc"
	}
	q.Set("order", order)
	if p.BookmarkStatus != "" {
		q.Set("bookmark_status", p.BookmarkStatus)
	}
	if p.Page > 0 {
		q.Set("page", strconv.Itoa(p.Page))
	}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	return q
}

// ListBooks fetches one page of the book listing.
func (c *Client) ListBooks(ctx context.Context, params ListParams) (*BookPage, error) {
	var page BookPage
	if err := c.getJSON(ctx, "api/books", params.values(), &page); err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	return &page, nil
}

// GetBook fetches a single book. Missing books yield an error matching ErrNotFound.
func (c *Client) GetBook(ctx context.Context, id int) (*BookDTO, error) {
	var book BookDTO
	if err := c.getJSON(ctx, "api/books/"+strconv.Itoa(id), nil, &book); err != nil {
		return nil, fmt.Errorf("failed to get book %d: %w", id, err)
	}
	return &book, nil
}

// ListGenres fetches every genre with its book count.
func (c *Client) ListGenres(ctx context.Context) ([]GenreDTO, error) {
	var genres []GenreDTO
	if err := c.getJSON(ctx, "api/genres", nil, &genres); err != nil {
		return nil, fmt.Errorf("failed to list genres: %w", err)
	}
	return genres, nil
}

// CreateBookmark sets the user's bookmark on the server.
func (c *Client) CreateBookmark(ctx context.Context, req CreateBookmarkRequest) error {
	if err := c.sendJSON(ctx, http.MethodPost, "api/bookmarks", req, nil); err != nil {
		return fmt.Errorf("failed to create bookmark for book %d: %w", req.BookID, err)
	}
	return nil
}

// DeleteBookmark removes the user's bookmark. The server expects the book ID
// in the request body.
func (c *Client) DeleteBookmark(ctx context.Context, bookID int) error {
	if err := c.sendJSON(ctx, http.MethodDelete, "api/bookmarks", DeleteBookmarkRequest{BookID: bookID}, nil); err != nil {
		return fmt.Errorf("failed to delete bookmark for book %d: %w", bookID, err)
	}
	return nil
}

// NoteFilter selects notes. Chapter is optional.
type NoteFilter struct {
	BookID  int
	Chapter *int
}

// ListNotes fetches the notes of a book.
func (c *Client) ListNotes(ctx context.Context, filter NoteFilter) ([]NoteDTO, error) {
	q := url.Values{}
	q.Set("book_id", strconv.Itoa(filter.BookID))
	if filter.Chapter != nil {
		q.Set("chapter", strconv.Itoa(*filter.Chapter))
	}
	var notes []NoteDTO
	if err := c.getJSON(ctx, "api/notes", q, &notes); err != nil {
		return nil, fmt.Errorf("failed to list notes of book %d: %w", filter.BookID, err)
	}
	return notes, nil
}

// CreateNote stores a new note and returns it as saved by the server.
func (c *Client) CreateNote(ctx context.Context, req CreateNoteRequest) (*NoteDTO, error) {
	var note NoteDTO
	if err := c.sendJSON(ctx, http.MethodPost, "api/notes", req, &note); err != nil {
		return nil, fmt.Errorf("failed to create note for book %d: %w", req.BookID, err)
	}
	return &note, nil
}

// UpdateNote replaces the text of a note.
func (c *Client) UpdateNote(ctx context.Context, id int, text string) (*NoteDTO, error) {
	var note NoteDTO
	if err := c.sendJSON(ctx, http.MethodPut, "api/notes/"+strconv.Itoa(id), UpdateNoteRequest{Text: text}, &note); err != nil {
		return nil, fmt.Errorf("failed to update note %d: %w", id, err)
	}
	return &note, nil
}

// DeleteNote removes a note.
func (c *Client) DeleteNote(ctx context.Context, id int) error {
	if err := c.sendJSON(ctx, http.MethodDelete, "api/notes/"+strconv.Itoa(id), nil, nil); err != nil {
		return fmt.Errorf("failed to delete note %d: %w", id, err)
	}
	return nil
}

// DebugBooks returns the raw debug listing of the server.
func (c *Client) DebugBooks(ctx context.Context) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, "api/debug/books", nil, &raw); err != nil {
		return nil, fmt.Errorf("failed to fetch debug listing: %w", err)
	}
	return raw, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := c.baseURL.ResolveReference(&url.URL{Path: path})
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, query), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ErrEmptyResponse
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// sendJSON performs a mutating call and unwraps the {success, message, data}
// envelope into out when it is non-nil.
func (c *Client) sendJSON(ctx context.Context, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, nil), reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}

	var envelope APIResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if !envelope.Success {
		return &APIError{Message: envelope.Message}
	}
	if out != nil && len(envelope.Data) > 0 && string(envelope.Data) != "null" {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}
	return nil
}
