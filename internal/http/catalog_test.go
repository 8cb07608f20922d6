package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/booklibrary/internal/presentation"
)

func decodeSnapshot(t *testing.T, w *httptest.ResponseRecorder) presentation.Snapshot {
	t.Helper()
	var snap presentation.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	return snap
}

func TestCatalogController_GetSnapshot(t *testing.T) {
	srv := newTestServer(t)

	w := httptest.NewRecorder()
	srv.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/catalog", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	snap := decodeSnapshot(t, w)
	assert.False(t, snap.Refreshing)
	assert.Len(t, snap.Books, 2)
	assert.Len(t, snap.Genres, 2)
	assert.False(t, snap.ShowLoadFromAPI)
}

func TestCatalogController_SetKey(t *testing.T) {
	srv := newTestServer(t)

	body := `{"query":"  Dune ","sort":"bogus","order":"asc"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/catalog/query", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	srv.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	snap := decodeSnapshot(t, w)
	assert.Equal(t, "Dune", snap.Key.Query)
	assert.Equal(t, presentation.DefaultKey().Sort, snap.Key.Sort)
	require.Len(t, snap.Books, 1)
	assert.Equal(t, "Dune", snap.Books[0].Title)
}

func TestCatalogController_SetKey_InvalidBody(t *testing.T) {
	srv := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/catalog/query", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	srv.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCatalogController_RefreshAndLoad(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/api/catalog/refresh", "/api/catalog/load"} {
		w := httptest.NewRecorder()
		srv.engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, nil))

		assert.Equal(t, http.StatusOK, w.Code, path)
		snap := decodeSnapshot(t, w)
		assert.False(t, snap.Refreshing)
		assert.Empty(t, snap.Error)
	}
	assert.Equal(t, 2, srv.store.refreshCalls)
}

func TestCatalogController_BookAction_Downloads(t *testing.T) {
	srv := newTestServer(t)

	w := httptest.NewRecorder()
	srv.engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/books/1/action", nil))
	assert.Equal(t, http.StatusAccepted, w.Code)

	catalog := srv.screen().Catalog
	catalog.Wait()

	assert.Equal(t, []int{1}, srv.store.downloadCalls)
	snap := catalog.Snapshot()
	require.Contains(t, snap.DownloadProgress, 1)
	assert.True(t, snap.DownloadProgress[1].Complete)
	assert.Equal(t, "/downloads/book_1.epub", snap.DownloadProgress[1].Location)
}

func TestCatalogController_BookAction_OpensStoredBook(t *testing.T) {
	srv := newTestServer(t)
	srv.store.books[2].IsDownloaded = true
	srv.store.books[2].LocalFilePath = "/downloads/book_2.epub"

	catalog := srv.screen().Catalog
	catalog.Refresh(context.Background())

	w := httptest.NewRecorder()
	srv.engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/books/2/action", nil))
	assert.Equal(t, http.StatusAccepted, w.Code)

	select {
	case path := <-catalog.OpenFileEvents():
		assert.Equal(t, "/downloads/book_2.epub", path)
	default:
		t.Fatal("expected an open_file event")
	}
	assert.Empty(t, srv.store.downloadCalls)
}

func TestCatalogController_InvalidID(t *testing.T) {
	srv := newTestServer(t)

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodPost, "/api/books/abc/action", nil),
		httptest.NewRequest(http.MethodDelete, "/api/books/0/download", nil),
		httptest.NewRequest(http.MethodPost, "/api/books/-3/bookmark/toggle", nil),
	} {
		w := httptest.NewRecorder()
		srv.engine.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, req.URL.Path)
	}
}

func TestCatalogController_ToggleBookmark(t *testing.T) {
	srv := newTestServer(t)

	w := httptest.NewRecorder()
	srv.engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/books/1/bookmark/toggle", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, srv.store.bookmarks, 1)

	w = httptest.NewRecorder()
	srv.engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/books/1/bookmark/toggle", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, srv.store.bookmarks, 1)
}

func TestCatalogController_CancelDownload_NoDownload(t *testing.T) {
	srv := newTestServer(t)

	w := httptest.NewRecorder()
	srv.engine.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/books/1/download", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "download cancelled")
}

func TestCatalogController_ClearError(t *testing.T) {
	srv := newTestServer(t)

	w := httptest.NewRecorder()
	srv.engine.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/catalog/error", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeSnapshot(t, w).Error)
}
