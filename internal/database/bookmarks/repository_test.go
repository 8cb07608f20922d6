package bookmarks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/booklibrary/internal/entities"
)

func TestRepository_GetBookmark_Missing(t *testing.T) {
	repo := setupTestDB(t)

	bookmark, err := repo.GetBookmark(1)

	require.NoError(t, err)
	assert.Nil(t, bookmark)
}

func TestRepository_UpsertBookmark(t *testing.T) {
	repo := setupTestDB(t)

	require.NoError(t, repo.UpsertBookmark(&entities.Bookmark{
		BookID: 1, Status: entities.BookmarkStatusReading, CurrentChapter: 1, LastUpdated: "2024-01-01 10:00:00",
	}))
	require.NoError(t, repo.UpsertBookmark(&entities.Bookmark{
		BookID: 1, Status: entities.BookmarkStatusPaused, CurrentChapter: 4, LastUpdated: "2024-01-02 10:00:00",
	}))

	bookmark, err := repo.GetBookmark(1)
	require.NoError(t, err)
	require.NotNil(t, bookmark)
	assert.Equal(t, entities.BookmarkStatusPaused, bookmark.Status)
	assert.Equal(t, 4, bookmark.CurrentChapter)

	all, err := repo.ListBookmarks()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRepository_ListBookmarksByStatus(t *testing.T) {
	repo := setupTestDB(t)
	require.NoError(t, repo.UpsertBookmark(&entities.Bookmark{BookID: 1, Status: entities.BookmarkStatusReading, LastUpdated: "2024-01-01 10:00:00"}))
	require.NoError(t, repo.UpsertBookmark(&entities.Bookmark{BookID: 2, Status: entities.BookmarkStatusFinished, LastUpdated: "2024-01-03 10:00:00"}))
	require.NoError(t, repo.UpsertBookmark(&entities.Bookmark{BookID: 3, Status: entities.BookmarkStatusReading, LastUpdated: "2024-01-05 10:00:00"}))

	reading, err := repo.ListBookmarksByStatus(entities.BookmarkStatusReading)
	require.NoError(t, err)
	require.Len(t, reading, 2)
	assert.Equal(t, 3, reading[0].BookID)
	assert.Equal(t, 1, reading[1].BookID)

	byBook, err := repo.GetBookmarksForBooks([]int{1, 2, 9})
	require.NoError(t, err)
	assert.Len(t, byBook, 2)
	assert.Equal(t, entities.BookmarkStatusFinished, byBook[2].Status)
}

func TestRepository_DeleteBookmark(t *testing.T) {
	repo := setupTestDB(t)
	require.NoError(t, repo.UpsertBookmark(&entities.Bookmark{BookID: 1, Status: entities.BookmarkStatusReading}))

	require.NoError(t, repo.DeleteBookmark(1))
	require.NoError(t, repo.DeleteBookmark(1))

	bookmark, err := repo.GetBookmark(1)
	require.NoError(t, err)
	assert.Nil(t, bookmark)
}

func TestParseBookmarkStatus(t *testing.T) {
	assert.Equal(t, entities.BookmarkStatusPaused, entities.ParseBookmarkStatus("PAUSED"))
	assert.Equal(t, entities.BookmarkStatusFinished, entities.ParseBookmarkStatus(" finished "))
	assert.Equal(t, entities.BookmarkStatusReading, entities.ParseBookmarkStatus("unknown"))
	assert.Equal(t, entities.BookmarkStatusReading, entities.ParseBookmarkStatus(""))
}
