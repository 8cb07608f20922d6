package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mikestefanello/backlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/booklibrary/internal/tasks"
)

func newTasksEngine(q TaskQueue) *gin.Engine {
	tc := NewTasksController(q)
	r := gin.New()
	r.GET("/api/tasks/types", tc.ListTaskTypes)
	r.GET("/api/tasks/:id", tc.GetTaskStatus)
	r.POST("/api/tasks/:id/run", tc.RunTask)
	return r
}

func TestTasksController_ListTaskTypes(t *testing.T) {
	r := newTasksEngine(&fakeQueue{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/tasks/types", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	for _, typ := range []string{"refresh_catalog", "refresh_genres", "download_book"} {
		assert.Contains(t, w.Body.String(), typ)
	}
}

func TestTasksController_RunTask(t *testing.T) {
	q := &fakeQueue{}
	r := newTasksEngine(q)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, jsonRequest(http.MethodPost, "/api/tasks/download_book/run", `{"book_id":7}`))

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"task_id":"task-1"`)
	require.Len(t, q.enqueued, 1)
	assert.Equal(t, tasks.DownloadBookTask{BookID: 7}, q.enqueued[0])
}

func TestTasksController_RunTask_WithoutBody(t *testing.T) {
	q := &fakeQueue{}
	r := newTasksEngine(q)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/tasks/refresh_genres/run", nil))

	assert.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, q.enqueued, 1)
	assert.Equal(t, tasks.RefreshGenresTask{}, q.enqueued[0])
}

func TestTasksController_RunTask_Errors(t *testing.T) {
	tests := []struct {
		name string
		q    *fakeQueue
		req  *http.Request
		code int
	}{
		{"unknown type", &fakeQueue{}, httptest.NewRequest(http.MethodPost, "/api/tasks/reindex/run", nil), http.StatusNotFound},
		{"missing book", &fakeQueue{}, httptest.NewRequest(http.MethodPost, "/api/tasks/download_book/run", nil), http.StatusBadRequest},
		{"queue down", &fakeQueue{err: errQueueDown}, httptest.NewRequest(http.MethodPost, "/api/tasks/refresh_genres/run", nil), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			newTasksEngine(tt.q).ServeHTTP(w, tt.req)
			assert.Equal(t, tt.code, w.Code)
		})
	}
}

func TestTasksController_GetTaskStatus(t *testing.T) {
	r := newTasksEngine(&fakeQueue{status: backlite.TaskStatusRunning})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/tasks/abc", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"abc","status":"running"}`, w.Body.String())
}
