package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/booklibrary/internal/entities"
	"github.com/mrlokans/booklibrary/internal/reconcile"
)

// SyncProgressSource reads the recorded progress of the latest catalog sync.
type SyncProgressSource interface {
	GetSyncProgress() (*entities.SyncProgress, error)
}

// SyncScheduler is the periodic catalog sync.
type SyncScheduler interface {
	IsRunning() bool
	IsSyncing() bool
	GetNextRunTime() *time.Time
	LastResult() *reconcile.Result
	RunNow()
}

type SyncController struct {
	progress  SyncProgressSource
	scheduler SyncScheduler
}

// NewSyncController creates a SyncController. The scheduler may be nil when
// periodic sync is disabled.
func NewSyncController(progress SyncProgressSource, scheduler SyncScheduler) *SyncController {
	return &SyncController{progress: progress, scheduler: scheduler}
}

// SyncStatusResponse combines the recorded progress with the scheduler state.
type SyncStatusResponse struct {
	Progress   *entities.SyncProgress `json:"progress,omitempty"`
	Scheduled  bool                   `json:"scheduled"`
	Syncing    bool                   `json:"syncing"`
	NextRun    *time.Time             `json:"next_run,omitempty"`
	LastResult *reconcile.Result      `json:"last_result,omitempty"`
}

// GetStatus handles GET /api/sync/status
func (sc *SyncController) GetStatus(c *gin.Context) {
	var resp SyncStatusResponse

	if sc.progress != nil {
		progress, err := sc.progress.GetSyncProgress()
		if err != nil {
			respondInternalError(c, err, "sync status")
			return
		}
		resp.Progress = progress
	}

	if sc.scheduler != nil {
		resp.Scheduled = sc.scheduler.IsRunning()
		resp.Syncing = sc.scheduler.IsSyncing()
		resp.NextRun = sc.scheduler.GetNextRunTime()
		resp.LastResult = sc.scheduler.LastResult()
	}

	c.JSON(http.StatusOK, resp)
}

// RunNow handles POST /api/sync/run
func (sc *SyncController) RunNow(c *gin.Context) {
	if sc.scheduler == nil {
		respondError(c, http.StatusServiceUnavailable, "sync scheduler not configured")
		return
	}
	if sc.scheduler.IsSyncing() {
		respondError(c, http.StatusConflict, "sync already running")
		return
	}

	sc.scheduler.RunNow()
	respondAccepted(c, "sync started", nil)
}
