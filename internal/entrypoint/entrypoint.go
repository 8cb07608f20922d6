package entrypoint

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/booklibrary/internal/config"
	http_controllers "github.com/mrlokans/booklibrary/internal/http"
	"github.com/mrlokans/booklibrary/internal/scheduler"
	"github.com/mrlokans/booklibrary/internal/sessions"
	"github.com/mrlokans/booklibrary/internal/tasks"
)

const (
	// screenIdleTimeout is how long an unused session keeps its screen state.
	screenIdleTimeout = 30 * time.Minute
	screenSweepEvery  = 5 * time.Minute
)

// ShutdownFunc is called during graceful shutdown to clean up resources.
type ShutdownFunc func(ctx context.Context)

func Serve(router *gin.Engine, cfg *config.Config, onShutdown ShutdownFunc) {
	timeout := time.Duration(cfg.Global.ShutdownTimeoutInSeconds) * time.Second

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler: router,
	}

	go func() {
		fmt.Printf("Starting server at %s:%d\n", cfg.HTTP.Host, cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// Wait for SIGINT or SIGTERM, then shut down within the configured timeout
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("Shutdown Server, waiting %v before killing\n", timeout)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Stop background work first so no task writes to a closing database
	if onShutdown != nil {
		onShutdown(ctx)
	}

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}

	log.Println("Server exiting")
}

func Run(cfg *config.Config, version string) {
	log.Printf("Starting Book Library v%s", version)

	app, err := NewApp(cfg)
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	// Per-session screen state, dropped after a period without requests
	screens := sessions.NewScreens(app.Library, screenIdleTimeout)
	go screens.Run(bgCtx, screenSweepEvery)

	// Initialize task queue if enabled
	var taskClient *tasks.Client
	if cfg.Tasks.Enabled {
		taskCfg := tasks.Config{
			Workers:           cfg.Tasks.Workers,
			MaxRetries:        cfg.Tasks.MaxRetries,
			RetryDelay:        cfg.Tasks.RetryDelay,
			TaskTimeout:       cfg.Tasks.TaskTimeout,
			ReleaseAfter:      cfg.Tasks.ReleaseAfter,
			CleanupInterval:   cfg.Tasks.CleanupInterval,
			RetentionDuration: cfg.Tasks.RetentionDuration,
		}

		taskClient, err = tasks.NewClient(cfg.Database.Path, taskCfg)
		if err != nil {
			log.Fatalf("Failed to initialize task queue: %v", err)
		}
		defer func() {
			if err := taskClient.Close(); err != nil {
				log.Printf("Error closing task client: %v", err)
			}
		}()

		taskClient.Register(
			tasks.NewRefreshCatalogQueue(app.Reconciler),
			tasks.NewRefreshGenresQueue(app.Reconciler),
			tasks.NewDownloadBookQueue(app.Downloads),
		)

		go taskClient.Start(bgCtx)
	}

	// Initialize periodic catalog sync if enabled
	var syncScheduler *scheduler.CatalogSyncScheduler
	if cfg.Sync.Enabled {
		syncScheduler = scheduler.NewCatalogSyncScheduler(app.Reconciler, cfg.Sync.Schedule)
		if err := syncScheduler.Start(bgCtx); err != nil {
			log.Fatalf("Failed to start catalog sync scheduler: %v", err)
		}
	} else {
		log.Printf("Catalog sync scheduler disabled (set SYNC_ENABLED=true to enable)")
	}

	// Sessions give every client its own screen state
	sqlDB, err := app.Database.DB.DB()
	if err != nil {
		log.Fatalf("Failed to get SQL DB for sessions: %v", err)
	}
	sessionManager, err := sessions.NewManager(sqlDB, cfg.Session.Lifetime, cfg.Session.SecureCookies)
	if err != nil {
		log.Fatalf("Failed to initialize session manager: %v", err)
	}

	var csrfSecret []byte
	if cfg.Session.CSRFSecret != "" {
		csrfSecret, err = hex.DecodeString(cfg.Session.CSRFSecret)
		if err != nil {
			// Not hex, use as raw bytes
			csrfSecret = []byte(cfg.Session.CSRFSecret)
		}
	} else {
		log.Printf("CSRF protection disabled (set CSRF_SECRET to enable)")
	}

	routerCfg := http_controllers.RouterConfig{
		Library:       app.Library,
		Screens:       screens,
		Sessions:      sessionManager,
		CSRFSecret:    csrfSecret,
		SecureCookies: cfg.Session.SecureCookies,
		Database:      app.Database,
		SyncProgress:  app.SyncProgress,
		Version:       version,
	}
	if syncScheduler != nil {
		routerCfg.SyncScheduler = syncScheduler
	}
	if taskClient != nil {
		routerCfg.TaskClient = taskClient
	}

	router := http_controllers.NewRouter(routerCfg)

	onShutdown := func(ctx context.Context) {
		if syncScheduler != nil {
			syncScheduler.Stop()
		}
		if taskClient != nil {
			taskClient.Stop(ctx)
		}
		bgCancel()
		screens.Close()
	}

	Serve(router, cfg, onShutdown)
}
