package cli

import (
	"flag"
	"fmt"
	"path/filepath"

	"github.com/mrlokans/booklibrary/internal/config"
	"github.com/mrlokans/booklibrary/internal/entrypoint"
)

// connection holds the flags every command shares. Empty values keep the
// environment configuration.
type connection struct {
	DatabasePath string
	APIBaseURL   string
}

func (c *connection) register(fs *flag.FlagSet) {
	fs.StringVar(&c.DatabasePath, "db", "", "Path to the local cache database (default: DATABASE_PATH or "+config.DefaultDatabasePath+")")
	fs.StringVar(&c.APIBaseURL, "api", "", "Catalog server base URL (default: API_BASE_URL)")
}

// openApp loads the configuration, applies the flag overrides and wires
// the application.
func (c *connection) openApp() (*entrypoint.App, error) {
	cfg := config.NewConfig()
	if c.DatabasePath != "" {
		abs, err := filepath.Abs(c.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path for database: %w", err)
		}
		cfg.Database.Path = abs
	}
	if c.APIBaseURL != "" {
		cfg.API.BaseURL = c.APIBaseURL
	}
	return entrypoint.NewApp(cfg)
}
