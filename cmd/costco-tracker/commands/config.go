package commands

import (
	"database/sql"
	"strings"

	"dario.cat/mergo"
	"github.com/Ropaxyz/CostcoUKTracker/lib/configsqlite"
	"github.com/Ropaxyz/CostcoUKTracker/lib/configutil"
	"github.com/Ropaxyz/CostcoUKTracker/lib/serviceutil"
	authdb "github.com/Ropaxyz/CostcoUKTracker/services/auth/db"
	basketdb "github.com/Ropaxyz/CostcoUKTracker/services/basket/db"
	"github.com/Ropaxyz/CostcoUKTracker/services/settings"
	settingsdb "github.com/Ropaxyz/CostcoUKTracker/services/settings/db"
	trackerdb "github.com/Ropaxyz/CostcoUKTracker/services/tracker/db"
)

type Config struct {
	Port      int                 `json:"port"`
	SecretKey string              `json:"secret_key"`
	Database  configsqlite.Struct `json:"database"`
	Settings  settings.Config     `json:"settings"`
}

// readConfig loads config.json5 and fills unset settings with the
// shipped defaults. Settings that default to on (safe mode, smtp tls)
// cannot be switched off from the file, only through the runtime
// settings overrides.
func readConfig() Config {
	cfg, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil {
		serviceutil.Fatal("read config", err)
	}
	err = mergo.Merge(&cfg.Settings, settings.DefaultConfig())
	if err != nil {
		serviceutil.Fatal("merge default settings", err)
	}
	if cfg.Port == 0 {
		cfg.Port = 8000
	}
	if cfg.Database.File == "" && cfg.Database.Url == "" {
		cfg.Database.File = "costco_tracker.db"
	}
	return cfg
}

// openDatabase opens the tracker database. Each service owns its
// schema file, they all share the one database.
func openDatabase(cfg Config) *sql.DB {
	schema := strings.Join([]string{
		settingsdb.Schema,
		trackerdb.Schema,
		basketdb.Schema,
		authdb.Schema,
	}, "\n")
	database, err := cfg.Database.OpenDB(schema)
	if err != nil {
		serviceutil.Fatal("open database", err)
	}
	return database
}
