package configsqlite

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

type Struct struct {
	File      string `json:"file"`
	Url       string `json:"url"`
	AuthToken string `json:"auth_token"`
}

// OpenDB opens the configured database and ensures the given schema
// exists. A url takes precedence over a file and goes through the libsql
// driver, otherwise the file is created if missing and opened through
// the local sqlite driver.
func (config Struct) OpenDB(schema string) (*sql.DB, error) {
	db, err := config.open()
	if err != nil {
		return nil, err
	}
	_, err = db.Exec(schema)
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return db, nil
}

func (config Struct) open() (*sql.DB, error) {
	if config.Url != "" {
		values := url.Values{}
		if config.AuthToken != "" {
			values.Add("authToken", config.AuthToken)
		}
		return sql.Open("libsql", config.Url+"?"+values.Encode())
	}

	if config.File == "" {
		return nil, fmt.Errorf("a database path was not specified")
	}
	dbpath, err := filepath.Abs(config.File)
	if err != nil {
		return nil, err
	}
	_, statErr := os.Stat(dbpath)
	if os.IsNotExist(statErr) {
		f, err := os.Create(dbpath)
		if err != nil {
			return nil, err
		}
		f.Close()
	}

	db, err := sql.Open("sqlite", dbpath)
	if err != nil {
		return nil, err
	}
	// see this stackoverflow post for information on why the following
	// lines exist: https://stackoverflow.com/questions/35804884/sqlite-concurrent-writing-performance
	db.SetMaxOpenConns(1)
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	return db, nil
}
