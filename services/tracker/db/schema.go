package db

import (
	_ "embed"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

const (
	RUN_STATUS_RUNNING               = "running"
	RUN_STATUS_COMPLETED             = "completed"
	RUN_STATUS_COMPLETED_WITH_ERRORS = "completed_with_errors"
)
