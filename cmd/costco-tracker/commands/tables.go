package commands

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
)

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}

func nullText(value sql.NullString) string {
	if !value.Valid {
		return ""
	}
	return value.String
}

func nullPrice(value sql.NullFloat64) string {
	if !value.Valid {
		return ""
	}
	return fmt.Sprintf("£%.2f", value.Float64)
}

func unixTime(value int64) string {
	return time.Unix(value, 0).Local().Format("2006-01-02 15:04")
}

func nullUnixTime(value sql.NullInt64) string {
	if !value.Valid {
		return ""
	}
	return unixTime(value.Int64)
}
