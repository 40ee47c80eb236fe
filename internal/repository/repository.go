// Package repository holds the SQL access for campaigns, jobs, delivery logs
// and the read-only customer directory.
package repository

import (
	"database/sql"
	"strings"
	"time"
)

type scanner interface {
	Scan(dest ...any) error
}

// utc normalizes a timestamp before it is bound; SQLite compares the stored text
func utc(t time.Time) time.Time {
	return t.UTC()
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern builds a substring LIKE pattern, used with ESCAPE '\'
func likePattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}
