package sqlite

import (
	"database/sql"
	"strings"
	"time"
)

// sqliteTimeLayout stores timestamps as RFC 3339 with nanoseconds so
// lexicographic ORDER BY matches chronological order.
const sqliteTimeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(sqliteTimeLayout, s)
}

// isUniqueViolation reports whether err came from a UNIQUE constraint,
// checked by message text since modernc.org/sqlite's driver-level *sqlite.Error
// isn't exported in a version-stable way worth importing for this one check.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// requireRowsAffected returns notFound if result reports zero rows changed,
// used after UPDATE/DELETE statements where a missing row is the only way
// to end up with zero affected rows given the caller always passes an
// existing ID shape.
func requireRowsAffected(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
