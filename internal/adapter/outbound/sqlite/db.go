// Package sqlite implements namespace.Store, upstream.Store, and
// endpoint.Store over a single SQLite file via modernc.org/sqlite, the
// pure-Go database/sql driver. This is the persistent alternative to the
// in-memory adapters in internal/adapter/outbound/memory: same contracts,
// same sentinel errors, durable across restarts.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

// schema creates every table this package's stores need, idempotently.
// Upstream env/args and namespace server mappings are stored as JSON text
// columns rather than normalized tables: both are always read and written
// whole, never queried by element, so a join table would add cost without
// adding a capability.
const schema = `
CREATE TABLE IF NOT EXISTS upstream_servers (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL UNIQUE,
	kind         TEXT NOT NULL,
	command      TEXT NOT NULL DEFAULT '',
	args_json    TEXT NOT NULL DEFAULT '[]',
	env_json     TEXT NOT NULL DEFAULT '{}',
	url          TEXT NOT NULL DEFAULT '',
	bearer_token TEXT NOT NULL DEFAULT '',
	error_status TEXT NOT NULL DEFAULT 'NONE',
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS namespaces (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL UNIQUE,
	servers_json TEXT NOT NULL DEFAULT '[]',
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS endpoints (
	id                    TEXT PRIMARY KEY,
	name                  TEXT NOT NULL UNIQUE,
	namespace_id          TEXT NOT NULL,
	enable_api_key_auth   INTEGER NOT NULL DEFAULT 0,
	enable_oauth          INTEGER NOT NULL DEFAULT 0,
	use_query_param_auth  INTEGER NOT NULL DEFAULT 0,
	user_id               TEXT NOT NULL DEFAULT '',
	created_at            TEXT NOT NULL,
	updated_at            TEXT NOT NULL
);
`

// Open opens (creating if necessary) the SQLite database at path and
// applies the schema. path may be ":memory:" for tests; callers that want
// a durable file should pass a filesystem path and keep the *sql.DB alive
// for the process lifetime.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// modernc.org/sqlite serializes access at the driver level; a single
	// connection avoids SQLITE_BUSY from concurrent writers contending on
	// the same file lock.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return db, nil
}
