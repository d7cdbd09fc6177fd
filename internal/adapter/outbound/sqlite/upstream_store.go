package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/metamcp/metamcp/internal/domain/upstream"
)

// UpstreamStore implements upstream.Store over the upstream_servers table.
type UpstreamStore struct {
	db *sql.DB
}

// NewUpstreamStore wraps db as an upstream.Store.
func NewUpstreamStore(db *sql.DB) *UpstreamStore {
	return &UpstreamStore{db: db}
}

func (s *UpstreamStore) List(ctx context.Context) ([]upstream.Server, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, kind, command, args_json, env_json, url, bearer_token, error_status, created_at, updated_at
		FROM upstream_servers ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list upstream servers: %w", err)
	}
	defer rows.Close()

	var result []upstream.Server
	for rows.Next() {
		srv, err := scanUpstreamServer(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan upstream server: %w", err)
		}
		result = append(result, *srv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate upstream servers: %w", err)
	}
	return result, nil
}

func (s *UpstreamStore) Get(ctx context.Context, id string) (*upstream.Server, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, kind, command, args_json, env_json, url, bearer_token, error_status, created_at, updated_at
		FROM upstream_servers WHERE id = ?`, id)
	srv, err := scanUpstreamServer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, upstream.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get upstream server: %w", err)
	}
	return srv, nil
}

func (s *UpstreamStore) Add(ctx context.Context, server *upstream.Server) error {
	argsJSON, envJSON, err := encodeUpstreamJSON(server)
	if err != nil {
		return fmt.Errorf("sqlite: encode upstream server: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO upstream_servers (id, name, kind, command, args_json, env_json, url, bearer_token, error_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		server.ID, server.Name, string(server.Kind), server.Command, argsJSON, envJSON,
		server.URL, server.BearerToken, string(server.ErrorStatus),
		formatTime(server.CreatedAt), formatTime(server.UpdatedAt))
	if isUniqueViolation(err) {
		return upstream.ErrDuplicateName
	}
	if err != nil {
		return fmt.Errorf("sqlite: add upstream server: %w", err)
	}
	return nil
}

func (s *UpstreamStore) Update(ctx context.Context, server *upstream.Server) error {
	argsJSON, envJSON, err := encodeUpstreamJSON(server)
	if err != nil {
		return fmt.Errorf("sqlite: encode upstream server: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE upstream_servers
		SET name = ?, kind = ?, command = ?, args_json = ?, env_json = ?, url = ?, bearer_token = ?, error_status = ?, updated_at = ?
		WHERE id = ?`,
		server.Name, string(server.Kind), server.Command, argsJSON, envJSON,
		server.URL, server.BearerToken, string(server.ErrorStatus), formatTime(server.UpdatedAt), server.ID)
	if isUniqueViolation(err) {
		return upstream.ErrDuplicateName
	}
	if err != nil {
		return fmt.Errorf("sqlite: update upstream server: %w", err)
	}
	return requireRowsAffected(result, upstream.ErrNotFound)
}

func (s *UpstreamStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM upstream_servers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: delete upstream server: %w", err)
	}
	return requireRowsAffected(result, upstream.ErrNotFound)
}

func (s *UpstreamStore) SetErrorStatus(ctx context.Context, id string, status upstream.ErrorStatus) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE upstream_servers SET error_status = ?, updated_at = ? WHERE id = ?`,
		string(status), formatTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("sqlite: set upstream error status: %w", err)
	}
	return requireRowsAffected(result, upstream.ErrNotFound)
}

// rowScanner abstracts *sql.Row and *sql.Rows, both of which satisfy Scan.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUpstreamServer(row rowScanner) (*upstream.Server, error) {
	var srv upstream.Server
	var kind, errStatus, argsJSON, envJSON, createdAt, updatedAt string
	if err := row.Scan(&srv.ID, &srv.Name, &kind, &srv.Command, &argsJSON, &envJSON,
		&srv.URL, &srv.BearerToken, &errStatus, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	srv.Kind = upstream.Kind(kind)
	srv.ErrorStatus = upstream.ErrorStatus(errStatus)

	if err := json.Unmarshal([]byte(argsJSON), &srv.Args); err != nil {
		return nil, fmt.Errorf("decode args_json: %w", err)
	}
	if err := json.Unmarshal([]byte(envJSON), &srv.Env); err != nil {
		return nil, fmt.Errorf("decode env_json: %w", err)
	}
	var err error
	if srv.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("decode created_at: %w", err)
	}
	if srv.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("decode updated_at: %w", err)
	}
	return &srv, nil
}

func encodeUpstreamJSON(server *upstream.Server) (argsJSON, envJSON string, err error) {
	args, err := json.Marshal(server.Args)
	if err != nil {
		return "", "", err
	}
	env, err := json.Marshal(server.Env)
	if err != nil {
		return "", "", err
	}
	return string(args), string(env), nil
}

var _ upstream.Store = (*UpstreamStore)(nil)
