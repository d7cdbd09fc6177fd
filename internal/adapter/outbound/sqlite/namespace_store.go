package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/metamcp/metamcp/internal/domain/namespace"
)

// NamespaceStore implements namespace.Store over the namespaces table.
type NamespaceStore struct {
	db *sql.DB
}

// NewNamespaceStore wraps db as a namespace.Store.
func NewNamespaceStore(db *sql.DB) *NamespaceStore {
	return &NamespaceStore{db: db}
}

func (s *NamespaceStore) List(ctx context.Context) ([]namespace.Namespace, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, servers_json, created_at, updated_at FROM namespaces ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list namespaces: %w", err)
	}
	defer rows.Close()

	var result []namespace.Namespace
	for rows.Next() {
		ns, err := scanNamespace(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan namespace: %w", err)
		}
		result = append(result, *ns)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate namespaces: %w", err)
	}
	return result, nil
}

func (s *NamespaceStore) Get(ctx context.Context, id string) (*namespace.Namespace, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, servers_json, created_at, updated_at FROM namespaces WHERE id = ?`, id)
	return namespaceOrNotFound(row)
}

func (s *NamespaceStore) GetByName(ctx context.Context, name string) (*namespace.Namespace, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, servers_json, created_at, updated_at FROM namespaces WHERE name = ?`, name)
	return namespaceOrNotFound(row)
}

func namespaceOrNotFound(row rowScanner) (*namespace.Namespace, error) {
	ns, err := scanNamespace(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, namespace.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get namespace: %w", err)
	}
	return ns, nil
}

func (s *NamespaceStore) Add(ctx context.Context, ns *namespace.Namespace) error {
	serversJSON, err := json.Marshal(ns.Servers)
	if err != nil {
		return fmt.Errorf("sqlite: encode namespace servers: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO namespaces (id, name, servers_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		ns.ID, ns.Name, string(serversJSON), formatTime(ns.CreatedAt), formatTime(ns.UpdatedAt))
	if isUniqueViolation(err) {
		return namespace.ErrDuplicateName
	}
	if err != nil {
		return fmt.Errorf("sqlite: add namespace: %w", err)
	}
	return nil
}

func (s *NamespaceStore) Update(ctx context.Context, ns *namespace.Namespace) error {
	serversJSON, err := json.Marshal(ns.Servers)
	if err != nil {
		return fmt.Errorf("sqlite: encode namespace servers: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE namespaces SET name = ?, servers_json = ?, updated_at = ? WHERE id = ?`,
		ns.Name, string(serversJSON), formatTime(ns.UpdatedAt), ns.ID)
	if isUniqueViolation(err) {
		return namespace.ErrDuplicateName
	}
	if err != nil {
		return fmt.Errorf("sqlite: update namespace: %w", err)
	}
	return requireRowsAffected(result, namespace.ErrNotFound)
}

func (s *NamespaceStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM namespaces WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: delete namespace: %w", err)
	}
	return requireRowsAffected(result, namespace.ErrNotFound)
}

func scanNamespace(row rowScanner) (*namespace.Namespace, error) {
	var ns namespace.Namespace
	var serversJSON, createdAt, updatedAt string
	if err := row.Scan(&ns.ID, &ns.Name, &serversJSON, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(serversJSON), &ns.Servers); err != nil {
		return nil, fmt.Errorf("decode servers_json: %w", err)
	}
	var err error
	if ns.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("decode created_at: %w", err)
	}
	if ns.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("decode updated_at: %w", err)
	}
	return &ns, nil
}

var _ namespace.Store = (*NamespaceStore)(nil)
