package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/metamcp/metamcp/internal/domain/endpoint"
)

// EndpointStore implements endpoint.Store over the endpoints table.
type EndpointStore struct {
	db *sql.DB
}

// NewEndpointStore wraps db as an endpoint.Store.
func NewEndpointStore(db *sql.DB) *EndpointStore {
	return &EndpointStore{db: db}
}

func (s *EndpointStore) List(ctx context.Context) ([]endpoint.Endpoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, namespace_id, enable_api_key_auth, enable_oauth, use_query_param_auth, user_id, created_at, updated_at
		FROM endpoints ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list endpoints: %w", err)
	}
	defer rows.Close()

	var result []endpoint.Endpoint
	for rows.Next() {
		ep, err := scanEndpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan endpoint: %w", err)
		}
		result = append(result, *ep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate endpoints: %w", err)
	}
	return result, nil
}

func (s *EndpointStore) Get(ctx context.Context, id string) (*endpoint.Endpoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, namespace_id, enable_api_key_auth, enable_oauth, use_query_param_auth, user_id, created_at, updated_at
		FROM endpoints WHERE id = ?`, id)
	return endpointOrNotFound(row)
}

func (s *EndpointStore) GetByName(ctx context.Context, name string) (*endpoint.Endpoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, namespace_id, enable_api_key_auth, enable_oauth, use_query_param_auth, user_id, created_at, updated_at
		FROM endpoints WHERE name = ?`, name)
	return endpointOrNotFound(row)
}

func endpointOrNotFound(row rowScanner) (*endpoint.Endpoint, error) {
	ep, err := scanEndpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, endpoint.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get endpoint: %w", err)
	}
	return ep, nil
}

func (s *EndpointStore) Add(ctx context.Context, ep *endpoint.Endpoint) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO endpoints (id, name, namespace_id, enable_api_key_auth, enable_oauth, use_query_param_auth, user_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ep.ID, ep.Name, ep.NamespaceID, ep.EnableAPIKeyAuth, ep.EnableOAuth, ep.UseQueryParamAuth, ep.UserID,
		formatTime(ep.CreatedAt), formatTime(ep.UpdatedAt))
	if isUniqueViolation(err) {
		return endpoint.ErrDuplicateName
	}
	if err != nil {
		return fmt.Errorf("sqlite: add endpoint: %w", err)
	}
	return nil
}

func (s *EndpointStore) Update(ctx context.Context, ep *endpoint.Endpoint) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE endpoints
		SET name = ?, namespace_id = ?, enable_api_key_auth = ?, enable_oauth = ?, use_query_param_auth = ?, user_id = ?, updated_at = ?
		WHERE id = ?`,
		ep.Name, ep.NamespaceID, ep.EnableAPIKeyAuth, ep.EnableOAuth, ep.UseQueryParamAuth, ep.UserID,
		formatTime(ep.UpdatedAt), ep.ID)
	if isUniqueViolation(err) {
		return endpoint.ErrDuplicateName
	}
	if err != nil {
		return fmt.Errorf("sqlite: update endpoint: %w", err)
	}
	return requireRowsAffected(result, endpoint.ErrNotFound)
}

func (s *EndpointStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM endpoints WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: delete endpoint: %w", err)
	}
	return requireRowsAffected(result, endpoint.ErrNotFound)
}

func scanEndpoint(row rowScanner) (*endpoint.Endpoint, error) {
	var ep endpoint.Endpoint
	var createdAt, updatedAt string
	if err := row.Scan(&ep.ID, &ep.Name, &ep.NamespaceID, &ep.EnableAPIKeyAuth, &ep.EnableOAuth,
		&ep.UseQueryParamAuth, &ep.UserID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	var err error
	if ep.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("decode created_at: %w", err)
	}
	if ep.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("decode updated_at: %w", err)
	}
	return &ep, nil
}

var _ endpoint.Store = (*EndpointStore)(nil)
