// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package sqlite provides a SQLite store for single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tombee/switchboard/internal/credential"
	"github.com/tombee/switchboard/internal/metrics"
	"github.com/tombee/switchboard/internal/store"
	sberrors "github.com/tombee/switchboard/pkg/errors"
)

var _ store.Store = (*Store)(nil)

// Store is a SQLite store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Config contains SQLite connection configuration.
type Config struct {
	// Path is the database file path.
	Path string

	// WAL enables Write-Ahead Logging mode for concurrent reads.
	WAL bool
}

// New opens the database and runs migrations.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writes
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{db: db, now: time.Now}

	if err := s.configurePragmas(ctx, cfg.WAL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure pragmas: %w", err)
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

func (s *Store) configurePragmas(ctx context.Context, enableWAL bool) error {
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	if enableWAL {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}

	for _, pragma := range pragmas {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS credentials (
			id TEXT PRIMARY KEY,
			integration_id TEXT NOT NULL,
			name TEXT NOT NULL,
			credentials TEXT NOT NULL,
			metadata TEXT,
			enabled INTEGER NOT NULL DEFAULT 1,
			last_used_at TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_credentials_integration ON credentials(integration_id)`,
		`CREATE TABLE IF NOT EXISTS webhooks (
			id TEXT PRIMARY KEY,
			name TEXT,
			direction TEXT NOT NULL,
			workflow_id TEXT,
			secret TEXT,
			url TEXT,
			method TEXT,
			events TEXT,
			headers TEXT,
			input_mapping TEXT,
			filter TEXT,
			enabled INTEGER NOT NULL DEFAULT 1,
			success_count INTEGER NOT NULL DEFAULT 0,
			failure_count INTEGER NOT NULL DEFAULT 0,
			last_triggered_at TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_webhooks_direction ON webhooks(direction)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(ns sql.NullString) time.Time {
	if !ns.Valid {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, ns.String)
	return t
}

func parseTimePtr(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns)
	return &t
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// CreateCredential creates a new connection.
func (s *Store) CreateCredential(ctx context.Context, c *credential.Credential) error {
	secrets, err := json.Marshal(c.Credentials)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	meta, err := json.Marshal(c.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO credentials (id, integration_id, name, credentials, metadata, enabled,
			last_used_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.IntegrationID, c.Name, string(secrets), string(meta), boolInt(c.Enabled),
		formatTimePtr(c.LastUsedAt), formatTime(c.CreatedAt), formatTime(c.UpdatedAt),
	)
	if err != nil {
		metrics.RecordPersistenceError("create_credential", "sqlite")
		return fmt.Errorf("failed to create connection: %w", err)
	}
	return nil
}

const credentialColumns = `id, integration_id, name, credentials, metadata, enabled,
	last_used_at, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanCredential(row scanner) (*credential.Credential, error) {
	var c credential.Credential
	var secrets string
	var meta, lastUsed, created, updated sql.NullString
	var enabled int

	if err := row.Scan(&c.ID, &c.IntegrationID, &c.Name, &secrets, &meta, &enabled,
		&lastUsed, &created, &updated); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(secrets), &c.Credentials); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credentials: %w", err)
	}
	if meta.Valid && meta.String != "" && meta.String != "null" {
		if err := json.Unmarshal([]byte(meta.String), &c.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	c.Enabled = enabled != 0
	c.LastUsedAt = parseTimePtr(lastUsed)
	c.CreatedAt = parseTime(created)
	c.UpdatedAt = parseTime(updated)
	return &c, nil
}

// GetCredential retrieves a connection by ID.
func (s *Store) GetCredential(ctx context.Context, id string) (*credential.Credential, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+credentialColumns+` FROM credentials WHERE id = ?`, id)
	c, err := scanCredential(row)
	if err == sql.ErrNoRows {
		return nil, &sberrors.NotFoundError{Resource: "connection", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return c, nil
}

// UpdateCredential updates an existing connection.
func (s *Store) UpdateCredential(ctx context.Context, c *credential.Credential) error {
	secrets, err := json.Marshal(c.Credentials)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	meta, err := json.Marshal(c.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	c.UpdatedAt = s.now()
	result, err := s.db.ExecContext(ctx, `
		UPDATE credentials SET name = ?, credentials = ?, metadata = ?, enabled = ?,
			last_used_at = ?, updated_at = ?
		WHERE id = ?`,
		c.Name, string(secrets), string(meta), boolInt(c.Enabled),
		formatTimePtr(c.LastUsedAt), formatTime(c.UpdatedAt), c.ID,
	)
	if err != nil {
		metrics.RecordPersistenceError("update_credential", "sqlite")
		return fmt.Errorf("failed to update connection: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return &sberrors.NotFoundError{Resource: "connection", ID: c.ID}
	}
	return nil
}

// ListCredentials lists connections in creation order.
func (s *Store) ListCredentials(ctx context.Context, filter store.CredentialFilter) ([]*credential.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials`
	var args []any
	if filter.IntegrationID != "" {
		query += ` WHERE integration_id = ?`
		args = append(args, filter.IntegrationID)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer rows.Close()

	var result []*credential.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// DeleteCredential deletes a connection.
func (s *Store) DeleteCredential(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE id = ?`, id); err != nil {
		metrics.RecordPersistenceError("delete_credential", "sqlite")
		return fmt.Errorf("failed to delete connection: %w", err)
	}
	return nil
}

// CreateWebhook creates a new webhook.
func (s *Store) CreateWebhook(ctx context.Context, w *store.Webhook) error {
	events, err := json.Marshal(w.Events)
	if err != nil {
		return fmt.Errorf("failed to marshal events: %w", err)
	}
	headers, err := json.Marshal(w.Headers)
	if err != nil {
		return fmt.Errorf("failed to marshal headers: %w", err)
	}

	if w.CreatedAt.IsZero() {
		w.CreatedAt = s.now()
	}
	if w.UpdatedAt.IsZero() {
		w.UpdatedAt = w.CreatedAt
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO webhooks (id, name, direction, workflow_id, secret, url, method, events,
			headers, input_mapping, filter, enabled, success_count, failure_count,
			last_triggered_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, nullString(w.Name), string(w.Direction), nullString(w.WorkflowID),
		nullString(w.Secret), nullString(w.URL), nullString(w.Method), string(events),
		string(headers), nullString(w.InputMapping), nullString(w.Filter), boolInt(w.Enabled),
		w.SuccessCount, w.FailureCount, formatTimePtr(w.LastTriggeredAt),
		formatTime(w.CreatedAt), formatTime(w.UpdatedAt),
	)
	if err != nil {
		metrics.RecordPersistenceError("create_webhook", "sqlite")
		return fmt.Errorf("failed to create webhook: %w", err)
	}
	return nil
}

const webhookColumns = `id, name, direction, workflow_id, secret, url, method, events, headers,
	input_mapping, filter, enabled, success_count, failure_count, last_triggered_at,
	created_at, updated_at`

func scanWebhook(row scanner) (*store.Webhook, error) {
	var w store.Webhook
	var direction string
	var name, workflowID, secret, url, method, events, headers sql.NullString
	var inputMapping, filter, lastTriggered, created, updated sql.NullString
	var enabled int

	if err := row.Scan(&w.ID, &name, &direction, &workflowID, &secret, &url, &method,
		&events, &headers, &inputMapping, &filter, &enabled, &w.SuccessCount,
		&w.FailureCount, &lastTriggered, &created, &updated); err != nil {
		return nil, err
	}

	w.Name = name.String
	w.Direction = store.Direction(direction)
	w.WorkflowID = workflowID.String
	w.Secret = secret.String
	w.URL = url.String
	w.Method = method.String
	w.InputMapping = inputMapping.String
	w.Filter = filter.String
	w.Enabled = enabled != 0
	w.LastTriggeredAt = parseTimePtr(lastTriggered)
	w.CreatedAt = parseTime(created)
	w.UpdatedAt = parseTime(updated)

	if events.Valid && events.String != "" {
		if err := json.Unmarshal([]byte(events.String), &w.Events); err != nil {
			return nil, fmt.Errorf("failed to unmarshal events: %w", err)
		}
	}
	if headers.Valid && headers.String != "" {
		if err := json.Unmarshal([]byte(headers.String), &w.Headers); err != nil {
			return nil, fmt.Errorf("failed to unmarshal headers: %w", err)
		}
	}
	return &w, nil
}

// GetWebhook retrieves a webhook by ID.
func (s *Store) GetWebhook(ctx context.Context, id string) (*store.Webhook, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+webhookColumns+` FROM webhooks WHERE id = ?`, id)
	w, err := scanWebhook(row)
	if err == sql.ErrNoRows {
		return nil, &sberrors.NotFoundError{Resource: "webhook", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook: %w", err)
	}
	return w, nil
}

// UpdateWebhook updates a webhook's configuration. Delivery counters and
// LastTriggeredAt are left untouched.
func (s *Store) UpdateWebhook(ctx context.Context, w *store.Webhook) error {
	events, err := json.Marshal(w.Events)
	if err != nil {
		return fmt.Errorf("failed to marshal events: %w", err)
	}
	headers, err := json.Marshal(w.Headers)
	if err != nil {
		return fmt.Errorf("failed to marshal headers: %w", err)
	}

	w.UpdatedAt = s.now()
	result, err := s.db.ExecContext(ctx, `
		UPDATE webhooks SET name = ?, workflow_id = ?, secret = ?, url = ?, method = ?,
			events = ?, headers = ?, input_mapping = ?, filter = ?, enabled = ?, updated_at = ?
		WHERE id = ?`,
		nullString(w.Name), nullString(w.WorkflowID), nullString(w.Secret), nullString(w.URL),
		nullString(w.Method), string(events), string(headers), nullString(w.InputMapping),
		nullString(w.Filter), boolInt(w.Enabled), formatTime(w.UpdatedAt), w.ID,
	)
	if err != nil {
		metrics.RecordPersistenceError("update_webhook", "sqlite")
		return fmt.Errorf("failed to update webhook: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return &sberrors.NotFoundError{Resource: "webhook", ID: w.ID}
	}
	return nil
}

// ListWebhooks lists webhooks in creation order.
func (s *Store) ListWebhooks(ctx context.Context, filter store.WebhookFilter) ([]*store.Webhook, error) {
	query := `SELECT ` + webhookColumns + ` FROM webhooks`
	var args []any
	if filter.Direction != "" {
		query += ` WHERE direction = ?`
		args = append(args, string(filter.Direction))
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhooks: %w", err)
	}
	defer rows.Close()

	var result []*store.Webhook
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan webhook: %w", err)
		}
		if filter.Match(w) {
			result = append(result, w)
		}
	}
	return result, rows.Err()
}

// DeleteWebhook deletes a webhook.
func (s *Store) DeleteWebhook(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM webhooks WHERE id = ?`, id); err != nil {
		metrics.RecordPersistenceError("delete_webhook", "sqlite")
		return fmt.Errorf("failed to delete webhook: %w", err)
	}
	return nil
}

// TouchWebhook sets LastTriggeredAt.
func (s *Store) TouchWebhook(ctx context.Context, id string, at time.Time) error {
	return s.execWebhook(ctx, "touch_webhook", id,
		`UPDATE webhooks SET last_triggered_at = ? WHERE id = ?`, formatTime(at), id)
}

// CountDelivery increments the success or failure counter in place.
func (s *Store) CountDelivery(ctx context.Context, id string, success bool) error {
	query := `UPDATE webhooks SET failure_count = failure_count + 1 WHERE id = ?`
	if success {
		query = `UPDATE webhooks SET success_count = success_count + 1 WHERE id = ?`
	}
	return s.execWebhook(ctx, "count_delivery", id, query, id)
}

func (s *Store) execWebhook(ctx context.Context, op, id, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		metrics.RecordPersistenceError(op, "sqlite")
		return fmt.Errorf("failed to update webhook: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return &sberrors.NotFoundError{Resource: "webhook", ID: id}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
