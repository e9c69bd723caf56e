package corpus

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/internal/knowledge/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/voice-context-engine/pkg/errors"
)

// Schema creates the table LoadPostgres reads from. Position orders the
// corpus; ties fall back to id.
const Schema = `
CREATE TABLE IF NOT EXISTS %s (
    id        TEXT PRIMARY KEY,
    position  INTEGER NOT NULL DEFAULT 0,
    text      TEXT NOT NULL,
    keywords  TEXT[] NOT NULL DEFAULT '{}'
)`

var tableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)?$`)

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// LoadPostgres reads every document of table in corpus order.
func LoadPostgres(ctx context.Context, db Querier, table string) ([]index.Document, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("%w: invalid corpus table name %q", apperrors.ErrInvalidInput, table)
	}
	rows, err := db.QueryContext(ctx, fmt.Sprintf(
		`SELECT id, text, keywords FROM %s ORDER BY position, id`, table,
	))
	if err != nil {
		return nil, fmt.Errorf("querying corpus table %s: %w", table, err)
	}
	defer rows.Close()

	var docs []index.Document
	for rows.Next() {
		var (
			doc      index.Document
			keywords pq.StringArray
		)
		if err := rows.Scan(&doc.ID, &doc.Text, &keywords); err != nil {
			return nil, fmt.Errorf("scanning corpus row: %w", err)
		}
		doc.Keywords = []string(keywords)
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating corpus rows: %w", err)
	}
	return docs, nil
}

// Seed writes docs into table, replacing rows with the same id. Used to
// bootstrap a database from the embedded corpus.
func Seed(ctx context.Context, tx *sql.Tx, table string, docs []index.Document) error {
	if !tableName.MatchString(table) {
		return fmt.Errorf("%w: invalid corpus table name %q", apperrors.ErrInvalidInput, table)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(Schema, table)); err != nil {
		return fmt.Errorf("creating corpus table %s: %w", table, err)
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, position, text, keywords) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET position = EXCLUDED.position, text = EXCLUDED.text, keywords = EXCLUDED.keywords`, table))
	if err != nil {
		return fmt.Errorf("preparing corpus insert: %w", err)
	}
	defer stmt.Close()
	for i, doc := range docs {
		if _, err := stmt.ExecContext(ctx, doc.ID, i, doc.Text, pq.Array(doc.Keywords)); err != nil {
			return fmt.Errorf("inserting document %q: %w", doc.ID, err)
		}
	}
	return nil
}
