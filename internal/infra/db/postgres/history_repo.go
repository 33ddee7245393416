package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	domain "github.com/paperlens/paperlens/internal/domain/analysis"
)

type HistoryRepository struct {
	db *sql.DB
}

func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Save inserts or updates an analysis history entry
func (r *HistoryRepository) Save(ctx context.Context, a *domain.Analysis) error {
	const q = `
INSERT INTO paper_analyses
  (id, session_id, filename, language, result_json, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (id) DO UPDATE SET
  session_id=EXCLUDED.session_id,
  filename=EXCLUDED.filename,
  language=EXCLUDED.language,
  result_json=EXCLUDED.result_json;
`
	filename := stringOrDash(a.Filename)
	result := a.Result
	if strings.TrimSpace(result) == "" {
		result = "{}"
	}
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, q, a.ID, a.SessionID, filename, a.Language, result, createdAt)
	return err
}

// Paginate returns a page of history entries ordered by created_at desc
func (r *HistoryRepository) Paginate(ctx context.Context, page, pageSize int) ([]*domain.Analysis, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	const q = `
SELECT id, session_id, filename, language, result_json, created_at
FROM paper_analyses
ORDER BY created_at DESC, id DESC
LIMIT $1 OFFSET $2;
`
	rows, err := r.db.QueryContext(ctx, q, pageSize, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Analysis
	for rows.Next() {
		var a domain.Analysis
		var created time.Time
		if err := rows.Scan(&a.ID, &a.SessionID, &a.Filename, &a.Language, &a.Result, &created); err != nil {
			return nil, err
		}
		a.CreatedAt = created
		out = append(out, &a)
	}
	return out, rows.Err()
}

// LatestBySession returns the latest entry for a given session and language
func (r *HistoryRepository) LatestBySession(ctx context.Context, sessionID string, lang domain.Language) (*domain.Analysis, error) {
	const q = `
SELECT id, session_id, filename, language, result_json, created_at
FROM paper_analyses
WHERE session_id=$1 AND language=$2
ORDER BY created_at DESC, id DESC
LIMIT 1;`
	row := r.db.QueryRowContext(ctx, q, sessionID, lang)
	var a domain.Analysis
	var created time.Time
	if err := row.Scan(&a.ID, &a.SessionID, &a.Filename, &a.Language, &a.Result, &created); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	a.CreatedAt = created
	return &a, nil
}
