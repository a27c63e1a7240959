package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Turn is one completed exchange. GeneratedSQL is empty for conversational
// turns that never touched the database.
type Turn struct {
	TurnID       string
	UserID       string
	Question     string
	GeneratedSQL string
	Answer       string
	CreatedAt    time.Time
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping history db: %w", err)
	}
	return nil
}

// EnsureSchema creates the conversation table if it is missing. The service
// owns its own schema; there is no external migration step.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`
CREATE TABLE IF NOT EXISTS conversation_turn (
    turn_id UUID PRIMARY KEY,
    user_id TEXT NOT NULL,
    question TEXT NOT NULL,
    generated_sql TEXT,
    answer TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`
CREATE INDEX IF NOT EXISTS conversation_turn_user_idx
ON conversation_turn (user_id, created_at DESC)`,
	}
	for _, statement := range statements {
		if _, err := r.db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("ensure history schema: %w", err)
		}
	}
	return nil
}

func (r *Repository) SaveTurn(ctx context.Context, turn Turn) (Turn, error) {
	if turn.TurnID == "" {
		turn.TurnID = uuid.NewString()
	}

	query := `
INSERT INTO conversation_turn (turn_id, user_id, question, generated_sql, answer)
VALUES ($1, $2, $3, $4, $5)
RETURNING created_at`

	var generatedSQL any
	if turn.GeneratedSQL != "" {
		generatedSQL = turn.GeneratedSQL
	}
	if err := r.db.QueryRowContext(ctx, query, turn.TurnID, turn.UserID, turn.Question, generatedSQL, turn.Answer).Scan(&turn.CreatedAt); err != nil {
		return Turn{}, fmt.Errorf("save turn: %w", err)
	}
	return turn, nil
}

// RecentTurns returns up to limit turns for a user, oldest first, so the
// slice reads as a transcript when rendered into a prompt.
func (r *Repository) RecentTurns(ctx context.Context, userID string, limit int) ([]Turn, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT turn_id, user_id, question, generated_sql, answer, created_at
FROM conversation_turn
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	turns := make([]Turn, 0, limit)
	for rows.Next() {
		var turn Turn
		var generatedSQL sql.NullString
		if err := rows.Scan(&turn.TurnID, &turn.UserID, &turn.Question, &generatedSQL, &turn.Answer, &turn.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		turn.GeneratedSQL = generatedSQL.String
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turn rows: %w", err)
	}

	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}
