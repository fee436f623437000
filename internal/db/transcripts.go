package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/portfoliobuddy/internal/assistant"
)

// Transcript is one stored turn.
type Transcript struct {
	ID         uuid.UUID
	TurnID     string
	UserID     string
	Intent     string
	Symbols    []string
	UserText   string
	ReplyText  string
	Action     *string
	Confidence *float64
	DurationMS int64
	CreatedAt  time.Time
}

// Transcripts persists completed turns. It implements assistant.TurnSink.
type Transcripts struct {
	pool Pool
}

var _ assistant.TurnSink = (*Transcripts)(nil)

func NewTranscripts(pool Pool) *Transcripts {
	return &Transcripts{pool: pool}
}

const insertTranscript = `
	INSERT INTO transcripts (
		id, turn_id, user_id, intent, symbols, user_text, reply_text,
		action, confidence, duration_ms, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

// RecordTurn stores ev.
func (t *Transcripts) RecordTurn(ctx context.Context, ev assistant.TurnEvent) error {
	symbols := ev.Symbols
	if symbols == nil {
		symbols = []string{}
	}
	createdAt := ev.Timestamp
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var action *string
	var confidence *float64
	if ev.Action != "" {
		a, c := ev.Action, ev.Confidence
		action, confidence = &a, &c
	}

	id := uuid.New()
	_, err := t.pool.Exec(ctx, insertTranscript,
		id,
		ev.TurnID,
		ev.UserID,
		string(ev.Intent),
		symbols,
		ev.UserText,
		ev.ReplyText,
		action,
		confidence,
		ev.Duration.Milliseconds(),
		createdAt,
	)
	if err != nil {
		log.Error().Err(err).Str("user_id", ev.UserID).Msg("Failed to store transcript")
		return fmt.Errorf("failed to store transcript: %w", err)
	}
	return nil
}

// Recent returns the user's latest turns, newest first.
func (t *Transcripts) Recent(ctx context.Context, userID string, limit int) ([]Transcript, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := t.pool.Query(ctx, `
		SELECT id, turn_id, user_id, intent, symbols, user_text, reply_text,
		       action, confidence, duration_ms, created_at
		FROM transcripts
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcripts: %w", err)
	}
	defer rows.Close()

	var out []Transcript
	for rows.Next() {
		var tr Transcript
		if err := rows.Scan(
			&tr.ID,
			&tr.TurnID,
			&tr.UserID,
			&tr.Intent,
			&tr.Symbols,
			&tr.UserText,
			&tr.ReplyText,
			&tr.Action,
			&tr.Confidence,
			&tr.DurationMS,
			&tr.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transcript: %w", err)
		}
		out = append(out, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transcripts: %w", err)
	}
	return out, nil
}

type intentCount struct {
	intent string
	n      int64
}

// CountByIntent returns how many turns each intent has had since since.
func (t *Transcripts) CountByIntent(ctx context.Context, since time.Time) (map[string]int64, error) {
	rows, err := t.pool.Query(ctx, `
		SELECT intent, COUNT(*)
		FROM transcripts
		WHERE created_at >= $1
		GROUP BY intent`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count transcripts: %w", err)
	}

	counts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (intentCount, error) {
		var c intentCount
		err := row.Scan(&c.intent, &c.n)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read intent counts: %w", err)
	}

	out := make(map[string]int64, len(counts))
	for _, c := range counts {
		out[c.intent] = c.n
	}
	return out, nil
}
