package repository

import (
	"context"
	"time"

	"github.com/hibikilab/kikitori/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) repository.Repository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) CreateSession(ctx context.Context, input repository.CreateSessionInput) (*repository.Session, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO sessions (id, guild_id, channel_id, started_at, status)
		 VALUES ($1, $2, $3, $4, 'running')
		 RETURNING id, guild_id, channel_id, started_at, ended_at, status`,
		input.SessionID, input.GuildID, input.ChannelID, input.StartedAt)
	var s repository.Session
	var endedAt *time.Time
	if err := row.Scan(&s.ID, &s.GuildID, &s.ChannelID, &s.StartedAt, &endedAt, &s.Status); err != nil {
		return nil, err
	}
	s.EndedAt = endedAt
	return &s, nil
}

func (r *PostgresRepository) CompleteSession(ctx context.Context, input repository.CompleteSessionInput) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE sessions SET status = 'completed', ended_at = $2, stop_reason = $3 WHERE id = $1`,
		input.SessionID, input.EndedAt, input.StopReason)
	return err
}

func (r *PostgresRepository) GetRunningSessionByChannel(ctx context.Context, guildID, channelID string) (*repository.Session, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, guild_id, channel_id, started_at, ended_at, status, stop_reason
		 FROM sessions WHERE guild_id = $1 AND channel_id = $2 AND status = 'running'
		 LIMIT 1`,
		guildID, channelID)
	var s repository.Session
	var endedAt *time.Time
	var stopReason *string
	err := row.Scan(&s.ID, &s.GuildID, &s.ChannelID, &s.StartedAt, &endedAt, &s.Status, &stopReason)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	s.EndedAt = endedAt
	if stopReason != nil {
		s.StopReason = *stopReason
	}
	return &s, nil
}

func (r *PostgresRepository) SaveSessionRecord(ctx context.Context, input repository.SaveSessionRecordInput) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for _, p := range input.Participants {
		if _, err := tx.Exec(ctx,
			`INSERT INTO session_participants (session_id, user_id, display_name, is_bot, joined_at, left_at, duration_seconds)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			input.SessionID, p.UserID, p.DisplayName, p.IsBot, p.JoinedAt, p.LeftAt, p.DurationSeconds); err != nil {
			return err
		}
	}
	for _, t := range input.Transcripts {
		if _, err := tx.Exec(ctx,
			`INSERT INTO session_transcripts (session_id, user_id, content, word_count, confidence, language, processing_ms, error_marker)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			input.SessionID, t.UserID, t.Text, t.WordCount, t.Confidence, t.Language, t.ProcessingMs, t.ErrorMarker); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}
