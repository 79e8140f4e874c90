// Package postgres implements the store contract on Postgres. Writes go
// through ordinary upserts and inserts; change notification rides
// LISTEN/NOTIFY, with each watch holding one listening connection and
// re-reading the full snapshot on every notification.
package postgres

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/focushub/go/internal/models"
	"github.com/mcdev12/focushub/go/internal/store"
	"github.com/rs/zerolog/log"
)

//go:embed schema.sql
var schema string

const (
	presenceChannel = "focushub_presence"
	messagesChannel = "focushub_messages"
)

// Store is a Postgres-backed room store.
type Store struct {
	pool *pgxpool.Pool
}

// New connects the pool and applies the schema.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	log.Info().Msg("postgres store ready")
	return &Store{pool: pool}, nil
}

// UpsertPresence implements store.PresenceStore. last_updated is assigned by
// the database, not the client clock.
func (s *Store) UpsertPresence(ctx context.Context, rec models.PresenceRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO focushub_presence (participant_id, nickname, status, last_updated)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (participant_id) DO UPDATE
		SET nickname = EXCLUDED.nickname, status = EXCLUDED.status, last_updated = now()`,
		rec.ParticipantID, rec.Nickname, string(rec.Status),
	)
	if err != nil {
		return fmt.Errorf("upsert presence record: %w", err)
	}
	return nil
}

// WatchPresence implements store.PresenceStore.
func (s *Store) WatchPresence(ctx context.Context, fn func(records []models.PresenceRecord)) (store.Subscription, error) {
	return s.watch(ctx, presenceChannel, func(ctx context.Context) (func(), error) {
		records, err := s.queryPresence(ctx)
		if err != nil {
			return nil, err
		}
		return func() { fn(records) }, nil
	})
}

// AppendMessage implements store.MessageStore.
func (s *Store) AppendMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO focushub_messages (participant_id, nickname, text, created_at)
		VALUES ($1, $2, $3, now())
		RETURNING seq, created_at`,
		msg.ParticipantID, msg.Nickname, msg.Text,
	)
	if err := row.Scan(&msg.Seq, &msg.Timestamp); err != nil {
		return models.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

// WatchMessages implements store.MessageStore.
func (s *Store) WatchMessages(ctx context.Context, fn func(msgs []models.Message)) (store.Subscription, error) {
	return s.watch(ctx, messagesChannel, func(ctx context.Context) (func(), error) {
		msgs, err := s.queryMessages(ctx)
		if err != nil {
			return nil, err
		}
		return func() { fn(msgs) }, nil
	})
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) queryPresence(ctx context.Context) ([]models.PresenceRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT participant_id, nickname, status, last_updated
		FROM focushub_presence
		ORDER BY participant_id`)
	if err != nil {
		return nil, fmt.Errorf("query presence: %w", err)
	}
	defer rows.Close()

	records := []models.PresenceRecord{}
	for rows.Next() {
		var rec models.PresenceRecord
		var status string
		if err := rows.Scan(&rec.ParticipantID, &rec.Nickname, &status, &rec.LastUpdated); err != nil {
			return nil, fmt.Errorf("scan presence row: %w", err)
		}
		rec.Status = models.Status(status)
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *Store) queryMessages(ctx context.Context) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT seq, participant_id, nickname, text, created_at
		FROM focushub_messages
		ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	msgs := []models.Message{}
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.Seq, &msg.ParticipantID, &msg.Nickname, &msg.Text, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}
