package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type Database struct {
	Conn *sql.DB
}

func NewDatabase(dsn string) (*Database, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(25)
	conn.SetConnMaxLifetime(5 * time.Minute)
	return &Database{Conn: conn}, nil
}

// AutoMigrate creates the chat schema. Room ids are derived strings,
// not serials, so both participants resolve to the same row without a
// lookup table. The compound room indexes back the directory's
// preferred query; deployments migrated from the pre-index schema may
// lack them, which the store adapter detects at startup.
func (d *Database) AutoMigrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
            id TEXT PRIMARY KEY,
            username VARCHAR(50) UNIQUE NOT NULL,
            display_name VARCHAR(100) NOT NULL,
            role VARCHAR(20) NOT NULL,
            password VARCHAR(255) NOT NULL,
            created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS rooms (
            id TEXT PRIMARY KEY,
            initiator_id TEXT NOT NULL,
            counterpart_id TEXT NOT NULL,
            context_id TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
            last_message TEXT NOT NULL DEFAULT '',
            last_message_at TIMESTAMPTZ,
            last_sender_id TEXT NOT NULL DEFAULT ''
        )`,

		`CREATE TABLE IF NOT EXISTS memberships (
            room_id TEXT REFERENCES rooms(id) ON DELETE CASCADE,
            participant_id TEXT NOT NULL,
            role VARCHAR(20) NOT NULL,
            joined_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
            last_read_at TIMESTAMPTZ,
            PRIMARY KEY (room_id, participant_id)
        )`,

		`CREATE TABLE IF NOT EXISTS messages (
            id TEXT PRIMARY KEY,
            room_id TEXT REFERENCES rooms(id) ON DELETE CASCADE,
            sender_id TEXT NOT NULL,
            sender_role VARCHAR(20) NOT NULL,
            body TEXT NOT NULL,
            read BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ NOT NULL
        )`,

		`CREATE INDEX IF NOT EXISTS idx_messages_room_order
            ON messages (room_id, created_at, id)`,

		`CREATE INDEX IF NOT EXISTS idx_rooms_initiator_last
            ON rooms (initiator_id, last_message_at DESC)`,

		`CREATE INDEX IF NOT EXISTS idx_rooms_counterpart_last
            ON rooms (counterpart_id, last_message_at DESC)`,
	}

	for _, query := range queries {
		if _, err := d.Conn.Exec(query); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}
