package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Connect opens the pool used for trigger installation and health checks.
// Notifications themselves go over a dedicated listener connection.
func Connect(ctx context.Context, dsn string) (*sqlx.DB, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	db.SetMaxOpenConns(2)
	return db, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// InstallTriggers creates the chat_updated and message_added notify triggers.
// It is idempotent.
func InstallTriggers(ctx context.Context, db execer, log *slog.Logger) error {
	for _, m := range triggerStatements {
		if _, err := db.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("install %s: %w", m.name, err)
		}
	}
	log.Info("notify triggers installed", "channels", []string{"chat_updated", "message_added"})
	return nil
}

type statement struct {
	name string
	sql  string
}

var triggerStatements = []statement{
	{"add_to_chat function", `CREATE OR REPLACE FUNCTION add_to_chat()
    RETURNS TRIGGER AS $$
BEGIN
    PERFORM pg_notify('chat_updated', json_build_object(
        'op', TG_OP,
        'old', OLD,
        'new', NEW
    )::text);
    RETURN NULL;
END;
$$ LANGUAGE plpgsql;`},
	{"add_to_chat trigger", `DROP TRIGGER IF EXISTS add_to_chat_trigger ON chats;`},
	{"add_to_chat trigger", `CREATE TRIGGER add_to_chat_trigger
    AFTER INSERT OR UPDATE OF members OR DELETE ON chats
    FOR EACH ROW EXECUTE FUNCTION add_to_chat();`},
	{"add_to_message function", `CREATE OR REPLACE FUNCTION add_to_message()
    RETURNS TRIGGER AS $$
DECLARE
    users bigint[];
BEGIN
    IF TG_OP = 'INSERT' THEN
        SELECT members INTO users FROM chats WHERE id = NEW.chat_id;
        PERFORM pg_notify('message_added', json_build_object(
            'message', NEW,
            'members', users
        )::text);
    END IF;
    RETURN NULL;
END;
$$ LANGUAGE plpgsql;`},
	{"add_to_message trigger", `DROP TRIGGER IF EXISTS add_to_message_trigger ON messages;`},
	{"add_to_message trigger", `CREATE TRIGGER add_to_message_trigger
    AFTER INSERT ON messages
    FOR EACH ROW EXECUTE FUNCTION add_to_message();`},
}
