package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// DB wraps the connection pool together with the SQL dialect it speaks
type DB struct {
	*sql.DB
	dialect dialect
	now     func() time.Time
	log     *zap.Logger
}

type dialect struct {
	name       string
	schema     string
	positional bool // $1, $2 ... instead of ?
}

var sqliteDialect = dialect{
	name: "sqlite3",
	schema: `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT UNIQUE NOT NULL,
		username TEXT UNIQUE NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS friends (
		user_id INTEGER NOT NULL,
		friend_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (user_id, friend_id),
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
		FOREIGN KEY (friend_id) REFERENCES users(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sender_id INTEGER NOT NULL,
		receiver_id INTEGER NOT NULL,
		content TEXT,
		file_url VARCHAR(500),
		type VARCHAR(20) NOT NULL DEFAULT 'TEXT',
		sent_at DATETIME NOT NULL,
		FOREIGN KEY (sender_id) REFERENCES users(id) ON DELETE CASCADE,
		FOREIGN KEY (receiver_id) REFERENCES users(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS deleted_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		message_id INTEGER NOT NULL,
		deleted_at DATETIME NOT NULL,
		UNIQUE(user_id, message_id),
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
		FOREIGN KEY (message_id) REFERENCES messages(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(sender_id, receiver_id, sent_at);
	CREATE INDEX IF NOT EXISTS idx_deleted_messages_user ON deleted_messages(user_id);
	`,
}

// Open connects to the database named by driver and dsn and creates tables
func Open(driver, dsn string, log *zap.Logger) (*DB, error) {
	var d dialect
	switch driver {
	case "", "sqlite3", "sqlite":
		d = sqliteDialect
		dsn = sqliteDSN(dsn)
	case "postgres", "postgresql":
		d = postgresDialect
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	conn, err := sql.Open(d.name, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if d.name == sqliteDialect.name {
		// SQLite allows a single writer; one connection avoids SQLITE_BUSY
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(20)
		conn.SetMaxIdleConns(5)
		conn.SetConnMaxLifetime(5 * time.Minute)
		conn.SetConnMaxIdleTime(1 * time.Minute)
	}

	db := &DB{DB: conn, dialect: d, now: time.Now, log: log}
	if err := db.createTables(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	log.Info("database_initialized", zap.String("driver", d.name))
	return db, nil
}

// SetClock replaces the time source used for sent_at and deleted_at
func (db *DB) SetClock(now func() time.Time) {
	db.now = now
}

func (db *DB) createTables() error {
	_, err := db.Exec(db.dialect.schema)
	return err
}

// sqliteDSN turns on foreign keys so markers cascade with their messages
func sqliteDSN(dsn string) string {
	if dsn == "" {
		dsn = "file:dmchat.db"
	}
	if strings.Contains(dsn, "_foreign_keys") || strings.Contains(dsn, "_fk=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_foreign_keys=on&_busy_timeout=5000"
}

// rebind rewrites ? placeholders for dialects that want $n
func (db *DB) rebind(query string) string {
	if !db.dialect.positional {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTransaction runs fn inside a transaction, committing only if fn succeeds
func (db *DB) WithTransaction(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				db.log.Error("transaction_rollback_failed", zap.Error(rbErr))
			}
			return
		}
		err = tx.Commit()
	}()

	return fn(tx)
}
