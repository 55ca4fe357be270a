package storage

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

const createClientState = `
CREATE TABLE IF NOT EXISTS client_state (
	k          TEXT PRIMARY KEY,
	v          BLOB NOT NULL,
	updated_at INTEGER NOT NULL
) WITHOUT ROWID;`

// SQLiteMedium persists client state in a local SQLite database. It
// plays the role a browser's localStorage plays for the web client.
type SQLiteMedium struct {
	sqlDB *sql.DB
}

var _ Medium = (*SQLiteMedium)(nil)

// OpenSQLite opens (and if needed creates) the client-state database.
func OpenSQLite(path string) (*SQLiteMedium, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(createClientState); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create client_state table: %w", err)
	}
	return &SQLiteMedium{sqlDB: sqlDB}, nil
}

func (m *SQLiteMedium) Get(key string) ([]byte, bool, error) {
	var value []byte
	err := m.sqlDB.QueryRow(`SELECT v FROM client_state WHERE k = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select client_state: %w", err)
	}
	return value, true, nil
}

func (m *SQLiteMedium) Set(key string, value []byte) error {
	_, err := m.sqlDB.Exec(
		`INSERT INTO client_state (k, v, updated_at) VALUES (?, ?, unixepoch('now', 'subsec') * 1000)
		 ON CONFLICT (k) DO UPDATE SET v = excluded.v, updated_at = excluded.updated_at`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("upsert client_state: %w", err)
	}
	return nil
}

func (m *SQLiteMedium) Delete(key string) error {
	if _, err := m.sqlDB.Exec(`DELETE FROM client_state WHERE k = ?`, key); err != nil {
		return fmt.Errorf("delete client_state: %w", err)
	}
	return nil
}

func (m *SQLiteMedium) Keys(prefix string) ([]string, error) {
	pattern := strings.NewReplacer("%", `\%`, "_", `\_`).Replace(prefix) + "%"
	rows, err := m.sqlDB.Query(`SELECT k FROM client_state WHERE k LIKE ? ESCAPE '\' ORDER BY k`, pattern)
	if err != nil {
		return nil, fmt.Errorf("list client_state keys: %w", err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan client_state key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate client_state keys: %w", err)
	}
	return keys, nil
}

func (m *SQLiteMedium) Close() error {
	if m == nil || m.sqlDB == nil {
		return nil
	}
	return m.sqlDB.Close()
}
