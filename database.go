package main

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"

	"modernc.org/sqlite"
)

// SQLite's built-in lower() only folds ASCII. fold lowercases with Go's
// Unicode tables so stored columns fold the same way as strings.ToLower.
func init() {
	sqlite.MustRegisterDeterministicScalarFunction("fold", 1, foldFunc)
}

func foldFunc(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	case nil:
		return nil, nil
	default:
		return v, nil
	}
}

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Each connection to ":memory:" is its own database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func initDB(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS posts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		text TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS sessions (
		token TEXT PRIMARY KEY,
		expires_at DATETIME NOT NULL
	);`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	return nil
}

func seedDB(db *sql.DB) error {
	count, err := countPosts(db)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	posts := []Post{
		{Title: "Hello", Text: "First entry on the board."},
		{Title: "Markup", Text: "<em>Entries</em> may contain <strong>HTML</strong>."},
	}

	for _, post := range posts {
		if _, err := createPost(db, post.Title, post.Text); err != nil {
			return err
		}
	}

	return nil
}
