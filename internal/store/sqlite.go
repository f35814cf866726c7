package store

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// ErrNotFound is returned when a row does not exist or is not visible to the
// requesting owner.
var ErrNotFound = errors.New("not found")

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS users (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        external_user_id TEXT UNIQUE NOT NULL,
        password_hash TEXT NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS personalities (
        owner_id INTEGER PRIMARY KEY,
        bot_name TEXT NOT NULL DEFAULT '',
        role TEXT NOT NULL DEFAULT '',
        company TEXT NOT NULL DEFAULT '',
        tone TEXT NOT NULL DEFAULT 'professional',
        language TEXT NOT NULL DEFAULT 'mirror',
        instructions TEXT NOT NULL DEFAULT '',
        FOREIGN KEY (owner_id) REFERENCES users (id) ON DELETE CASCADE
    );

    CREATE TABLE IF NOT EXISTS knowledge_items (
        id TEXT PRIMARY KEY, -- UUID
        owner_id INTEGER NOT NULL,
        kind TEXT NOT NULL CHECK (kind IN ('file', 'link', 'text')),
        title TEXT NOT NULL,
        content TEXT NOT NULL,
        char_count INTEGER NOT NULL DEFAULT 0,
        status TEXT NOT NULL DEFAULT 'untrained'
            CHECK (status IN ('untrained', 'training', 'trained', 'failed')),
        source_url TEXT,
        last_trained DATETIME,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (owner_id) REFERENCES users (id) ON DELETE CASCADE
    );
    CREATE INDEX IF NOT EXISTS idx_items_owner ON knowledge_items (owner_id);

    CREATE TABLE IF NOT EXISTS chunks (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        item_id TEXT NOT NULL,
        owner_id INTEGER NOT NULL,
        position INTEGER NOT NULL,
        content TEXT NOT NULL,
        embedding_json TEXT NOT NULL, -- JSON array of float32
        strategy TEXT NOT NULL,
        title TEXT NOT NULL,
        source_url TEXT,
        FOREIGN KEY (item_id) REFERENCES knowledge_items (id) ON DELETE CASCADE
    );
    CREATE INDEX IF NOT EXISTS idx_chunks_owner ON chunks (owner_id);
    CREATE INDEX IF NOT EXISTS idx_chunks_item ON chunks (item_id);

    CREATE TABLE IF NOT EXISTS conversations (
        id TEXT PRIMARY KEY, -- UUID
        owner_id INTEGER NOT NULL,
        title TEXT NOT NULL DEFAULT '',
        unread BOOLEAN NOT NULL DEFAULT FALSE,
        last_activity DATETIME DEFAULT CURRENT_TIMESTAMP,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (owner_id) REFERENCES users (id) ON DELETE CASCADE
    );
    CREATE INDEX IF NOT EXISTS idx_conversations_owner ON conversations (owner_id);

    CREATE TABLE IF NOT EXISTS messages (
        id TEXT PRIMARY KEY, -- UUID
        conversation_id TEXT NOT NULL,
        role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
        content TEXT NOT NULL,
        sources_json TEXT,
        negative_feedback BOOLEAN NOT NULL DEFAULT FALSE,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (conversation_id) REFERENCES conversations (id) ON DELETE CASCADE
    );
    CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages (conversation_id, created_at);

    CREATE TABLE IF NOT EXISTS usage_counters (
        account_id INTEGER PRIMARY KEY,
        messages_used INTEGER NOT NULL DEFAULT 0,
        tokens_used INTEGER NOT NULL DEFAULT 0,
        last_reset DATETIME NOT NULL,
        FOREIGN KEY (account_id) REFERENCES users (id) ON DELETE CASCADE
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

// User methods

func (s *SQLiteStore) GetUserByExternalID(externalUserID string) (*User, error) {
	var user User
	err := s.db.QueryRow("SELECT id, external_user_id, password_hash, created_at FROM users WHERE external_user_id = ?", externalUserID).
		Scan(&user.ID, &user.ExternalUserID, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

func (s *SQLiteStore) CreateUser(externalUserID, passwordHash string) (*User, error) {
	res, err := s.db.Exec("INSERT INTO users (external_user_id, password_hash) VALUES (?, ?)", externalUserID, passwordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	id, _ := res.LastInsertId()
	return s.getUserByID(id)
}

func (s *SQLiteStore) getUserByID(id int64) (*User, error) {
	var user User
	err := s.db.QueryRow("SELECT id, external_user_id, password_hash, created_at FROM users WHERE id = ?", id).
		Scan(&user.ID, &user.ExternalUserID, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return &user, nil
}

// Personality methods

// Personality returns the owner's configured personality, or defaults when
// none has been saved yet.
func (s *SQLiteStore) Personality(ownerID int64) (*Personality, error) {
	p := Personality{OwnerID: ownerID, Tone: "professional", Language: "mirror"}
	err := s.db.QueryRow(
		"SELECT bot_name, role, company, tone, language, instructions FROM personalities WHERE owner_id = ?", ownerID).
		Scan(&p.BotName, &p.Role, &p.Company, &p.Tone, &p.Language, &p.Instructions)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to query personality: %w", err)
	}
	return &p, nil
}

func (s *SQLiteStore) SavePersonality(p *Personality) error {
	_, err := s.db.Exec(`
        INSERT INTO personalities (owner_id, bot_name, role, company, tone, language, instructions)
        VALUES (?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (owner_id) DO UPDATE SET
            bot_name = excluded.bot_name,
            role = excluded.role,
            company = excluded.company,
            tone = excluded.tone,
            language = excluded.language,
            instructions = excluded.instructions`,
		p.OwnerID, p.BotName, p.Role, p.Company, p.Tone, p.Language, p.Instructions)
	if err != nil {
		return fmt.Errorf("failed to save personality: %w", err)
	}
	return nil
}
