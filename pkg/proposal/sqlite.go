package proposal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS tool_prompt_baselines (
		tool_name TEXT PRIMARY KEY,
		prompt_hash TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS proposals (
		proposal_id TEXT PRIMARY KEY,
		tool_name TEXT NOT NULL,
		args_json TEXT NOT NULL,
		prompt_hash TEXT NOT NULL,
		composite_score REAL NOT NULL,
		decision TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS commits (
		commit_id TEXT PRIMARY KEY,
		proposal_id TEXT NOT NULL,
		token_id TEXT,
		decision TEXT NOT NULL,
		verification_reason TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS nonces (
		nonce TEXT PRIMARY KEY,
		token_id TEXT NOT NULL,
		expires_at TIMESTAMP NOT NULL
	)`,
}

// SQLiteStore is a single-file Store for development and air-gapped runs.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (or creates) the database at path and migrates it.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("proposal store: open sqlite: %w", err)
	}
	// modernc sqlite serializes access through a single connection.
	db.SetMaxOpenConns(1)
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	for _, stmt := range sqliteSchema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("proposal store: migrate sqlite: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// BaselinePromptHash implements Store.
func (s *SQLiteStore) BaselinePromptHash(ctx context.Context, toolName string) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT prompt_hash FROM tool_prompt_baselines WHERE tool_name = ?`, toolName).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("proposal store: baseline lookup: %w", err)
	}
	return hash, nil
}

// SetBaselinePromptHash implements Store.
func (s *SQLiteStore) SetBaselinePromptHash(ctx context.Context, toolName, promptHash string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tool_prompt_baselines (tool_name, prompt_hash) VALUES (?, ?)
		 ON CONFLICT (tool_name) DO UPDATE SET prompt_hash = excluded.prompt_hash`,
		toolName, promptHash)
	if err != nil {
		return fmt.Errorf("proposal store: set baseline: %w", err)
	}
	return nil
}

// SaveProposal implements Store.
func (s *SQLiteStore) SaveProposal(ctx context.Context, p Proposal) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO proposals (proposal_id, tool_name, args_json, prompt_hash, composite_score, decision, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ProposalID, p.ToolName, p.ArgsJSON, p.PromptHash, p.CompositeScore, p.Decision, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("proposal store: save proposal: %w", err)
	}
	return nil
}

// GetProposal implements Store.
func (s *SQLiteStore) GetProposal(ctx context.Context, proposalID string) (*Proposal, error) {
	var p Proposal
	err := s.db.QueryRowContext(ctx,
		`SELECT proposal_id, tool_name, args_json, prompt_hash, composite_score, decision, created_at
		 FROM proposals WHERE proposal_id = ?`, proposalID).
		Scan(&p.ProposalID, &p.ToolName, &p.ArgsJSON, &p.PromptHash, &p.CompositeScore, &p.Decision, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("proposal store: get proposal: %w", err)
	}
	return &p, nil
}

// SaveCommit implements Store.
func (s *SQLiteStore) SaveCommit(ctx context.Context, c Commit) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO commits (commit_id, proposal_id, token_id, decision, verification_reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.CommitID, c.ProposalID, nullable(c.TokenID), c.Decision, c.VerificationReason, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("proposal store: save commit: %w", err)
	}
	return nil
}

// NonceSeen implements Store.
func (s *SQLiteStore) NonceSeen(ctx context.Context, nonce, tokenID string, expiresAt time.Time) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return true, fmt.Errorf("proposal store: begin nonce tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM nonces WHERE expires_at <= ?`, time.Now().UTC()); err != nil {
		return true, fmt.Errorf("proposal store: purge nonces: %w", err)
	}

	var existing string
	err = tx.QueryRowContext(ctx, `SELECT nonce FROM nonces WHERE nonce = ?`, nonce).Scan(&existing)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return true, fmt.Errorf("proposal store: nonce lookup: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO nonces (nonce, token_id, expires_at) VALUES (?, ?, ?)`,
		nonce, tokenID, expiresAt); err != nil {
		return true, fmt.Errorf("proposal store: record nonce: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return true, fmt.Errorf("proposal store: commit nonce tx: %w", err)
	}
	return false, nil
}
