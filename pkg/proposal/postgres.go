package proposal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS tool_prompt_baselines (
		tool_name TEXT PRIMARY KEY,
		prompt_hash TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS proposals (
		proposal_id UUID PRIMARY KEY,
		tool_name TEXT NOT NULL,
		args_json JSONB NOT NULL,
		prompt_hash TEXT NOT NULL,
		composite_score DOUBLE PRECISION NOT NULL,
		decision TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS commits (
		commit_id UUID PRIMARY KEY,
		proposal_id UUID NOT NULL REFERENCES proposals (proposal_id),
		token_id TEXT,
		decision TEXT NOT NULL,
		verification_reason TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS nonces (
		nonce TEXT PRIMARY KEY,
		token_id TEXT NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL
	)`,
}

// PostgresStore is the Postgres-backed Store.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the proposal/commit tables if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("proposal store: ensure schema: %w", err)
		}
	}
	return nil
}

// BaselinePromptHash implements Store.
func (s *PostgresStore) BaselinePromptHash(ctx context.Context, toolName string) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT prompt_hash FROM tool_prompt_baselines WHERE tool_name = $1`, toolName).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("proposal store: baseline lookup: %w", err)
	}
	return hash, nil
}

// SetBaselinePromptHash implements Store.
func (s *PostgresStore) SetBaselinePromptHash(ctx context.Context, toolName, promptHash string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tool_prompt_baselines (tool_name, prompt_hash)
		 VALUES ($1, $2)
		 ON CONFLICT (tool_name) DO UPDATE SET prompt_hash = EXCLUDED.prompt_hash`,
		toolName, promptHash)
	if err != nil {
		return fmt.Errorf("proposal store: set baseline: %w", err)
	}
	return nil
}

// SaveProposal implements Store.
func (s *PostgresStore) SaveProposal(ctx context.Context, p Proposal) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO proposals (proposal_id, tool_name, args_json, prompt_hash, composite_score, decision, created_at)
		 VALUES ($1::uuid, $2, $3::jsonb, $4, $5, $6, $7)`,
		p.ProposalID, p.ToolName, p.ArgsJSON, p.PromptHash, p.CompositeScore, p.Decision, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("proposal store: save proposal: %w", err)
	}
	return nil
}

// GetProposal implements Store.
func (s *PostgresStore) GetProposal(ctx context.Context, proposalID string) (*Proposal, error) {
	var p Proposal
	err := s.db.QueryRowContext(ctx,
		`SELECT proposal_id, tool_name, args_json, prompt_hash, composite_score, decision, created_at
		 FROM proposals WHERE proposal_id = $1::uuid`, proposalID).
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
func (s *PostgresStore) SaveCommit(ctx context.Context, c Commit) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO commits (commit_id, proposal_id, token_id, decision, verification_reason, created_at)
		 VALUES ($1::uuid, $2::uuid, $3, $4, $5, $6)`,
		c.CommitID, c.ProposalID, nullable(c.TokenID), c.Decision, c.VerificationReason, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("proposal store: save commit: %w", err)
	}
	return nil
}

// NonceSeen implements Store. The purge, check and insert run in a single
// transaction so concurrent commits with the same nonce serialize on the
// primary key.
func (s *PostgresStore) NonceSeen(ctx context.Context, nonce, tokenID string, expiresAt time.Time) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return true, fmt.Errorf("proposal store: begin nonce tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM nonces WHERE expires_at <= NOW()`); err != nil {
		return true, fmt.Errorf("proposal store: purge nonces: %w", err)
	}

	var existing string
	err = tx.QueryRowContext(ctx, `SELECT nonce FROM nonces WHERE nonce = $1`, nonce).Scan(&existing)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return true, fmt.Errorf("proposal store: nonce lookup: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO nonces (nonce, token_id, expires_at) VALUES ($1, $2, $3)`,
		nonce, tokenID, expiresAt); err != nil {
		return true, fmt.Errorf("proposal store: record nonce: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return true, fmt.Errorf("proposal store: commit nonce tx: %w", err)
	}
	return false, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
