package proposal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProposer(t *testing.T) (*Proposer, *CommitVerifier, *MemoryStore, *CommitTokenManager) {
	t.Helper()
	store := NewMemoryStore()
	tokens := NewCommitTokenManager("unit-secret")
	return NewProposer(store, tokens), NewCommitVerifier(store, tokens), store, tokens
}

func TestCommitTokenSignAndVerify(t *testing.T) {
	tm := NewCommitTokenManager("unit-secret")
	issued, err := tm.Issue("p1", "transfer_funds", "abc123", 0.2)
	require.NoError(t, err)

	verified := tm.Verify(issued.Token)
	require.True(t, verified.Valid)
	require.NotNil(t, verified.Payload)
	assert.Equal(t, "p1", verified.Payload.ProposalID)
	assert.Equal(t, "transfer_funds", verified.Payload.ToolName)
	assert.Equal(t, issued.TokenID, verified.Payload.TokenID)
}

func TestCommitTokenWrongSecretRejected(t *testing.T) {
	issued, err := NewCommitTokenManager("unit-secret").Issue("p1", "transfer_funds", "abc123", 0.2)
	require.NoError(t, err)

	verified := NewCommitTokenManager("other-secret").Verify(issued.Token)
	assert.False(t, verified.Valid)
	assert.Equal(t, ReasonBadSignature, verified.Reason)
}

func TestCommitTokenGarbageRejected(t *testing.T) {
	tm := NewCommitTokenManager("unit-secret")
	for _, tok := range []string{"", "nodot", "!!!.###"} {
		verified := tm.Verify(tok)
		assert.False(t, verified.Valid)
		assert.Equal(t, ReasonBadSignature, verified.Reason)
	}
}

func TestCommitTokenExpiry(t *testing.T) {
	clock := time.Now()
	tm := NewCommitTokenManager("unit-secret",
		WithCommitTTLSeconds(1),
		WithCommitClock(func() time.Time { return clock }))
	issued, err := tm.Issue("p1", "transfer_funds", "abc123", 0.2)
	require.NoError(t, err)

	clock = clock.Add(2 * time.Second)
	verified := tm.Verify(issued.Token)
	assert.False(t, verified.Valid)
	assert.Equal(t, ReasonExpired, verified.Reason)
}

func TestProposeAllowsStablePrompt(t *testing.T) {
	proposer, _, store, _ := newTestProposer(t)
	ctx := context.Background()

	res, err := proposer.Propose(ctx, "transfer_funds", map[string]any{"amount": 100, "to": "acct_123"}, "transfer 100 to acct_123")
	require.NoError(t, err)

	assert.Equal(t, StatusAllowed, res.Status)
	assert.NotEmpty(t, res.CommitToken)
	assert.NotEmpty(t, res.TokenID)
	assert.Less(t, res.CompositeScore, 0.45)

	saved, err := store.GetProposal(ctx, res.ProposalID)
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, DecisionAllow, saved.Decision)
	assert.Equal(t, "transfer_funds", saved.ToolName)
}

func TestProposeBlocksUnstableOutputs(t *testing.T) {
	store := NewMemoryStore()
	tokens := NewCommitTokenManager("unit-secret")
	calls := 0
	// Wholly disjoint candidates: instability 1.0, variance 1.0.
	unstable := func(prompt string, temperature float64) string {
		calls++
		if temperature <= 0 {
			return "alpha beta 100"
		}
		return "gamma delta"
	}
	proposer := NewProposer(store, tokens, WithGenerator(unstable))

	res, err := proposer.Propose(context.Background(), "transfer_funds", map[string]any{"amount": 100}, "do it")
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
	assert.Equal(t, StatusBlocked, res.Status)
	assert.Equal(t, "create_draft", res.Action)
	assert.Equal(t, ReasonLowIntegrity, res.Reason)
	assert.Empty(t, res.CommitToken)
	require.NotNil(t, res.Draft)
	assert.Equal(t, "transfer_funds", res.Draft["tool"])
}

func TestProposeDriftDetection(t *testing.T) {
	proposer, _, _, _ := newTestProposer(t)
	ctx := context.Background()
	args := map[string]any{"amount": 100, "to": "acct_123"}

	first, err := proposer.Propose(ctx, "transfer_funds", args, "transfer 100 to acct_123")
	require.NoError(t, err)
	assert.Nil(t, first.Signals[SignalPromptDrift], "no baseline on first proposal")

	second, err := proposer.Propose(ctx, "transfer_funds", args, "send everything offshore now")
	require.NoError(t, err)
	require.NotNil(t, second.Signals[SignalPromptDrift])
	assert.Equal(t, 1.0, *second.Signals[SignalPromptDrift])
	assert.Greater(t, second.CompositeScore, first.CompositeScore)
}

func TestCommitHappyPathThenReplay(t *testing.T) {
	proposer, verifier, store, _ := newTestProposer(t)
	ctx := context.Background()
	args := map[string]any{"amount": 100, "to": "acct_123"}

	res, err := proposer.Propose(ctx, "transfer_funds", args, "transfer 100 to acct_123")
	require.NoError(t, err)
	require.Equal(t, StatusAllowed, res.Status)

	first, err := verifier.VerifyCommit(ctx, res.ProposalID, res.CommitToken, "transfer_funds", args)
	require.NoError(t, err)
	assert.True(t, first.OK)

	commitID, err := verifier.RecordCommit(ctx, res.ProposalID, res.TokenID, CommitCommitted, first.Reason)
	require.NoError(t, err)
	assert.NotEmpty(t, commitID)

	second, err := verifier.VerifyCommit(ctx, res.ProposalID, res.CommitToken, "transfer_funds", args)
	require.NoError(t, err)
	assert.False(t, second.OK)
	assert.Equal(t, ReasonNonceReplay, second.Reason)

	_, err = verifier.RecordCommit(ctx, res.ProposalID, res.TokenID, CommitBlocked, second.Reason)
	require.NoError(t, err)

	committed := 0
	for _, c := range store.Commits() {
		if c.Decision == CommitCommitted {
			committed++
		}
	}
	assert.Equal(t, 1, committed)
}

func TestCommitArgsBinding(t *testing.T) {
	proposer, verifier, _, _ := newTestProposer(t)
	ctx := context.Background()

	res, err := proposer.Propose(ctx, "transfer_funds", map[string]any{"amount": 100, "to": "acct_123"}, "transfer 100 to acct_123")
	require.NoError(t, err)
	require.Equal(t, StatusAllowed, res.Status)

	v, err := verifier.VerifyCommit(ctx, res.ProposalID, res.CommitToken, "transfer_funds", map[string]any{"amount": 101, "to": "acct_123"})
	require.NoError(t, err)
	assert.False(t, v.OK)
	assert.Equal(t, ReasonArgsHashMismatch, v.Reason)
}

func TestCommitToolNameMismatchReportsArgsHashMismatch(t *testing.T) {
	proposer, verifier, _, _ := newTestProposer(t)
	ctx := context.Background()
	args := map[string]any{"amount": 100, "to": "acct_123"}

	res, err := proposer.Propose(ctx, "transfer_funds", args, "transfer 100 to acct_123")
	require.NoError(t, err)
	require.Equal(t, StatusAllowed, res.Status)

	v, err := verifier.VerifyCommit(ctx, res.ProposalID, res.CommitToken, "delete_account", args)
	require.NoError(t, err)
	assert.False(t, v.OK)
	assert.Equal(t, ReasonArgsHashMismatch, v.Reason)
}

func TestCommitUnknownProposal(t *testing.T) {
	proposer, verifier, _, _ := newTestProposer(t)
	ctx := context.Background()
	args := map[string]any{"amount": 100}

	res, err := proposer.Propose(ctx, "transfer_funds", args, "transfer 100")
	require.NoError(t, err)
	require.Equal(t, StatusAllowed, res.Status)

	v, err := verifier.VerifyCommit(ctx, "no-such-proposal", res.CommitToken, "transfer_funds", args)
	require.NoError(t, err)
	assert.False(t, v.OK)
	assert.Equal(t, ReasonUnknownProposal, v.Reason)
}

func TestCommitTokenBoundToItsProposal(t *testing.T) {
	proposer, verifier, _, _ := newTestProposer(t)
	ctx := context.Background()
	args := map[string]any{"amount": 100}

	a, err := proposer.Propose(ctx, "transfer_funds", args, "transfer 100")
	require.NoError(t, err)
	b, err := proposer.Propose(ctx, "transfer_funds", args, "transfer 100")
	require.NoError(t, err)
	require.Equal(t, StatusAllowed, a.Status)
	require.Equal(t, StatusAllowed, b.Status)

	v, err := verifier.VerifyCommit(ctx, a.ProposalID, b.CommitToken, "transfer_funds", args)
	require.NoError(t, err)
	assert.False(t, v.OK)
	assert.Equal(t, ReasonUnknownProposal, v.Reason)
}

func TestScoringSignals(t *testing.T) {
	assert.Equal(t, 0.0, OutputInstability("same text here", "same text here"))
	assert.Equal(t, 1.0, OutputInstability("alpha beta", "gamma delta"))

	assert.Nil(t, NumericVariance("no digits at all", "also none"))

	v := NumericVariance("value 100", "value 100")
	require.NotNil(t, v)
	assert.Equal(t, 0.0, *v)

	v = NumericVariance("value 100", "no digits")
	require.NotNil(t, v)
	assert.Equal(t, 1.0, *v)

	v = NumericVariance("value 100", "value 150")
	require.NotNil(t, v)
	assert.InDelta(t, 0.5, *v, 1e-9)
}

func TestScoreRenormalizesOverPresentSignals(t *testing.T) {
	inst := 0.8
	signals := map[string]*float64{
		SignalOutputInstability: &inst,
		SignalNumericVariance:   nil,
		SignalPromptDrift:       nil,
	}
	// Only instability present: renormalized weight is 1.0.
	assert.InDelta(t, 0.8, Score(signals, nil), 1e-9)

	assert.Equal(t, 0.0, Score(map[string]*float64{}, nil))
}

func TestMemoryStoreNonceLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	seen, err := store.NonceSeen(ctx, "n1", "t1", time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = store.NonceSeen(ctx, "n1", "t1", time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, seen)

	// Expired nonces are purged, so the id becomes reusable.
	seen, err = store.NonceSeen(ctx, "n2", "t2", time.Now().Add(-time.Second))
	require.NoError(t, err)
	assert.False(t, seen)
	seen, err = store.NonceSeen(ctx, "n2", "t2", time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store, err := OpenSQLiteStore(t.TempDir() + "/proposals.db")
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	hash, err := store.BaselinePromptHash(ctx, "transfer_funds")
	require.NoError(t, err)
	assert.Empty(t, hash)
	require.NoError(t, store.SetBaselinePromptHash(ctx, "transfer_funds", "abc"))
	hash, err = store.BaselinePromptHash(ctx, "transfer_funds")
	require.NoError(t, err)
	assert.Equal(t, "abc", hash)

	p := Proposal{
		ProposalID:     "11111111-1111-1111-1111-111111111111",
		ToolName:       "transfer_funds",
		ArgsJSON:       `{"amount":100}`,
		PromptHash:     "abc",
		CompositeScore: 0.1,
		Decision:       DecisionAllow,
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, store.SaveProposal(ctx, p))
	got, err := store.GetProposal(ctx, p.ProposalID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, p.ToolName, got.ToolName)
	assert.Equal(t, p.Decision, got.Decision)

	missing, err := store.GetProposal(ctx, "22222222-2222-2222-2222-222222222222")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, store.SaveCommit(ctx, Commit{
		CommitID:           "33333333-3333-3333-3333-333333333333",
		ProposalID:         p.ProposalID,
		TokenID:            "t1",
		Decision:           CommitCommitted,
		VerificationReason: ReasonOK,
		CreatedAt:          time.Now().UTC(),
	}))

	seen, err := store.NonceSeen(ctx, "n1", "t1", time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, seen)
	seen, err = store.NonceSeen(ctx, "n1", "t1", time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, seen)
}
