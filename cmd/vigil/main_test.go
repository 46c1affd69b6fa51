package main

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/vigil/pkg/fallback"
	"github.com/Mindburn-Labs/vigil/pkg/intercept"
	"github.com/Mindburn-Labs/vigil/pkg/mcp"
	"github.com/Mindburn-Labs/vigil/pkg/proposal"
	"github.com/Mindburn-Labs/vigil/pkg/registry"
)

func TestRunHelp(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"vigil", "help"}, &stdout, &stderr)
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout.String(), "USAGE")
}

func TestRunUnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"vigil", "frobnicate"}, &stdout, &stderr)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr.String(), "Unknown command")
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("WARNING"))
	assert.Equal(t, slog.LevelError, parseLogLevel("ERROR"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("anything-else"))
}

func TestRegisterDemoTools(t *testing.T) {
	reg := registry.New()
	ic, err := intercept.New("vigil-test", intercept.WithRegistry(reg))
	require.NoError(t, err)

	store := proposal.NewMemoryStore()
	tokens := proposal.NewCommitTokenManager("test-secret")
	gateway := mcp.NewGateway(mcp.DefaultGatewayConfig(), reg, ic,
		proposal.NewProposer(store, tokens),
		proposal.NewCommitVerifier(store, tokens))

	require.NoError(t, registerDemoTools(gateway, fallback.NewRouter()))

	wire := reg.Get("initiate_wire_transfer")
	assert.Equal(t, registry.CriticalityHigh, wire.Criticality)
	assert.True(t, wire.Irreversible)

	refund := reg.Get("issue_invoice_refund")
	assert.Equal(t, registry.CriticalityMedium, refund.Criticality)
	assert.Len(t, reg.All(), 10)
}
