package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "vigil", cfg.ServiceName)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
	assert.Equal(t, 1.0, cfg.SampleRate)
	assert.True(t, cfg.Enabled)
	assert.False(t, cfg.Insecure)
}

func TestDisabledProviderIsNoop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false

	p, err := New(context.Background(), cfg)
	require.NoError(t, err)

	// Every recording path must tolerate uninitialized instruments.
	p.RecordCall(context.Background())
	p.RecordBlock(context.Background())
	p.RecordError(context.Background(), errors.New("boom"))

	ctx, done := p.TrackCall(context.Background(), "tool.call")
	assert.NotNil(t, ctx)
	done(nil)
	done(errors.New("late error"))

	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestDisabledProviderStillServesTracerAndMeter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false

	p, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotNil(t, p.Tracer())
	assert.NotNil(t, p.Meter())
}
