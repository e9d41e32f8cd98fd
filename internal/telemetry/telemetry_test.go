package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitDisabledInstallsNoop(t *testing.T) {
	t.Setenv("CASESYNC_OTEL_ENABLED", "")
	require.False(t, Enabled())
	require.NoError(t, Init(context.Background(), "casesync", "test"))
	assert.Empty(t, shutdownFns)

	// Instruments must be usable against the no-op providers.
	s := NewSyncInstruments()
	ctx, span := s.Start(context.Background(), "pass")
	s.Record(ctx, "push", "created")
	s.PassDone(ctx, time.Now(), "success")
	s.End(span, errors.New("boom"))
	Shutdown(context.Background())
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "b", firstNonEmpty("", "b", "c"))
	assert.Equal(t, "", firstNonEmpty("", ""))
}
