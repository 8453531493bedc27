package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/isocatalog/internal/progress"
)

func TestLogSinkWritesStructuredFields(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.DebugLevel)
	sink := NewLogSink(zap.New(core))

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{{
		RunID:  progress.UUIDToBytes(uuid.New()),
		TS:     time.Now(),
		Stage:  progress.StageRecordDropped,
		Source: "freebsd",
		Record: "14.1 disc1 x86_64",
		Reason: progress.ReasonUnresolvable,
	}}))

	entries := logs.FilterMessage("Progress event").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "RECORD_DROPPED", fields["stage"])
	require.Equal(t, "freebsd", fields["source"])
	require.Equal(t, progress.ReasonUnresolvable, fields["reason"])
	require.NotContains(t, fields, "count")
}
