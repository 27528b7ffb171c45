package main

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/replaying-eventstore-go/eventstore"
	"github.com/AntonStoeckl/replaying-eventstore-go/eventstore/jsonstream"
)

func Test_Run_When_RunTwiceOnTheSameFile_ReplaysTheFirstRun(t *testing.T) {
	// setup
	ctx := context.Background()
	cfg := Config{Backend: BackendJSONStream, Path: filepath.Join(t.TempDir(), "counter.json")}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	// act
	require.NoError(t, run(ctx, cfg, logger))
	require.NoError(t, run(ctx, cfg, logger))

	// assert
	log, err := jsonstream.New[eventstore.Event](cfg.Path)
	require.NoError(t, err)

	parser, err := newParser()
	require.NoError(t, err)

	store, err := eventstore.NewStore(Counter{}, log, parser, reduce)
	require.NoError(t, err)
	require.NoError(t, store.Initialize(ctx))

	assert.Equal(t, Counter{Count: 8}, store.GetState())
	assert.Len(t, store.CommittedEvents(), 6)
}

func Test_LoadConfig_When_TheBackendIsUnknown_ReturnsAnError(t *testing.T) {
	// arrange
	t.Setenv("COUNTER_BACKEND", "mongodb")

	// act
	_, err := loadConfig()

	// assert
	assert.ErrorContains(t, err, `unknown backend "mongodb"`)
}

func Test_LoadConfig_When_NothingIsSet_UsesTheJSONStreamBackend(t *testing.T) {
	// arrange
	t.Setenv("COUNTER_BACKEND", "")
	t.Setenv("COUNTER_LOG_LEVEL", "debug")

	// act
	cfg, err := loadConfig()

	// assert
	require.NoError(t, err)
	assert.Equal(t, BackendJSONStream, cfg.Backend)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}
