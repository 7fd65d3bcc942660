// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestOpenInMemory verifies in-memory database creation works.
func TestOpenInMemory(t *testing.T) {
	db, err := OpenDB(InMemoryConfig())
	require.NoError(t, err)
	defer db.Close()

	assert.True(t, db.InMemory())
	assert.Empty(t, db.Path())

	ctx := context.Background()
	err = db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set([]byte("key"), []byte("value"))
	})
	require.NoError(t, err)

	err = db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("key"))
		require.NoError(t, err)

		return item.Value(func(val []byte) error {
			assert.Equal(t, []byte("value"), val)
			return nil
		})
	})
	require.NoError(t, err)
}

// TestOpenPersistentRequiresPath verifies the path validation.
func TestOpenPersistentRequiresPath(t *testing.T) {
	cfg := DefaultConfig()
	_, err := OpenDB(cfg)
	require.Error(t, err)
}

// TestCloseIsIdempotent verifies a second Close neither panics nor
// re-enters the GC runner's stop channel.
func TestCloseIsIdempotent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Path = t.TempDir()
	cfg.SyncWrites = false
	cfg.GCInterval = 50 * time.Millisecond

	db, err := OpenDB(cfg)
	require.NoError(t, err)

	require.NoError(t, db.Close())
	assert.NotPanics(t, func() { _ = db.Close() })
}

// TestGCRunnerStopTwice verifies Stop is safe to call repeatedly.
func TestGCRunnerStopTwice(t *testing.T) {
	db, err := OpenDB(InMemoryConfig())
	require.NoError(t, err)
	defer db.Close()

	runner, err := NewGCRunner(db.DB, 50*time.Millisecond, 0.5, nil)
	require.NoError(t, err)
	runner.Start()

	runner.Stop()
	assert.NotPanics(t, runner.Stop)
}
