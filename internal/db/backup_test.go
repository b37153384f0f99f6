package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookcore/internal/model"
)

func TestBackupService_PerformBackup(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	seedResource(t, d, business, "Anna", model.ResourceStaff, 1)

	dir := filepath.Join(t.TempDir(), "backups")
	svc := NewBackupService(d, dir, time.Hour, 24*time.Hour)
	svc.now = func() time.Time { return time.Date(2026, 1, 5, 3, 0, 0, 0, time.UTC) }

	path, err := svc.PerformBackup(ctx)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "bookcore_20260105_030000.db"), path)

	restored, err := NewDB(path, nil)
	require.NoError(t, err)
	defer restored.Close()
	list, err := restored.ListResources(ctx, business)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = svc.PerformBackup(ctx)
	assert.Error(t, err, "same timestamp must not overwrite")
}

func TestCleanupBackups(t *testing.T) {
	d := newTestDB(t)
	dir := t.TempDir()

	old := filepath.Join(dir, "bookcore_old.db")
	fresh := filepath.Join(dir, "bookcore_fresh.db")
	foreign := filepath.Join(dir, "notes.txt")
	for _, p := range []string{old, fresh, foreign} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))
	}
	past := time.Now().Add(-72 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))
	require.NoError(t, os.Chtimes(foreign, past, past))

	deleted, err := d.CleanupBackups(dir, 48*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)
	assert.FileExists(t, foreign)

	deleted, err = d.CleanupBackups(dir, 0)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}
