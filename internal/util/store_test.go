package util

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshot struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

func TestSaveLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "window.json")

	var got snapshot
	assert.ErrorIs(t, LoadJSON(path, &got), ErrNoSnapshot)

	require.NoError(t, SaveJSON(path, snapshot{Date: "2026-10-16", Count: 3}))
	require.NoError(t, LoadJSON(path, &got))
	assert.Equal(t, snapshot{Date: "2026-10-16", Count: 3}, got)

	_, err := os.Stat(path + ".bak")
	assert.NoError(t, err)

	require.NoError(t, SaveJSON(path, snapshot{Date: "2026-10-16", Count: 4}))
	require.NoError(t, LoadJSON(path, &got))
	assert.Equal(t, 4, got.Count)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadJSONCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "window.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	var got snapshot
	err := LoadJSON(path, &got)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoSnapshot))
}

func TestPidLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "polyguard.pid")

	f, err := AcquirePidLock(path)
	require.NoError(t, err)

	_, err = AcquirePidLock(path)
	assert.Error(t, err)

	ReleasePidLock(f)
	_, err = os.Stat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	f, err = AcquirePidLock(path)
	require.NoError(t, err)
	ReleasePidLock(f)
	ReleasePidLock(nil)
}

func TestPidLockTakesOverStaleFile(t *testing.T) {
	dir := t.TempDir()
	for name, content := range map[string]string{
		"dead pid": "999999999\n", // above any kernel pid_max
		"garbage":  "not-a-pid",
		"empty":    "",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".pid")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

			f, err := AcquirePidLock(path)
			require.NoError(t, err)
			defer ReleasePidLock(f)

			b, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, fmt.Sprintf("%d\n", os.Getpid()), string(b))
		})
	}
}

func TestPidLockLiveOwnerBlocks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "polyguard.pid")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o600))

	_, err := AcquirePidLock(path)
	assert.Error(t, err)
}
