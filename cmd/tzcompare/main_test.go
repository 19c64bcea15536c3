package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeGROOVE-dev/tzcompare/pkg/board"
	"github.com/codeGROOVE-dev/tzcompare/pkg/directory"
)

// run executes the CLI offline against the built-in city list.
func run(t *testing.T, store string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append(args, "--no-cache", "--no-color", "--store", store))
	err := cmd.Execute()
	return out.String(), err
}

func decodeRows(t *testing.T, s string) []board.Row {
	t.Helper()
	var rows []board.Row
	require.NoError(t, json.Unmarshal([]byte(s), &rows))
	return rows
}

func TestNowJSON(t *testing.T) {
	store := filepath.Join(t.TempDir(), "s.db")
	out, err := run(t, store, "now", "--json", "--at", "2025-01-15T12:00:00Z", "Sydney", "London", "Tokyo")
	require.NoError(t, err)

	rows := decodeRows(t, out)
	require.Len(t, rows, 3)
	assert.Equal(t, "London", rows[0].City)
	assert.Equal(t, "Tokyo", rows[1].City)
	assert.Equal(t, "Sydney", rows[2].City)

	assert.True(t, rows[2].IsDST, "January is summer in Sydney")
	assert.Equal(t, 660, rows[2].OffsetMinutes)
	assert.Equal(t, "UTC+11:00", rows[2].OffsetLabel)
	assert.Equal(t, 23, rows[2].Local.Hour())
	assert.False(t, rows[0].IsDST)
	assert.Equal(t, 12, rows[0].Local.Hour())
}

func TestNowPastMode(t *testing.T) {
	store := filepath.Join(t.TempDir(), "s.db")
	out, err := run(t, store, "now", "--json", "--at", "2025-01-15T12:00:00Z", "--mode", "past", "--delta", "3h", "London")
	require.NoError(t, err)

	rows := decodeRows(t, out)
	require.Len(t, rows, 1)
	assert.Equal(t, 9, rows[0].Local.Hour())
}

func TestNowTable(t *testing.T) {
	store := filepath.Join(t.TempDir(), "s.db")
	out, err := run(t, store, "now", "--at", "2025-07-01T00:00:00Z", "Tokyo")
	require.NoError(t, err)
	assert.Contains(t, out, "Tokyo")
	assert.Contains(t, out, "UTC+09:00")
	assert.Contains(t, out, "never")
}

func TestNowUnknownCity(t *testing.T) {
	store := filepath.Join(t.TempDir(), "s.db")
	_, err := run(t, store, "now", "Atlantis")
	require.Error(t, err)
	assert.ErrorIs(t, err, directory.ErrNotFound)
}

func TestCacheTTLMustBePositive(t *testing.T) {
	store := filepath.Join(t.TempDir(), "s.db")
	for _, ttl := range []string{"0", "-1h"} {
		_, err := run(t, store, "now", "--cache-ttl", ttl, "London")
		require.Error(t, err, ttl)
		assert.Contains(t, err.Error(), "--cache-ttl must be positive")
	}

	_, err := run(t, store, "now", "--cache-ttl", "1m", "--at", "2025-01-15T12:00:00Z", "London")
	assert.NoError(t, err)
}

func TestNowWithoutSelections(t *testing.T) {
	store := filepath.Join(t.TempDir(), "s.db")
	_, err := run(t, store, "now")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "none saved")
}

func TestConvert(t *testing.T) {
	store := filepath.Join(t.TempDir(), "s.db")
	out, err := run(t, store, "convert", "--json", "--from", "London", "--time", "2025-01-15 09:00", "Tokyo")
	require.NoError(t, err)

	rows := decodeRows(t, out)
	require.Len(t, rows, 2)
	assert.Equal(t, "London", rows[0].City)
	assert.Equal(t, "Tokyo", rows[1].City)
	assert.Equal(t, 18, rows[1].Local.Hour())
}

func TestConvertBadTime(t *testing.T) {
	store := filepath.Join(t.TempDir(), "s.db")
	_, err := run(t, store, "convert", "--from", "London", "--time", "noon", "Tokyo")
	assert.Error(t, err)
}

func TestSearch(t *testing.T) {
	store := filepath.Join(t.TempDir(), "s.db")
	out, err := run(t, store, "search", "--json", "syd")
	require.NoError(t, err)

	var cities []directory.City
	require.NoError(t, json.Unmarshal([]byte(out), &cities))
	require.NotEmpty(t, cities)
	assert.Equal(t, "Sydney", cities[0].Name)
}

func TestSavedLifecycle(t *testing.T) {
	store := filepath.Join(t.TempDir(), "s.db")

	_, err := run(t, store, "saved", "add", "tokyo", "London")
	require.NoError(t, err)

	out, err := run(t, store, "saved", "list")
	require.NoError(t, err)
	assert.Equal(t, []string{"Tokyo", "London"}, strings.Fields(out))

	out, err = run(t, store, "now", "--json", "--at", "2025-01-15T12:00:00Z")
	require.NoError(t, err)
	assert.Len(t, decodeRows(t, out), 2)

	_, err = run(t, store, "saved", "add", "Atlantis")
	assert.ErrorIs(t, err, directory.ErrNotFound)

	_, err = run(t, store, "saved", "remove", "TOKYO")
	require.NoError(t, err)
	out, err = run(t, store, "saved", "list")
	require.NoError(t, err)
	assert.Equal(t, []string{"London"}, strings.Fields(out))

	_, err = run(t, store, "saved", "clear")
	require.NoError(t, err)
	out, err = run(t, store, "saved", "list")
	require.NoError(t, err)
	assert.Empty(t, strings.TrimSpace(out))
}
