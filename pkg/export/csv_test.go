package export

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dbradf/evg-patch-history/pkg/patch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRecords = []patch.Record{
	{ID: "b", Author: "dev", Alias: "", BuildVariant: "linux", Tasks: "t1|t2", NTasks: 2},
	{ID: "b", Author: "dev", Alias: "", BuildVariant: "windows", Tasks: "t3", NTasks: 1},
	{ID: "c", Author: "o'neil, j", Alias: "required", BuildVariant: "macos", Tasks: "", NTasks: 0},
}

const wantCSV = `id,author,alias,build_variant,tasks,n_tasks
b,dev,,linux,t1|t2,2
b,dev,,windows,t3,1
c,"o'neil, j",required,macos,,0
`

func TestCSVWriter_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "patches.csv")

	w := NewCSVWriter(path)
	require.NoError(t, w.WriteRecords(context.Background(), testRecords))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, wantCSV, string(data))

	// Only the final file is left behind
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCSVWriter_ReplacesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patches.csv")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o644))

	require.NoError(t, NewCSVWriter(path).WriteRecords(context.Background(), nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "id,author,alias,build_variant,tasks,n_tasks\n", string(data))
}

func TestCSVWriter_Stdout(t *testing.T) {
	var buf bytes.Buffer
	w := NewCSVWriter(Stdout)
	w.stdout = &buf

	require.NoError(t, w.WriteRecords(context.Background(), testRecords))
	assert.Equal(t, wantCSV, buf.String())
}

func TestCSVWriter_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "patches.csv")

	err := NewCSVWriter(path).WriteRecords(context.Background(), testRecords)
	assert.Error(t, err)
	assert.NoFileExists(t, path)
}

func TestCSVWriter_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	path := filepath.Join(t.TempDir(), "patches.csv")
	assert.ErrorIs(t, NewCSVWriter(path).WriteRecords(ctx, testRecords), context.Canceled)
	assert.NoFileExists(t, path)
}
