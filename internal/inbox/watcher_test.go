package inbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recorder records imported paths and fails files whose name contains "bad".
type recorder struct {
	mu    sync.Mutex
	names []string
}

func (r *recorder) ImportFile(ctx context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := filepath.Base(path)
	r.names = append(r.names, name)
	if strings.HasPrefix(name, "bad") {
		return errors.New("row 3: invalid amount")
	}
	return nil
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...)
}

func start(t *testing.T, dir string, imp Importer) *Watcher {
	t.Helper()
	w, err := New(Config{Dir: dir, Debounce: 30 * time.Millisecond}, imp, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { require.NoError(t, w.Stop()) })
	return w
}

func write(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("workbook"), 0o644))
}

func TestWatcherImportsDroppedFiles(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	w := start(t, dir, rec)

	write(t, filepath.Join(dir, "may.xlsx"))
	write(t, filepath.Join(dir, "notes.txt"))
	write(t, filepath.Join(dir, "~$may.xlsx"))

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, ProcessedDir, "may.xlsx"))
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{"may.xlsx"}, rec.seen())
	assert.Equal(t, int64(1), w.Processed())
	assert.NoFileExists(t, filepath.Join(dir, "may.xlsx"))
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))
}

func TestWatcherMovesFailuresAside(t *testing.T) {
	dir := t.TempDir()
	w := start(t, dir, &recorder{})

	write(t, filepath.Join(dir, "bad.xlsx"))

	errFile := filepath.Join(dir, FailedDir, "bad.xlsx.err")
	require.Eventually(t, func() bool {
		_, err := os.Stat(errFile)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	msg, err := os.ReadFile(errFile)
	require.NoError(t, err)
	assert.Equal(t, "row 3: invalid amount\n", string(msg))
	assert.FileExists(t, filepath.Join(dir, FailedDir, "bad.xlsx"))
	assert.Equal(t, int64(1), w.Failed())
}

func TestWatcherPicksUpWaitingFiles(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "waiting.xlsx"))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ProcessedDir), 0o755))
	write(t, filepath.Join(dir, ProcessedDir, "waiting.xlsx"))

	rec := &recorder{}
	start(t, dir, rec)

	require.Eventually(t, func() bool { return len(rec.seen()) == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		entries, err := os.ReadDir(filepath.Join(dir, ProcessedDir))
		return err == nil && len(entries) == 2
	}, 2*time.Second, 10*time.Millisecond, "a name clash gets a timestamp prefix")
}

func TestNewValidates(t *testing.T) {
	_, err := New(Config{}, &recorder{}, nil)
	assert.Error(t, err)
	_, err = New(Config{Dir: t.TempDir()}, nil, nil)
	assert.Error(t, err)
}

func TestImporterFunc(t *testing.T) {
	var got string
	f := ImporterFunc(func(ctx context.Context, path string) error {
		got = path
		return nil
	})
	require.NoError(t, f.ImportFile(context.Background(), "x.xlsx"))
	assert.Equal(t, "x.xlsx", got)
}

func TestWanted(t *testing.T) {
	assert.True(t, wanted("May.XLSX"))
	assert.False(t, wanted(".hidden.xlsx"))
	assert.False(t, wanted("~$lock.xlsx"))
	assert.False(t, wanted("data.csv"))
}
