package sinklog

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayneeseguin/sinklog/pkg/types"
)

type reload struct {
	fc  *FileConfig
	err error
}

func waitReload(t *testing.T, ch <-chan reload) reload {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
		return reload{}
	}
}

// replaceFile swaps in new content atomically, as editors do
func replaceFile(t *testing.T, path, content string) {
	t.Helper()
	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte(content), 0o644))
	require.NoError(t, os.Rename(tmp, path))
}

func TestWatchConfig_AppliesLevel(t *testing.T) {
	path := writeConfig(t, "watched.yaml", "level: info\n")
	l := newTestLogger(t)

	reloads := make(chan reload, 8)
	w, err := WatchConfig(path, l,
		WithDebounce(20*time.Millisecond),
		OnReload(func(fc *FileConfig, err error) { reloads <- reload{fc, err} }),
	)
	require.NoError(t, err)
	defer w.Close()

	replaceFile(t, path, "level: verbose\nisolated_levels: [error]\n")
	r := waitReload(t, reloads)
	require.NoError(t, r.err)
	assert.Equal(t, types.SeverityVerbose, l.GetLevel())
	assert.Equal(t, uint32(types.SeverityError), l.isolated.Load())
}

func TestWatchConfig_KeepsLevelOnBadFile(t *testing.T) {
	path := writeConfig(t, "watched.yaml", "level: warn\n")
	errs := &errorLog{}
	l := newTestLogger(t, WithLevel(types.SeverityWarning), WithErrorHandler(errs.handle))

	reloads := make(chan reload, 8)
	w, err := WatchConfig(path, l,
		WithDebounce(20*time.Millisecond),
		OnReload(func(fc *FileConfig, err error) { reloads <- reload{fc, err} }),
	)
	require.NoError(t, err)

	replaceFile(t, path, "level: shouting\n")
	r := waitReload(t, reloads)
	assert.ErrorIs(t, r.err, types.ErrInvalidConfig)
	assert.Equal(t, types.SeverityWarning, l.GetLevel())
	assert.GreaterOrEqual(t, errs.count(types.ErrInvalidConfig), 1)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
}

func TestWatchConfig_RejectsUnknownExtension(t *testing.T) {
	l := newTestLogger(t)
	_, err := WatchConfig("logger.conf", l)
	assert.ErrorIs(t, err, types.ErrInvalidConfig)
}
