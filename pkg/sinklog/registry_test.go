package sinklog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testhelpers "github.com/wayneeseguin/sinklog/internal/testing"
	"github.com/wayneeseguin/sinklog/pkg/types"
)

func TestRegistry_CreateAndLookup(t *testing.T) {
	r := NewRegistry()
	t.Cleanup(func() { _ = r.Close(context.Background()) })

	db, err := r.Create("db")
	require.NoError(t, err)
	_, err = r.Create("audio", WithAsync(8))
	require.NoError(t, err)

	got, ok := r.Get("db")
	require.True(t, ok)
	assert.Same(t, db, got)
	assert.True(t, r.Contains("audio"))
	assert.False(t, r.Contains("ui"))
	assert.Equal(t, []string{"audio", "db"}, r.Names())
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_DuplicateName(t *testing.T) {
	r := NewRegistry()
	t.Cleanup(func() { _ = r.Close(context.Background()) })

	_, err := r.Create("db")
	require.NoError(t, err)

	_, err = r.Create("db")
	assert.ErrorIs(t, err, types.ErrLoggerExists)

	other, err := New("db")
	require.NoError(t, err)
	defer other.Close()
	assert.ErrorIs(t, r.Add(other), types.ErrLoggerExists)
	assert.ErrorIs(t, r.Add(nil), types.ErrInvalidConfig)
}

func TestRegistry_RemoveLeavesLoggerOpen(t *testing.T) {
	r := NewRegistry()
	l, err := New("net")
	require.NoError(t, err)
	require.NoError(t, r.Add(l))

	removed, ok := r.Remove("net")
	require.True(t, ok)
	assert.Same(t, l, removed)
	assert.False(t, removed.IsClosed())
	assert.False(t, r.Contains("net"))

	_, ok = r.Remove("net")
	assert.False(t, ok)
	require.NoError(t, l.Close())
}

func TestRegistry_CloseShutsDownEveryLogger(t *testing.T) {
	r := NewRegistry()
	mem := testhelpers.NewMemorySink()

	a, err := r.Create("a", WithSink(mem))
	require.NoError(t, err)
	b, err := r.Create("b", WithAsync(4))
	require.NoError(t, err)

	require.NoError(t, a.Info("before close"))
	require.NoError(t, r.Close(context.Background()))

	assert.True(t, a.IsClosed())
	assert.True(t, b.IsClosed())
	assert.Equal(t, 1, mem.Closes())
	assert.Empty(t, r.Names())

	// the name is free again
	c, err := r.Create("a")
	require.NoError(t, err)
	require.NoError(t, c.Close())
}
