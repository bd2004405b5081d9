package storage

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageRoundTrip(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	assert.False(t, store.Exists("certificates/a.pdf"))
	_, err = store.Save("certificates/a.pdf", []byte("%PDF"))
	require.NoError(t, err)
	assert.True(t, store.Exists("certificates/a.pdf"))

	f, err := store.Open("certificates/a.pdf")
	require.NoError(t, err)
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.Equal(t, "%PDF", string(data))

	require.NoError(t, store.Delete("certificates/a.pdf"))
	assert.False(t, store.Exists("certificates/a.pdf"))
}

func TestLocalStorageRejectsTraversal(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.Save("../escape.pdf", []byte("x"))
	assert.Error(t, err)
	_, err = store.Open("")
	assert.Error(t, err)
}
