package blob

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_ReadWriteDelete(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Read("queue")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Write("queue", []byte{0x01, 0x02, 0x03}))

	data, err := store.Read("queue")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, data)

	// Overwrite replaces, never appends
	require.NoError(t, store.Write("queue", []byte{0xff}))
	data, err = store.Read("queue")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff}, data)

	require.NoError(t, store.Delete("queue"))
	_, err = store.Read("queue")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting a missing blob is not an error
	assert.NoError(t, store.Delete("queue"))
}
