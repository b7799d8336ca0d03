package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryArchive(t *testing.T) {
	archive := NewMemoryArchive()

	require.NoError(t, archive.Store("runs/2024-05-01/reply_bot_poll.json", []byte(`{"units":3}`)))
	require.NoError(t, archive.Store("runs/2024-05-02/reply_bot_poll.json", []byte(`{"units":1}`)))

	data, err := archive.Retrieve("runs/2024-05-01/reply_bot_poll.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"units":3}`, string(data))

	names, err := archive.List("runs/2024-05-01/")
	require.NoError(t, err)
	assert.Equal(t, []string{"runs/2024-05-01/reply_bot_poll.json"}, names)

	require.NoError(t, archive.Delete("runs/2024-05-01/reply_bot_poll.json"))
	_, err = archive.Retrieve("runs/2024-05-01/reply_bot_poll.json")
	assert.Error(t, err)
}
