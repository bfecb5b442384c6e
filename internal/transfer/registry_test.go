package transfer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryRejectsDuplicateToken(t *testing.T) {
	r, _ := newRegistryPair()
	t1 := newTransfer(Download, "alice", "a.flac", 7, 100)
	t2 := newTransfer(Download, "bob", "b.flac", 7, 200)

	require.NoError(t, r.insert(t1))
	require.ErrorIs(t, r.insert(t2), ErrDuplicateToken)
}

func TestRegistryRejectsDuplicateTransfer(t *testing.T) {
	r, _ := newRegistryPair()
	t1 := newTransfer(Download, "alice", "a.flac", 1, 100)
	t2 := newTransfer(Download, "alice", "a.flac", 2, 100)

	require.NoError(t, r.insert(t1))
	require.ErrorIs(t, r.insert(t2), ErrDuplicateTransfer)
}

func TestRegistryRemoveFreesBothKeys(t *testing.T) {
	r, _ := newRegistryPair()
	t1 := newTransfer(Download, "alice", "a.flac", 1, 100)
	require.NoError(t, r.insert(t1))
	r.remove(t1)

	t2 := newTransfer(Download, "alice", "a.flac", 1, 100)
	require.NoError(t, r.insert(t2))
}

func TestRegistryRejectsTransferAlreadyInCompanionDirection(t *testing.T) {
	downloads, uploads := newRegistryPair()
	d := newTransfer(Download, "alice", "a.flac", 1, 100)
	require.NoError(t, downloads.insert(d))

	u := newTransfer(Upload, "alice", "a.flac", 2, 100)
	require.ErrorIs(t, uploads.insert(u), ErrDuplicateTransfer)
}
