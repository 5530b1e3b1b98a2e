package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"phorus/pkg/types"
)

func newRecord(id, txHash string, status Status) *Record {
	return &Record{
		ID: id,
		Intent: types.TransferIntent{
			Amount:    "1",
			FromToken: "USDC",
			ToToken:   "USDC",
			FromChain: "arb",
			ToChain:   "hpl",
		},
		TxHash: txHash,
		Status: status,
	}
}

func TestStoragePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.json")
	storage, err := NewStorage(path)
	require.NoError(t, err)
	require.Equal(t, path, storage.GetFilePath())
	require.Zero(t, storage.Count())

	require.NoError(t, storage.Save(newRecord("a", "0xaaa", StatusSubmitted)))
	require.NoError(t, storage.Save(newRecord("b", "", StatusFailed)))

	reopened, err := NewStorage(path)
	require.NoError(t, err)
	require.Equal(t, 2, reopened.Count())

	record, err := reopened.Get("a")
	require.NoError(t, err)
	require.Equal(t, StatusSubmitted, record.Status)
	require.Equal(t, "hpl", record.Intent.ToChain)
	require.False(t, record.Created.IsZero())

	_, err = reopened.Get("missing")
	require.Error(t, err)
}

func TestStorageSaveKeepsCreatedAndDismissal(t *testing.T) {
	storage, err := NewStorage(filepath.Join(t.TempDir(), "history.json"))
	require.NoError(t, err)

	record := newRecord("a", "0xaaa", StatusSubmitted)
	require.NoError(t, storage.Save(record))
	created := record.Created

	require.NoError(t, storage.Dismiss("0xAAA"))
	require.True(t, storage.IsDismissed("0xaaa"))

	time.Sleep(time.Millisecond)
	update := newRecord("a", "0xaaa", StatusSuccess)
	require.NoError(t, storage.Save(update))

	stored, err := storage.Get("a")
	require.NoError(t, err)
	require.Equal(t, created.Unix(), stored.Created.Unix())
	require.True(t, stored.Dismissed)
	require.Equal(t, StatusSuccess, stored.Status)
	require.True(t, stored.IsTerminal())
}

func TestStorageReferences(t *testing.T) {
	storage, err := NewStorage(filepath.Join(t.TempDir(), "history.json"))
	require.NoError(t, err)

	relayed := newRecord("r", "", StatusSubmitted)
	relayed.RelayID = "task-1"
	require.NoError(t, storage.Save(relayed))
	require.NoError(t, storage.Save(newRecord("t", "0xbbb", StatusSubmitted)))

	found, err := storage.FindByReference("task-1")
	require.NoError(t, err)
	require.Equal(t, "r", found.ID)
	require.Equal(t, "task-1", found.Reference())

	require.False(t, storage.IsDismissed("task-1"))
	require.NoError(t, storage.Dismiss("task-1"))
	require.True(t, storage.IsDismissed("task-1"))
	require.False(t, storage.IsDismissed("0xbbb"))
	require.False(t, storage.IsDismissed(""))

	require.NoError(t, storage.Dismiss("unknown"))
	require.Len(t, storage.ListByStatus(StatusSubmitted), 2)
	require.Empty(t, storage.ListByStatus(StatusFailed))
}

func TestStorageListNewestFirst(t *testing.T) {
	storage, err := NewStorage(filepath.Join(t.TempDir(), "history.json"))
	require.NoError(t, err)

	older := newRecord("old", "0x1", StatusSuccess)
	older.Created = time.Now().Add(-time.Hour)
	require.NoError(t, storage.Save(older))
	require.NoError(t, storage.Save(newRecord("new", "0x2", StatusSubmitted)))

	records := storage.List()
	require.Len(t, records, 2)
	require.Equal(t, "new", records[0].ID)
	require.Equal(t, "old", records[1].ID)
}
