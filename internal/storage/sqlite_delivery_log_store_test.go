package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaharia-lab/verimail/internal/storage"
)

func TestSQLiteDeliveryLogStore(t *testing.T) {
	db, _, err := storage.NewSQLiteDB(":memory:")
	require.NoError(t, err)
	defer db.Close()

	store := storage.NewSQLiteDeliveryLogStore(db)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	t.Run("log and list", func(t *testing.T) {
		entry := storage.DeliveryLogEntry{
			MessageID:    "m-1",
			Recipient:    "alice@example.com",
			Transport:    "smtp",
			Stage:        "recorded",
			Status:       "sent",
			RowsAffected: 1,
			DurationMS:   42,
			CreatedAt:    base.Add(-time.Minute),
		}
		require.NoError(t, store.LogDelivery(ctx, entry))

		list, err := store.ListDeliveries(ctx, "", 10)
		require.NoError(t, err)
		require.Len(t, list, 1)

		got := list[0]
		assert.NotZero(t, got.ID)
		assert.Equal(t, entry.MessageID, got.MessageID)
		assert.Equal(t, entry.Recipient, got.Recipient)
		assert.Equal(t, entry.Transport, got.Transport)
		assert.Equal(t, entry.Stage, got.Stage)
		assert.Equal(t, entry.Status, got.Status)
		assert.EqualValues(t, 1, got.RowsAffected)
		assert.EqualValues(t, 42, got.DurationMS)
		assert.True(t, entry.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("failed status", func(t *testing.T) {
		entry := storage.DeliveryLogEntry{
			MessageID: "m-2",
			Recipient: "bob@example.com",
			Transport: "mailgun",
			Stage:     "delivered",
			Status:    "failed",
			ErrorKind: "provider_rejected",
			ErrorMsg:  "status 400",
			CreatedAt: base,
		}
		require.NoError(t, store.LogDelivery(ctx, entry))

		list, err := store.ListDeliveries(ctx, "", 10)
		require.NoError(t, err)
		require.Len(t, list, 2)
		// Latest entry is first.
		assert.Equal(t, "failed", list[0].Status)
		assert.Equal(t, "provider_rejected", list[0].ErrorKind)
		assert.Equal(t, "status 400", list[0].ErrorMsg)
	})

	t.Run("filter by recipient", func(t *testing.T) {
		list, err := store.ListDeliveries(ctx, "alice@example.com", 10)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "m-1", list[0].MessageID)
	})

	t.Run("default limit", func(t *testing.T) {
		list, err := store.ListDeliveries(ctx, "", 0)
		require.NoError(t, err)
		assert.Len(t, list, 2)
	})

	t.Run("zero created_at defaults to now", func(t *testing.T) {
		require.NoError(t, store.LogDelivery(ctx, storage.DeliveryLogEntry{MessageID: "m-3", Stage: "decoded", Status: "failed"}))
		list, err := store.ListDeliveries(ctx, "", 1)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "m-3", list[0].MessageID)
		assert.WithinDuration(t, time.Now(), list[0].CreatedAt, time.Minute)
	})

	t.Run("prune", func(t *testing.T) {
		n, err := store.PruneBefore(ctx, base.Add(-30*time.Second))
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)

		list, err := store.ListDeliveries(ctx, "", 10)
		require.NoError(t, err)
		assert.Len(t, list, 2)
		for _, e := range list {
			assert.NotEqual(t, "m-1", e.MessageID)
		}
	})
}
