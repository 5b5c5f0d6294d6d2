package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openex-labs/walletlink/core"
)

func testSession(createdAt time.Time) *core.Session {
	return &core.Session{
		WalletAddress: "0xab5801a7d398351b8be11c439e05c5b3259aec9b",
		ChainID:       8453,
		WalletType:    core.WalletTypeMetaMask,
		SessionID:     "sess-1",
		WalletID:      "wallet-1",
		CreatedAt:     createdAt,
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Save(ctx, testSession(time.Now())))

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "0xab5801a7d398351b8be11c439e05c5b3259aec9b", loaded.WalletAddress)
	assert.Equal(t, int64(8453), loaded.ChainID)
}

func TestMemoryStoreTTL(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	// One hour old: still live.
	require.NoError(t, s.Save(ctx, testSession(time.Now().Add(-time.Hour))))
	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	assert.NotNil(t, loaded)

	// Twenty-five hours old: never returned, and cleared.
	require.NoError(t, s.Save(ctx, testSession(time.Now().Add(-25*time.Hour))))
	loaded, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, loaded)
	assert.False(t, s.HasRecord())
}

func TestMemoryStoreCorruptFailsOpen(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	s.WriteRaw([]byte("{not json"))

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, loaded)
	assert.False(t, s.HasRecord(), "corrupt record must be cleared")
}

func TestMemoryStoreIncompleteRecordFailsOpen(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	// Valid JSON, but not a restorable session record.
	s.WriteRaw([]byte(`{"wallet_address":"0xab5801a7d398351b8be11c439e05c5b3259aec9b"}`))

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, loaded)
	assert.False(t, s.HasRecord())
}

func TestMemoryStoreClearIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Save(ctx, testSession(time.Now())))
	require.NoError(t, s.Clear(ctx))
	require.NoError(t, s.Clear(ctx))

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestMemoryStoreOverwrites(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	first := testSession(time.Now())
	require.NoError(t, s.Save(ctx, first))

	second := testSession(time.Now())
	second.WalletAddress = "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"
	require.NoError(t, s.Save(ctx, second))

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, second.WalletAddress, loaded.WalletAddress)
}
