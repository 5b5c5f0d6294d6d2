package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openex-labs/walletlink/core"
)

func receive(t *testing.T, ch <-chan *message.Message) *message.Message {
	t.Helper()
	select {
	case msg := <-ch:
		msg.Ack()
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func TestConnectedEvent(t *testing.T) {
	ctx := context.Background()
	publisher, pubSub := NewInProcess()

	messages, err := pubSub.Subscribe(ctx, TopicConnected)
	require.NoError(t, err)

	require.NoError(t, publisher.Connected(ctx, "0xab5801a7d398351b8be11c439e05c5b3259aec9b", 8453, core.WalletTypeMetaMask))

	msg := receive(t, messages)
	var event ConnectedEvent
	require.NoError(t, json.Unmarshal(msg.Payload, &event))
	assert.Equal(t, "0xab5801a7d398351b8be11c439e05c5b3259aec9b", event.Address)
	assert.Equal(t, int64(8453), event.ChainID)
	assert.Equal(t, core.WalletTypeMetaMask, event.WalletType)
	assert.NotZero(t, event.Timestamp)
}

func TestDisconnectedAndChainEvents(t *testing.T) {
	ctx := context.Background()
	publisher, pubSub := NewInProcess()

	disconnected, err := pubSub.Subscribe(ctx, TopicDisconnected)
	require.NoError(t, err)
	chainChanged, err := pubSub.Subscribe(ctx, TopicChainChanged)
	require.NoError(t, err)
	accountChanged, err := pubSub.Subscribe(ctx, TopicAccountChanged)
	require.NoError(t, err)

	require.NoError(t, publisher.Disconnected(ctx))
	require.NoError(t, publisher.ChainChanged(ctx, 137))
	require.NoError(t, publisher.AccountChanged(ctx, "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"))

	var disc DisconnectedEvent
	require.NoError(t, json.Unmarshal(receive(t, disconnected).Payload, &disc))
	assert.NotZero(t, disc.Timestamp)

	var chain ChainChangedEvent
	require.NoError(t, json.Unmarshal(receive(t, chainChanged).Payload, &chain))
	assert.Equal(t, int64(137), chain.ChainID)

	var account AccountChangedEvent
	require.NoError(t, json.Unmarshal(receive(t, accountChanged).Payload, &account))
	assert.Equal(t, "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", account.NewAccount)
}
