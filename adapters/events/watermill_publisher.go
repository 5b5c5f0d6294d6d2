package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"

	"github.com/openex-labs/walletlink/core"
	"github.com/openex-labs/walletlink/ports"
)

// Topics for wallet lifecycle events.
const (
	TopicConnected      = "wallet:connected"
	TopicDisconnected   = "wallet:disconnected"
	TopicChainChanged   = "wallet:chainChanged"
	TopicAccountChanged = "wallet:accountChanged"
)

// ConnectedEvent is the payload of a wallet:connected message.
type ConnectedEvent struct {
	Address    string          `json:"address"`
	ChainID    int64           `json:"chainId"`
	WalletType core.WalletType `json:"walletType"`
	Timestamp  int64           `json:"timestamp"`
}

// DisconnectedEvent is the payload of a wallet:disconnected message.
type DisconnectedEvent struct {
	Timestamp int64 `json:"timestamp"`
}

// ChainChangedEvent is the payload of a wallet:chainChanged message.
type ChainChangedEvent struct {
	ChainID   int64 `json:"chainId"`
	Timestamp int64 `json:"timestamp"`
}

// AccountChangedEvent is the payload of a wallet:accountChanged message.
type AccountChangedEvent struct {
	NewAccount string `json:"newAccount"`
	Timestamp  int64  `json:"timestamp"`
}

// WatermillPublisher implements the Publisher interface using Watermill.
type WatermillPublisher struct {
	publisher message.Publisher
	now       func() int64
}

// NewWatermillPublisher creates a publisher over any Watermill backend.
func NewWatermillPublisher(publisher message.Publisher) *WatermillPublisher {
	return &WatermillPublisher{
		publisher: publisher,
		now:       nowMillis,
	}
}

// NewInProcess creates a gochannel-backed publisher together with its pub/sub
// so in-process subscribers can listen on the wallet topics.
func NewInProcess() (*WatermillPublisher, *gochannel.GoChannel) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	return NewWatermillPublisher(pubSub), pubSub
}

func (p *WatermillPublisher) Connected(ctx context.Context, address string, chainID int64, walletType core.WalletType) error {
	return p.publish(TopicConnected, ConnectedEvent{
		Address:    address,
		ChainID:    chainID,
		WalletType: walletType,
		Timestamp:  p.now(),
	})
}

func (p *WatermillPublisher) Disconnected(ctx context.Context) error {
	return p.publish(TopicDisconnected, DisconnectedEvent{Timestamp: p.now()})
}

func (p *WatermillPublisher) ChainChanged(ctx context.Context, chainID int64) error {
	return p.publish(TopicChainChanged, ChainChangedEvent{
		ChainID:   chainID,
		Timestamp: p.now(),
	})
}

func (p *WatermillPublisher) AccountChanged(ctx context.Context, newAccount string) error {
	return p.publish(TopicAccountChanged, AccountChangedEvent{
		NewAccount: newAccount,
		Timestamp:  p.now(),
	})
}

func (p *WatermillPublisher) publish(topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(uuid.New().String(), payload)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

var _ ports.Publisher = (*WatermillPublisher)(nil)
