package main

import (
	"context"
	"net/http/httptest"
	"os"
	"os/signal"
	"syscall"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/openex-labs/walletlink"
	"github.com/openex-labs/walletlink/adapters/events"
	"github.com/openex-labs/walletlink/adapters/provider"
	"github.com/openex-labs/walletlink/adapters/store"
	"github.com/openex-labs/walletlink/backendtest"
	"github.com/openex-labs/walletlink/core"
	"github.com/openex-labs/walletlink/ports"
	"github.com/openex-labs/walletlink/transport/httpapi"
	"github.com/openex-labs/walletlink/uisync"
)

// Demo wiring: a local key-backed provider connects through the full SIWE
// handshake, switches networks, and disconnects. Set BACKEND_URL to target a
// real backend; without it an in-process reference backend is started.
func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	csrfToken := os.Getenv("CSRF_TOKEN")
	if csrfToken == "" {
		csrfToken = "dev-csrf-token"
	}

	backendURL := os.Getenv("BACKEND_URL")
	if backendURL == "" {
		backend, err := backendtest.New(csrfToken)
		if err != nil {
			logger.Fatal("failed to start reference backend", zap.Error(err))
		}
		srv := httptest.NewServer(backend.Router())
		defer srv.Close()
		backendURL = srv.URL
		logger.Info("using in-process reference backend", zap.String("url", backendURL))
	}

	api, err := httpapi.NewClient(backendURL, func() string { return csrfToken })
	if err != nil {
		logger.Fatal("failed to create api client", zap.Error(err))
	}

	var sessions ports.SessionStore = store.NewMemoryStore()
	var publisher ports.Publisher
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			logger.Fatal("failed to parse redis url", zap.Error(err))
		}
		redisClient := redis.NewClient(opts)
		sessions = store.NewRedisStore(redisClient)

		var streamPub message.Publisher
		streamPub, err = redisstream.NewPublisher(
			redisstream.PublisherConfig{Client: redisClient},
			watermill.NewStdLogger(false, false),
		)
		if err != nil {
			logger.Fatal("failed to create redis publisher", zap.Error(err))
		}
		publisher = events.NewWatermillPublisher(streamPub)
	} else {
		publisher, _ = events.NewInProcess()
	}

	wallet, err := newWallet(logger)
	if err != nil {
		logger.Fatal("failed to create wallet", zap.Error(err))
	}

	chains := core.DefaultChainRegistry()
	manager, err := walletlink.New(walletlink.Config{
		Provider:      wallet,
		Store:         sessions,
		Publisher:     publisher,
		API:           api,
		Chains:        chains,
		TargetChainID: 8453,
		Logger:        logger,
	})
	if err != nil {
		logger.Fatal("failed to create manager", zap.Error(err))
	}

	manager.OnTransition(uisync.Bind(uisync.RendererFunc(func(view uisync.View) {
		logger.Info("view",
			zap.String("status", view.StatusLine),
			zap.String("address", view.AddressLabel),
			zap.String("chain", view.ChainLabel),
			zap.String("warning", view.Warning))
	}), chains))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := manager.Run(runCtx); err != nil {
			logger.Error("manager stopped", zap.Error(err))
		}
	}()

	if err := manager.Connect(ctx); err != nil {
		logger.Fatal("connect failed", zap.Error(err))
	}
	if balance, err := manager.Balance(ctx); err == nil {
		logger.Info("balance", zap.String("ether", balance.String()))
	}
	if err := manager.SwitchChain(ctx, 84532); err != nil {
		logger.Warn("chain switch failed", zap.Error(err))
	}
	if err := manager.Disconnect(ctx); err != nil {
		logger.Fatal("disconnect failed", zap.Error(err))
	}

	cancel()
	<-done
}

func newWallet(logger *zap.Logger) (*provider.LocalProvider, error) {
	if keyHex := os.Getenv("PRIVATE_KEY"); keyHex != "" {
		key, err := crypto.HexToECDSA(keyHex)
		if err != nil {
			return nil, err
		}
		wallet := provider.NewLocalProvider(key, 8453)
		logger.Info("wallet ready", zap.String("address", wallet.Address()))
		return wallet, nil
	}
	wallet, err := provider.GenerateLocalProvider(8453)
	if err != nil {
		return nil, err
	}
	logger.Info("generated throwaway wallet", zap.String("address", wallet.Address()))
	return wallet, nil
}
