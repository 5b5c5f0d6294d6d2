package core

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ChainConfig is static reference data for one network, used for both UI
// labels and wallet add/switch-network requests.
type ChainConfig struct {
	ChainID              int64  `json:"chain_id"`
	Name                 string `json:"name"`
	RPCURL               string `json:"rpc_url"`
	BlockExplorerURL     string `json:"block_explorer_url"`
	NativeCurrencySymbol string `json:"native_currency_symbol"`
}

// HexChainID renders the chain id in the 0x-prefixed form wallet RPC expects.
func (c ChainConfig) HexChainID() string {
	return hexutil.EncodeUint64(uint64(c.ChainID))
}

// ChainRegistry is the immutable chain id → configuration table loaded at
// startup.
type ChainRegistry struct {
	chains map[int64]ChainConfig
}

// NewChainRegistry builds a registry from the given configurations.
func NewChainRegistry(configs ...ChainConfig) *ChainRegistry {
	chains := make(map[int64]ChainConfig, len(configs))
	for _, c := range configs {
		chains[c.ChainID] = c
	}
	return &ChainRegistry{chains: chains}
}

// DefaultChainRegistry returns the networks the dashboard ships with.
func DefaultChainRegistry() *ChainRegistry {
	return NewChainRegistry(
		ChainConfig{
			ChainID:              8453,
			Name:                 "Base",
			RPCURL:               "https://mainnet.base.org",
			BlockExplorerURL:     "https://basescan.org",
			NativeCurrencySymbol: "ETH",
		},
		ChainConfig{
			ChainID:              84532,
			Name:                 "Base Sepolia",
			RPCURL:               "https://sepolia.base.org",
			BlockExplorerURL:     "https://sepolia.basescan.org",
			NativeCurrencySymbol: "ETH",
		},
		ChainConfig{
			ChainID:              137,
			Name:                 "Polygon",
			RPCURL:               "https://polygon-rpc.com",
			BlockExplorerURL:     "https://polygonscan.com",
			NativeCurrencySymbol: "POL",
		},
	)
}

// Lookup returns the configuration for a chain id.
func (r *ChainRegistry) Lookup(chainID int64) (ChainConfig, error) {
	cfg, ok := r.chains[chainID]
	if !ok {
		return ChainConfig{}, fmt.Errorf("chain %d: %w", chainID, ErrUnsupportedChain)
	}
	return cfg, nil
}

// Contains reports whether a chain id is configured.
func (r *ChainRegistry) Contains(chainID int64) bool {
	_, ok := r.chains[chainID]
	return ok
}

// Label resolves a human-readable chain name, falling back to "Chain {id}"
// for unknown networks.
func (r *ChainRegistry) Label(chainID int64) string {
	if cfg, ok := r.chains[chainID]; ok {
		return cfg.Name
	}
	return fmt.Sprintf("Chain %d", chainID)
}
