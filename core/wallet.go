package core

// WalletType identifies the vendor of an injected wallet provider.
type WalletType string

const (
	WalletTypeMetaMask       WalletType = "metamask"
	WalletTypeCoinbaseWallet WalletType = "coinbase_wallet"
	WalletTypeWalletConnect  WalletType = "walletconnect"
	WalletTypeInjected       WalletType = "injected"
	WalletTypeUnknown        WalletType = "unknown"
)

func (w WalletType) String() string {
	return string(w)
}

// ParseWalletType maps a wire tag back to a WalletType; unrecognized tags
// collapse to WalletTypeUnknown.
func ParseWalletType(s string) WalletType {
	switch WalletType(s) {
	case WalletTypeMetaMask, WalletTypeCoinbaseWallet, WalletTypeWalletConnect, WalletTypeInjected:
		return WalletType(s)
	default:
		return WalletTypeUnknown
	}
}
