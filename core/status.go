package core

// Status is the connection state of the wallet session machine. Exactly one
// status is active at a time.
type Status string

const (
	StatusDisconnected   Status = "disconnected"
	StatusConnecting     Status = "connecting"
	StatusAuthenticating Status = "authenticating"
	StatusConnected      Status = "connected"
	StatusSwitchingChain Status = "switching_chain"
	StatusError          Status = "error"
)

func (s Status) String() string {
	return string(s)
}

// Snapshot is the machine's externally visible state. Consumers read it
// instead of reaching into the machine; it is a value copy and safe to hold.
type Snapshot struct {
	Status           Status
	Address          string
	ChainID          int64
	WalletType       WalletType
	UnsupportedChain bool
	LastFailure      *Failure
}

// ConnectedTo reports whether the snapshot represents a live session for the
// given address, including the degraded wrong-network case.
func (s Snapshot) ConnectedTo(address string) bool {
	return (s.Status == StatusConnected || s.Status == StatusSwitchingChain) && s.Address == address
}
