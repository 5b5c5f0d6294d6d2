package uisync_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openex-labs/walletlink/core"
	"github.com/openex-labs/walletlink/uisync"
)

func TestTruncateAddress(t *testing.T) {
	assert.Equal(t, "0xab58…ec9b", uisync.TruncateAddress("0xab5801a7d398351b8be11c439e05c5b3259aec9b"))
	assert.Equal(t, "0x1234", uisync.TruncateAddress("0x1234"))
	assert.Equal(t, "", uisync.TruncateAddress(""))
}

func TestProjectConnected(t *testing.T) {
	chains := core.DefaultChainRegistry()
	view := uisync.Project(core.Snapshot{
		Status:     core.StatusConnected,
		Address:    "0xab5801a7d398351b8be11c439e05c5b3259aec9b",
		ChainID:    8453,
		WalletType: core.WalletTypeMetaMask,
	}, chains)

	assert.False(t, view.ShowConnect)
	assert.True(t, view.ShowDisconnect)
	assert.Equal(t, "0xab58…ec9b", view.AddressLabel)
	assert.Equal(t, "Base", view.ChainLabel)
	assert.Empty(t, view.Warning)
}

func TestProjectUnknownChainFallsBack(t *testing.T) {
	chains := core.DefaultChainRegistry()
	view := uisync.Project(core.Snapshot{
		Status:  core.StatusConnected,
		Address: "0xab5801a7d398351b8be11c439e05c5b3259aec9b",
		ChainID: 42,
	}, chains)

	assert.Equal(t, "Chain 42", view.ChainLabel)
}

func TestProjectDegraded(t *testing.T) {
	chains := core.DefaultChainRegistry()
	view := uisync.Project(core.Snapshot{
		Status:           core.StatusConnected,
		Address:          "0xab5801a7d398351b8be11c439e05c5b3259aec9b",
		ChainID:          1,
		UnsupportedChain: true,
	}, chains)

	assert.True(t, view.ShowDisconnect)
	assert.Contains(t, view.Warning, "Chain 1")
}

func TestProjectDisconnected(t *testing.T) {
	chains := core.DefaultChainRegistry()

	view := uisync.Project(core.Snapshot{Status: core.StatusDisconnected}, chains)
	assert.True(t, view.ShowConnect)
	assert.False(t, view.ShowDisconnect)
	assert.Empty(t, view.AddressLabel)

	rejected := uisync.Project(core.Snapshot{
		Status:      core.StatusDisconnected,
		LastFailure: core.NewFailure(core.ErrUserRejected, "connection request rejected"),
	}, chains)
	assert.Equal(t, "connection request rejected", rejected.Warning)
}

func TestProjectTransientStates(t *testing.T) {
	chains := core.DefaultChainRegistry()

	assert.Equal(t, "Connecting", uisync.Project(core.Snapshot{Status: core.StatusConnecting}, chains).StatusLine)
	assert.Equal(t, "Waiting for signature", uisync.Project(core.Snapshot{Status: core.StatusAuthenticating}, chains).StatusLine)
	assert.Equal(t, "Switching network", uisync.Project(core.Snapshot{
		Status:  core.StatusSwitchingChain,
		Address: "0xab5801a7d398351b8be11c439e05c5b3259aec9b",
		ChainID: 8453,
	}, chains).StatusLine)
}
