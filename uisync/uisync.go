// Package uisync is the presentation boundary: it projects the machine's
// snapshot into the exact labels and affordances the dashboard paints. It is
// pure; rendering itself stays behind the Renderer interface.
package uisync

import (
	"fmt"

	"github.com/openex-labs/walletlink/core"
)

// View is everything the connect widget needs to paint one snapshot.
type View struct {
	ShowConnect    bool
	ShowDisconnect bool
	AddressLabel   string
	ChainLabel     string
	StatusLine     string
	Warning        string
}

// Renderer paints a view. It is re-invoked after every state transition, not
// just on explicit user actions.
type Renderer interface {
	Render(view View)
}

// RendererFunc adapts a func into a Renderer.
type RendererFunc func(View)

func (f RendererFunc) Render(view View) { f(view) }

// Project computes the view for a snapshot.
func Project(snap core.Snapshot, chains *core.ChainRegistry) View {
	view := View{}

	switch snap.Status {
	case core.StatusConnected, core.StatusSwitchingChain:
		view.ShowDisconnect = true
		view.AddressLabel = TruncateAddress(snap.Address)
		view.ChainLabel = chains.Label(snap.ChainID)
		view.StatusLine = "Connected"
		if snap.Status == core.StatusSwitchingChain {
			view.StatusLine = "Switching network"
		}
	case core.StatusConnecting:
		view.StatusLine = "Connecting"
	case core.StatusAuthenticating:
		view.StatusLine = "Waiting for signature"
	case core.StatusError:
		view.ShowConnect = true
		view.StatusLine = "Error"
	default:
		view.ShowConnect = true
		view.StatusLine = "Not connected"
	}

	if snap.UnsupportedChain {
		view.Warning = fmt.Sprintf("Connected to an unsupported network (%s)", chains.Label(snap.ChainID))
	}
	if snap.LastFailure != nil && view.Warning == "" {
		view.Warning = snap.LastFailure.Message
	}
	return view
}

// TruncateAddress shortens an address to its first 6 and last 4 characters.
func TruncateAddress(address string) string {
	if len(address) <= 10 {
		return address
	}
	return address[:6] + "…" + address[len(address)-4:]
}

// Bind returns a transition subscriber that recomputes and renders the view
// after every committed transition.
func Bind(renderer Renderer, chains *core.ChainRegistry) func(core.Snapshot) {
	return func(snap core.Snapshot) {
		renderer.Render(Project(snap, chains))
	}
}
