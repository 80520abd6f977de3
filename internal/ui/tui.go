// ABOUTME: TUI initialization and control
// ABOUTME: Wraps bubbletea program for player UI
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// VolumeChangeMsg carries a volume or mute change from the keyboard
type VolumeChangeMsg struct {
	Volume int
	Muted  bool
}

// QuitMsg signals the player to shut down
type QuitMsg struct{}

// VolumeControl holds channels from the TUI back to the player
type VolumeControl struct {
	Changes chan VolumeChangeMsg
	Stop    chan struct{}
	Quit    chan QuitMsg
}

// NewVolumeControl creates a new volume control handler
func NewVolumeControl() *VolumeControl {
	return &VolumeControl{
		Changes: make(chan VolumeChangeMsg, 10),
		Stop:    make(chan struct{}, 1),
		Quit:    make(chan QuitMsg, 1),
	}
}

// NewModel creates a new TUI model
func NewModel(volCtrl *VolumeControl, volume int) Model {
	return Model{
		volume:     volume,
		state:      "idle",
		volumeCtrl: volCtrl,
	}
}

// Run creates the TUI program; the caller starts it with Run and feeds it StatusMsg values via Send
func Run(volCtrl *VolumeControl, volume int) *tea.Program {
	return tea.NewProgram(NewModel(volCtrl, volume), tea.WithAltScreen())
}
