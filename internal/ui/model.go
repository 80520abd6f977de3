// ABOUTME: Bubbletea model for the player TUI
// ABOUTME: Shows watch connection, current clip, renderer state and volume
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/BuffMcBigHuge/audio-chat/pkg/audio"
	"github.com/BuffMcBigHuge/audio-chat/pkg/render"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// recentLimit bounds the recent clip list
const recentLimit = 5

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	helpStyle = lipgloss.NewStyle().Faint(true)
)

// Model represents the TUI state
type Model struct {
	// Watch connection
	connected    bool
	serverName   string
	conversation string

	// Current clip
	clipID   string
	state    string
	format   audio.Format
	duration time.Duration
	recent   []string

	// Output
	volume int
	muted  bool

	// Stats
	played   int64
	failed   int64
	cacheLen int
	render   render.Stats

	lastErr   string
	showDebug bool

	volumeCtrl *VolumeControl

	width  int
	height int
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Audio Chat Player"))
	b.WriteString("\n")
	b.WriteString(m.renderConnection())
	b.WriteString(m.renderClip())
	b.WriteString(m.renderControls())
	b.WriteString(m.renderStats())
	if m.showDebug {
		b.WriteString(m.renderDebug())
	}
	if m.lastErr != "" {
		b.WriteString(errorStyle.Render("Error: "+truncate(m.lastErr, 60)) + "\n\n")
	}
	b.WriteString(helpStyle.Render("↑/↓:Volume  m:Mute  s:Stop  d:Debug  q:Quit"))
	return b.String()
}

func (m Model) renderConnection() string {
	status := "Disconnected"
	if m.connected {
		status = fmt.Sprintf("Watching %s", m.serverName)
	}
	s := headerStyle.Render("Status: ") + valueStyle.Render(status) + "\n"
	if m.conversation != "" {
		s += headerStyle.Render("Chat:   ") + valueStyle.Render(m.conversation) + "\n"
	}
	return s + "\n"
}

func (m Model) renderClip() string {
	if m.clipID == "" {
		return valueStyle.Render("No clip") + "\n\n"
	}

	s := headerStyle.Render("Now Playing") + "\n"
	s += fmt.Sprintf("  Clip:   %s\n", valueStyle.Render(truncate(m.clipID, 42)))
	s += fmt.Sprintf("  State:  %s\n", valueStyle.Render(m.state))
	if m.format.SampleRate > 0 {
		s += fmt.Sprintf("  Format: %s\n", valueStyle.Render(fmt.Sprintf("PCM %dHz %s %d-bit",
			m.format.SampleRate, channelName(m.format.Channels), m.format.BitDepth)))
	}
	if m.duration > 0 {
		s += fmt.Sprintf("  Length: %s\n", valueStyle.Render(m.duration.Round(10*time.Millisecond).String()))
	}
	return s + "\n"
}

func (m Model) renderControls() string {
	muteIcon := ""
	if m.muted {
		muteIcon = " 🔇"
	}
	return fmt.Sprintf("%s [%s] %d%%%s\n\n",
		headerStyle.Render("Volume:"), renderBar(m.volume, 100, 10), m.volume, muteIcon)
}

func (m Model) renderStats() string {
	s := headerStyle.Render("Stats") + "\n"
	s += fmt.Sprintf("  Played: %d  Failed: %d  Cached: %d\n", m.played, m.failed, m.cacheLen)
	if len(m.recent) > 0 {
		s += "  Recent: " + valueStyle.Render(strings.Join(m.recent, ", ")) + "\n"
	}
	return s + "\n"
}

func (m Model) renderDebug() string {
	return fmt.Sprintf("%s\n  Callbacks: %d\n  Frames:    %d\n  Dropped events: %d\n  Session:   %d\n\n",
		headerStyle.Render("Debug"),
		m.render.Callbacks, m.render.FramesRendered, m.render.DroppedEvents, m.render.Session)
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.volumeCtrl != nil {
			select {
			case m.volumeCtrl.Quit <- QuitMsg{}:
			default:
			}
		}
		return m, tea.Quit
	case "up":
		m.volume = min(m.volume+5, 100)
		m.sendVolume()
	case "down":
		m.volume = max(m.volume-5, 0)
		m.sendVolume()
	case "m":
		m.muted = !m.muted
		m.sendVolume()
	case "s":
		if m.volumeCtrl != nil {
			select {
			case m.volumeCtrl.Stop <- struct{}{}:
			default:
			}
		}
	case "d":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

// sendVolume forwards the current volume without blocking the UI
func (m Model) sendVolume() {
	if m.volumeCtrl == nil {
		return
	}
	select {
	case m.volumeCtrl.Changes <- VolumeChangeMsg{Volume: m.volume, Muted: m.muted}:
	default:
	}
}

// applyStatus updates model from status message
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.Connected != nil {
		m.connected = *msg.Connected
	}
	if msg.ServerName != "" {
		m.serverName = msg.ServerName
	}
	if msg.Conversation != "" {
		m.conversation = msg.Conversation
	}
	if msg.ClipID != "" && msg.ClipID != m.clipID {
		m.clipID = msg.ClipID
		m.duration = 0
		m.recent = append([]string{msg.ClipID}, m.recent...)
		if len(m.recent) > recentLimit {
			m.recent = m.recent[:recentLimit]
		}
	}
	if msg.State != "" {
		m.state = msg.State
	}
	if msg.Format.SampleRate > 0 {
		m.format = msg.Format
	}
	if msg.Duration > 0 {
		m.duration = msg.Duration
	}
	if msg.Volume != nil {
		m.volume = *msg.Volume
	}
	if msg.Muted != nil {
		m.muted = *msg.Muted
	}
	if msg.Played != 0 {
		m.played = msg.Played
	}
	if msg.Failed != 0 {
		m.failed = msg.Failed
	}
	if msg.CacheLen != nil {
		m.cacheLen = *msg.CacheLen
	}
	if msg.Render != nil {
		m.render = *msg.Render
	}
	if msg.Err != "" {
		m.lastErr = msg.Err
	}
	if msg.ClearErr {
		m.lastErr = ""
	}
}

// StatusMsg updates TUI state. Zero fields leave the current value unchanged.
type StatusMsg struct {
	Connected    *bool
	ServerName   string
	Conversation string

	ClipID   string
	State    string
	Format   audio.Format
	Duration time.Duration

	Volume *int
	Muted  *bool

	Played   int64
	Failed   int64
	CacheLen *int
	Render   *render.Stats

	Err      string
	ClearErr bool
}

func renderBar(value, max, width int) string {
	filled := (value * width) / max
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}

func channelName(channels int) string {
	switch channels {
	case 1:
		return "Mono"
	case 2:
		return "Stereo"
	default:
		return fmt.Sprintf("%dch", channels)
	}
}
