// ABOUTME: Tests for TUI model and state management
// ABOUTME: Tests status updates, key handling, and rendering
package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/BuffMcBigHuge/audio-chat/pkg/audio"
	"github.com/BuffMcBigHuge/audio-chat/pkg/render"
	tea "github.com/charmbracelet/bubbletea"
)

func TestNewModel(t *testing.T) {
	model := NewModel(nil, 80)

	if model.connected {
		t.Error("expected connected to be false initially")
	}
	if model.volume != 80 {
		t.Errorf("expected volume 80, got %d", model.volume)
	}
	if model.muted {
		t.Error("expected muted to be false initially")
	}
	if model.state != "idle" {
		t.Errorf("expected idle state, got %q", model.state)
	}
}

func TestStatusMsgConnected(t *testing.T) {
	model := NewModel(nil, 100)

	connected := true
	model.applyStatus(StatusMsg{Connected: &connected, ServerName: "test-server", Conversation: "c1"})

	if !model.connected {
		t.Error("expected connected to be true after status update")
	}
	if model.serverName != "test-server" {
		t.Errorf("expected serverName 'test-server', got '%s'", model.serverName)
	}
	if model.conversation != "c1" {
		t.Errorf("expected conversation c1, got %q", model.conversation)
	}

	disconnected := false
	model.applyStatus(StatusMsg{Connected: &disconnected})
	if model.connected {
		t.Error("expected connected to be false after disconnect")
	}
	if model.serverName != "test-server" {
		t.Error("server name should persist across disconnect")
	}
}

func TestStatusMsgClip(t *testing.T) {
	model := NewModel(nil, 100)

	model.applyStatus(StatusMsg{ClipID: "a", State: "loaded", Format: audio.DefaultFormat})
	model.applyStatus(StatusMsg{Duration: 2 * time.Second, State: "playing"})

	if model.clipID != "a" || model.state != "playing" {
		t.Errorf("unexpected clip state %q %q", model.clipID, model.state)
	}
	if model.duration != 2*time.Second {
		t.Errorf("expected 2s duration, got %v", model.duration)
	}
	if model.format != audio.DefaultFormat {
		t.Errorf("unexpected format %v", model.format)
	}

	// A new clip resets the duration
	model.applyStatus(StatusMsg{ClipID: "b"})
	if model.duration != 0 {
		t.Errorf("expected duration reset, got %v", model.duration)
	}
}

func TestRecentClipsBounded(t *testing.T) {
	model := NewModel(nil, 100)
	for _, id := range []string{"1", "2", "3", "4", "5", "6", "7"} {
		model.applyStatus(StatusMsg{ClipID: id})
	}
	// Repeating the current clip is not a new entry
	model.applyStatus(StatusMsg{ClipID: "7"})

	if len(model.recent) != recentLimit {
		t.Fatalf("expected %d recent clips, got %d", recentLimit, len(model.recent))
	}
	if model.recent[0] != "7" || model.recent[recentLimit-1] != "3" {
		t.Errorf("unexpected recent order %v", model.recent)
	}
}

func TestStatusMsgStatsAndErrors(t *testing.T) {
	model := NewModel(nil, 100)

	cached := 3
	model.applyStatus(StatusMsg{
		Played:   4,
		Failed:   1,
		CacheLen: &cached,
		Render:   &render.Stats{Callbacks: 10, FramesRendered: 1280},
		Err:      "fetch failed",
	})

	if model.played != 4 || model.failed != 1 || model.cacheLen != 3 {
		t.Errorf("unexpected stats %d %d %d", model.played, model.failed, model.cacheLen)
	}
	if model.render.FramesRendered != 1280 {
		t.Errorf("unexpected render stats %+v", model.render)
	}
	if model.lastErr != "fetch failed" {
		t.Errorf("expected error to be recorded")
	}

	model.applyStatus(StatusMsg{ClearErr: true})
	if model.lastErr != "" {
		t.Error("expected error cleared")
	}
}

func TestVolumeKeys(t *testing.T) {
	ctrl := NewVolumeControl()
	var m tea.Model = NewModel(ctrl, 100)

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyUp})
	if got := m.(Model).volume; got != 100 {
		t.Errorf("volume should clamp at 100, got %d", got)
	}

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	if got := m.(Model).volume; got != 95 {
		t.Errorf("expected 95, got %d", got)
	}

	select {
	case change := <-ctrl.Changes:
		if change.Volume != 100 {
			t.Errorf("first change should report 100, got %d", change.Volume)
		}
	default:
		t.Fatal("expected a volume change")
	}
	change := <-ctrl.Changes
	if change.Volume != 95 {
		t.Errorf("expected 95, got %d", change.Volume)
	}

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'m'}})
	if !m.(Model).muted {
		t.Error("expected muted after m")
	}
	if change := <-ctrl.Changes; !change.Muted {
		t.Error("expected mute change to be sent")
	}
}

func TestStopAndQuitKeys(t *testing.T) {
	ctrl := NewVolumeControl()
	var m tea.Model = NewModel(ctrl, 100)

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'s'}})
	select {
	case <-ctrl.Stop:
	default:
		t.Error("expected stop request")
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	select {
	case <-ctrl.Quit:
	default:
		t.Error("expected quit signal")
	}
}

func TestKeysWithoutControl(t *testing.T) {
	var m tea.Model = NewModel(nil, 50)
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyUp})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'s'}})
	if m.(Model).volume != 55 {
		t.Errorf("expected 55, got %d", m.(Model).volume)
	}
}

func TestView(t *testing.T) {
	model := NewModel(nil, 100)
	if model.View() != "Loading..." {
		t.Error("expected loading view before window size")
	}

	var m tea.Model = model
	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	m, _ = m.Update(StatusMsg{ClipID: "clip-42", State: "playing", Format: audio.DefaultFormat})

	view := m.View()
	for _, want := range []string{"clip-42", "playing", "24000Hz", "Mono", "Disconnected"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestRenderBar(t *testing.T) {
	if got := renderBar(50, 100, 10); got != "█████░░░░░" {
		t.Errorf("unexpected bar %q", got)
	}
	if got := renderBar(0, 100, 4); got != "░░░░" {
		t.Errorf("unexpected bar %q", got)
	}
}
