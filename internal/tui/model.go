// Package tui provides the terminal user interface.
package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/iamruinous/meshtastic-mesh-gateway/internal/gateway"
	"github.com/iamruinous/meshtastic-mesh-gateway/internal/store"
)

// MaxMessages is the maximum number of messages to display
const MaxMessages = 100

// Model represents the TUI state
type Model struct {
	// Gateway reference
	gw *gateway.Gateway

	// UI state
	width    int
	height   int
	ready    bool
	quitting bool

	// Components
	spinner  spinner.Model
	viewport viewport.Model

	// Data
	messages     []MessageDisplay
	linkConnected bool
	linkName     string
	sessionReady bool
	localNode    uint32
	nodeCount    int
	taskCount    int
	clientCount  int
	startTime    time.Time
	lastUpdate   time.Time
	errorMessage string
}

// MessageDisplay holds a message for display
type MessageDisplay struct {
	Time    time.Time
	From    string
	Channel int32
	Content string
	SNR     float32
	RSSI    int32
}

// New creates a new TUI model
func New(gw *gateway.Gateway) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle

	return Model{
		gw:        gw,
		spinner:   s,
		messages:  make([]MessageDisplay, 0),
		startTime: time.Now(),
	}
}

// Init initializes the model
//
//nolint:gocritic // hugeParam: Model must be value receiver to implement tea.Model interface
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		tickCmd(),
		waitForMessage(m.gw),
	)
}

// tickMsg is sent periodically to update the UI
type tickMsg time.Time

// messageMsg is sent when a new message arrives
type messageMsg *store.Message

// errMsg is sent when an error occurs
type errMsg error

// tickCmd returns a command that sends a tick every second
func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// waitForMessage waits for inbound text messages from the gateway
func waitForMessage(gw *gateway.Gateway) tea.Cmd {
	return func() tea.Msg {
		if gw == nil {
			return nil
		}
		msg, ok := <-gw.Messages()
		if !ok {
			return nil
		}
		return messageMsg(&msg)
	}
}
