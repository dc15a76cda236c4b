package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/iamruinous/meshtastic-mesh-gateway/internal/store"
)

// Update handles messages and updates the model
//
//nolint:gocritic // hugeParam: Model must be value receiver to implement tea.Model interface
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "c":
			// Clear messages
			m.messages = make([]MessageDisplay, 0)
			m.viewport.SetContent(m.renderMessages())
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		headerHeight := 8 // Title + status + stats
		footerHeight := 3 // Help text
		verticalMargins := headerHeight + footerHeight

		if !m.ready {
			m.viewport = viewport.New(msg.Width-4, msg.Height-verticalMargins)
			m.viewport.YPosition = headerHeight
			m.ready = true
		} else {
			m.viewport.Width = msg.Width - 4
			m.viewport.Height = msg.Height - verticalMargins
		}
		m.viewport.SetContent(m.renderMessages())

	case tickMsg:
		m.lastUpdate = time.Time(msg)
		if m.gw != nil {
			status := m.gw.LinkStatus()
			m.linkConnected = status.Connected
			m.linkName = status.Name
			m.sessionReady = m.gw.SessionReady()
			m.localNode = m.gw.LocalNodeNum()
			m.nodeCount = m.gw.NodeCount(context.Background())
			m.taskCount = m.gw.TaskCount()
			m.clientCount = m.gw.VirtualDeviceClientCount()
		}
		cmds = append(cmds, tickCmd())

	case messageMsg:
		if msg != nil {
			m.addMessage((*store.Message)(msg))
			m.viewport.SetContent(m.renderMessages())
			m.viewport.GotoBottom()
		}
		// Continue waiting for messages
		cmds = append(cmds, waitForMessage(m.gw))

	case errMsg:
		m.errorMessage = msg.Error()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	// Handle viewport updates
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *Model) addMessage(msg *store.Message) {
	fromNode := fmt.Sprintf("!%08x", msg.From)

	display := MessageDisplay{
		Time:    time.Now(),
		From:    fromNode,
		Channel: msg.Channel,
		Content: msg.Text,
		SNR:     msg.RxSnr,
		RSSI:    msg.RxRssi,
	}

	m.messages = append(m.messages, display)

	// Trim to max messages
	if len(m.messages) > MaxMessages {
		m.messages = m.messages[len(m.messages)-MaxMessages:]
	}
}
