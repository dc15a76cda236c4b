package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// View renders the UI
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}

	if !m.ready {
		return fmt.Sprintf("%s Initializing...\n", m.spinner.View())
	}

	var b strings.Builder

	// Title
	title := titleStyle.Render("🔗 Meshtastic Mesh Gateway")
	b.WriteString(title)
	b.WriteString("\n")

	// Status bar
	statusBar := m.renderStatusBar()
	b.WriteString(statusBar)
	b.WriteString("\n")

	// Stats
	stats := m.renderStats()
	b.WriteString(stats)
	b.WriteString("\n")

	// Messages viewport
	messagesBox := boxStyle.Width(m.width - 4).Render(m.viewport.View())
	b.WriteString(messagesBox)
	b.WriteString("\n")

	// Error message if any
	if m.errorMessage != "" {
		b.WriteString(errorStyle.Render("Error: " + m.errorMessage))
		b.WriteString("\n")
	}

	// Help
	help := helpStyle.Render("q: quit • c: clear messages • ↑/↓: scroll")
	b.WriteString(help)

	return b.String()
}

func (m Model) renderStatusBar() string {
	// Link status
	status := StatusIndicator(m.linkConnected)

	linkInfo := ""
	if m.linkName != "" {
		linkInfo = statLabelStyle.Render(" | ") + statValueStyle.Render(m.linkName)
	}

	sessionInfo := statLabelStyle.Render(" | Session: ")
	if m.sessionReady {
		sessionInfo += statValueStyle.Render(fmt.Sprintf("ready (!%08x)", m.localNode))
	} else {
		sessionInfo += statLabelStyle.Render("capturing config")
	}

	// Uptime
	uptime := time.Since(m.startTime).Round(time.Second)
	uptimeInfo := statLabelStyle.Render(" | Uptime: ") + statValueStyle.Render(uptime.String())

	return status + linkInfo + sessionInfo + uptimeInfo
}

func (m Model) renderStats() string {
	nodes := statLabelStyle.Render("Nodes: ") + statValueStyle.Render(fmt.Sprintf("%d", m.nodeCount))
	tasks := statLabelStyle.Render(" | Automations: ") + statValueStyle.Render(fmt.Sprintf("%d", m.taskCount))
	clients := statLabelStyle.Render(" | Virtual-device clients: ") + statValueStyle.Render(fmt.Sprintf("%d", m.clientCount))

	return nodes + tasks + clients
}

func (m Model) renderMessages() string {
	if len(m.messages) == 0 {
		return statLabelStyle.Render("No messages yet. Waiting for incoming packets...")
	}

	var b strings.Builder
	for _, msg := range m.messages {
		line := m.renderMessage(msg)
		b.WriteString(line)
		b.WriteString("\n")
	}

	return b.String()
}

func (m Model) renderMessage(msg MessageDisplay) string {
	timeStr := messageTimeStyle.Render(msg.Time.Format("15:04:05"))
	from := messageFromStyle.Render(msg.From)
	channel := messageTypeStyle.Render(fmt.Sprintf("[ch %d]", msg.Channel))

	// Signal info if available
	signalInfo := ""
	if msg.SNR != 0 || msg.RSSI != 0 {
		signalInfo = statLabelStyle.Render(fmt.Sprintf(" (SNR:%.1f RSSI:%d)", msg.SNR, msg.RSSI))
	}

	header := lipgloss.JoinHorizontal(lipgloss.Top, timeStr, " ", from, " ", channel, signalInfo)

	content := messageContentStyle.Render("  " + msg.Content)

	return header + "\n" + content
}
