package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/iamruinous/meshtastic-mesh-gateway/internal/gateway"
)

// Run starts the TUI against a running gateway
func Run(gw *gateway.Gateway) error {
	model := New(gw)
	program := tea.NewProgram(
		model,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}

	return nil
}
