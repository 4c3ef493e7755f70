package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/kftray/kftray-core/internal/statusui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Watch events on this process's State/Event Bus (empty unless a start is running in-process)",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	program := tea.NewProgram(statusui.New(eventBus, 64))
	if _, err := program.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "status view error: %v\n", err)
		os.Exit(1)
	}
	return nil
}
