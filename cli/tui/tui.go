package tui

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/pithecene-io/sluice/types"
)

// RunConsoleTUI runs the console viewer until the user quits and returns
// the session result the viewer captured, if the session finished.
func RunConsoleTUI(model ConsoleModel) (*types.SessionResult, error) {
	p := tea.NewProgram(model, tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return nil, err
	}

	m, ok := final.(ConsoleModel)
	if !ok {
		return nil, fmt.Errorf("unexpected final model type %T", final)
	}
	return m.Result(), nil
}

// IsTUISupported returns true if the current terminal can host the viewer.
// Dumb terminals and redirected output fall back to plain rendering.
func IsTUISupported() bool {
	if term := os.Getenv("TERM"); term == "" || term == "dumb" {
		return false
	}

	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
