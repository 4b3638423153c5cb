package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/schawnndev/receiptprinter/internal/setup"
)

// Run shows the setup wizard until the printer is added or the user quits.
// A cancelled wizard returns the last form result.
func Run(ctx context.Context, flow Submitter) (setup.Result, error) {
	program := tea.NewProgram(NewModel(ctx, flow, setup.DefaultInput()), tea.WithContext(ctx))
	final, err := program.Run()
	if err != nil {
		return setup.Result{}, err
	}
	return final.(Model).Result()
}
