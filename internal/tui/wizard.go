// Package tui is a terminal front end for the setup wizard.
package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/schawnndev/receiptprinter/internal/setup"
)

// Submitter is implemented by *setup.Flow
type Submitter interface {
	Submit(ctx context.Context, in setup.Input) (setup.Result, error)
}

type field struct {
	key   string
	label string
	input textinput.Model
}

type submitFinishedMsg struct {
	Result setup.Result
	Err    error
}

var errorText = map[string]string{
	setup.ErrKeyConnection: "Failed to connect to the printer. Check the host and try again.",
	setup.ErrKeyUnknown:    "Unexpected error.",
	setup.ErrKeyRequired:   "required",
	setup.ErrKeyOutOfRange: "out of range",
}

type Model struct {
	ctx    context.Context
	flow   Submitter
	fields []field
	focus  int
	busy   bool
	errors map[string]string
	status string
	result setup.Result
	err    error
	done   bool
}

// NewModel returns the wizard form prefilled with start
func NewModel(ctx context.Context, flow Submitter, start setup.Input) Model {
	newInput := func(value, placeholder string, limit int) textinput.Model {
		in := textinput.New()
		in.Prompt = ""
		in.Placeholder = placeholder
		in.CharLimit = limit
		in.SetValue(value)
		return in
	}

	itoa := func(v int) string {
		if v == 0 {
			return ""
		}
		return strconv.Itoa(v)
	}

	m := Model{
		ctx:  ctx,
		flow: flow,
		fields: []field{
			{key: setup.FieldName, label: "Printer name", input: newInput(start.Name, setup.DefaultName, 64)},
			{key: setup.FieldHost, label: "Printer IP address", input: newInput(start.Host, "192.168.1.50", 128)},
			{key: setup.FieldColumnsFontA, label: "Columns (font A)", input: newInput(itoa(start.ColumnsFontA), "42", 3)},
			{key: setup.FieldColumnsFontB, label: "Columns (font B)", input: newInput(itoa(start.ColumnsFontB), "56", 3)},
			{key: setup.FieldImageMaxWidth, label: "Max image width", input: newInput(itoa(start.ImageMaxWidth), "512", 4)},
		},
	}
	m.fields[0].input.Focus()
	return m
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Result is the outcome of the last submission
func (m Model) Result() (setup.Result, error) {
	return m.result, m.err
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.updateKey(msg)

	case submitFinishedMsg:
		m.busy = false
		m.result = msg.Result
		m.err = msg.Err
		if msg.Err != nil {
			m.status = statusErrStyle.Render("Error: " + msg.Err.Error())
			m.done = true
			return m, tea.Quit
		}
		switch msg.Result.Type {
		case setup.ResultCreateEntry:
			m.status = statusOKStyle.Render(fmt.Sprintf("Added %q", msg.Result.Entry.Title))
			m.done = true
			return m, tea.Quit
		case setup.ResultAbort:
			m.status = statusErrStyle.Render("This printer is already configured.")
			m.done = true
			return m, tea.Quit
		}
		m.errors = msg.Result.Errors
		m.status = ""
		if base, ok := m.errors[setup.FieldBase]; ok {
			m.status = statusErrStyle.Render(errorText[base])
		}
		return m, nil
	}

	return m.updateFocused(msg)
}

func (m Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.busy {
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		return m, nil
	}

	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		m.done = true
		return m, tea.Quit
	case tea.KeyTab, tea.KeyDown:
		return m.moveFocus(1), nil
	case tea.KeyShiftTab, tea.KeyUp:
		return m.moveFocus(-1), nil
	case tea.KeyEnter:
		if m.focus < len(m.fields)-1 {
			return m.moveFocus(1), nil
		}
		return m.submit()
	}

	return m.updateFocused(msg)
}

func (m Model) updateFocused(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	m.fields[m.focus].input, cmd = m.fields[m.focus].input.Update(msg)
	return m, cmd
}

func (m Model) moveFocus(delta int) Model {
	m.fields[m.focus].input.Blur()
	m.focus = (m.focus + delta + len(m.fields)) % len(m.fields)
	m.fields[m.focus].input.Focus()
	return m
}

// Input reads the form. Numbers that do not parse are sent as -1 so the
// wizard reports them out of range.
func (m Model) Input() setup.Input {
	num := func(i int) int {
		raw := strings.TrimSpace(m.fields[i].input.Value())
		if raw == "" {
			return 0
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return -1
		}
		return v
	}

	return setup.Input{
		Name:          m.fields[0].input.Value(),
		Host:          m.fields[1].input.Value(),
		ColumnsFontA:  num(2),
		ColumnsFontB:  num(3),
		ImageMaxWidth: num(4),
	}
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	m.busy = true
	m.status = statusInfoStyle.Render("Testing connection...")
	in := m.Input()
	flow, ctx := m.flow, m.ctx
	return m, func() tea.Msg {
		res, err := flow.Submit(ctx, in)
		return submitFinishedMsg{Result: res, Err: err}
	}
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Receipt Printer setup"))
	b.WriteString("\n\n")

	for i, f := range m.fields {
		label := labelStyle.Render(f.label)
		if i == m.focus {
			label = focusedLabelStyle.Render(f.label)
		}
		b.WriteString(label)
		b.WriteString(f.input.View())
		if key, ok := m.errors[f.key]; ok {
			b.WriteString("  ")
			b.WriteString(fieldErrStyle.Render(errorText[key]))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.status != "" {
		b.WriteString(m.status)
		b.WriteString("\n")
	}
	if !m.done {
		b.WriteString(keysStyle.Render("tab/↑↓ move • enter next/submit • esc cancel"))
		b.WriteString("\n")
	}
	return b.String()
}
