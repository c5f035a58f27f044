package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fbkclanna/worksync/internal/conflict"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true)
	errStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	dimStyle      = lipgloss.NewStyle().Faint(true)
)

// --- pickerModel: bubbletea model for choosing a side per conflict ---

type pickerModel struct {
	entries []conflict.Entry
	choices []conflict.Choice
	cursor  int
	errMsg  string
	done    bool
	aborted bool
}

func newPickerModel(entries []conflict.Entry) pickerModel {
	return pickerModel{
		entries: entries,
		choices: make([]conflict.Choice, len(entries)),
	}
}

func (m pickerModel) Init() tea.Cmd {
	return nil
}

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		m.errMsg = ""
		switch msg.String() {
		case "ctrl+c", "esc":
			m.aborted = true
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.entries)-1 {
				m.cursor++
			}
		case "left", "h", "o":
			m.choices[m.cursor] = conflict.ChoiceOurs
		case "right", "l", "t":
			m.choices[m.cursor] = conflict.ChoiceTheirs
		case "enter":
			for i, c := range m.choices {
				if c == "" {
					m.errMsg = fmt.Sprintf("no choice for %s", m.entries[i].Path)
					return m, nil
				}
			}
			m.done = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m pickerModel) View() string {
	if m.done {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("Pick a side per conflict (o = ours, t = theirs, enter to confirm)") + "\n")
	for i, e := range m.entries {
		prefix := "  "
		if i == m.cursor {
			prefix = "> "
		}
		ours := " ours "
		theirs := " theirs "
		switch m.choices[i] {
		case conflict.ChoiceOurs:
			ours = selectedStyle.Render(" ours ")
		case conflict.ChoiceTheirs:
			theirs = selectedStyle.Render(" theirs ")
		}
		b.WriteString(fmt.Sprintf("%s%s %s %s/%s\n",
			prefix, e.Path, dimStyle.Render("["+string(e.Kind)+"]"), ours, theirs))
	}
	if m.errMsg != "" {
		b.WriteString(errStyle.Render(m.errMsg) + "\n")
	}
	return b.String()
}

// pickResolutions runs the interactive picker and converts the choices into
// resolutions.
func pickResolutions(entries []conflict.Entry) ([]conflict.Resolution, error) {
	result, err := tea.NewProgram(newPickerModel(entries)).Run()
	if err != nil {
		return nil, err
	}
	m := result.(pickerModel)
	if m.aborted {
		return nil, fmt.Errorf("user aborted")
	}
	resolutions := make([]conflict.Resolution, len(entries))
	for i, e := range entries {
		resolutions[i] = conflict.Resolution{Path: e.Path, Choice: m.choices[i]}
	}
	return resolutions, nil
}

// --- inputModel: bubbletea model for text input with validation ---

type inputModel struct {
	textInput textinput.Model
	title     string
	validate  func(string) error
	errMsg    string
	done      bool
	aborted   bool
}

func (m inputModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m inputModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.aborted = true
			return m, tea.Quit
		case "enter":
			val := m.textInput.Value()
			if m.validate != nil {
				if err := m.validate(val); err != nil {
					m.errMsg = err.Error()
					return m, nil
				}
			}
			m.done = true
			return m, tea.Quit
		}
	}
	m.errMsg = ""
	var cmd tea.Cmd
	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m inputModel) View() string {
	if m.done {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title) + "\n")
	b.WriteString(m.textInput.View() + "\n")
	if m.errMsg != "" {
		b.WriteString(errStyle.Render(m.errMsg) + "\n")
	}
	return b.String()
}

func promptInput(title, placeholder string, validate func(string) error) (string, error) {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.Focus()

	m := inputModel{
		textInput: ti,
		title:     title,
		validate:  validate,
	}

	result, err := tea.NewProgram(m).Run()
	if err != nil {
		return "", err
	}
	rm := result.(inputModel)
	if rm.aborted {
		return "", fmt.Errorf("user aborted")
	}
	return rm.textInput.Value(), nil
}
