package cli

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/matzehuels/blockflow/pkg/registry"
)

// List styles
var (
	listSelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	listNormalStyle   = lipgloss.NewStyle().Foreground(colorWhite)
	listDimStyle      = lipgloss.NewStyle().Foreground(colorDim)
)

// =============================================================================
// KindPickerModel - Interactive block kind selection
// =============================================================================

// KindPickerModel is the bubbletea model for the edge-drop menu: it lists the
// kinds a new block could have and lets the user pick one.
type KindPickerModel struct {
	Kinds    []registry.Entry
	Cursor   int
	Selected *registry.Entry
	Height   int
	Offset   int
}

// NewKindPickerModel creates a picker over kinds.
func NewKindPickerModel(kinds []registry.Entry) KindPickerModel {
	return KindPickerModel{Kinds: kinds, Height: 10}
}

func (m KindPickerModel) Init() tea.Cmd {
	return nil
}

func (m KindPickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.Cursor > 0 {
				m.Cursor--
				if m.Cursor < m.Offset {
					m.Offset = m.Cursor
				}
			}
		case "down", "j":
			if m.Cursor < len(m.Kinds)-1 {
				m.Cursor++
				if m.Cursor >= m.Offset+m.Height {
					m.Offset = m.Cursor - m.Height + 1
				}
			}
		case "enter":
			if len(m.Kinds) == 0 {
				return m, tea.Quit
			}
			entry := m.Kinds[m.Cursor]
			m.Selected = &entry
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.Height = max(msg.Height-6, 3)
	}
	return m, nil
}

func (m KindPickerModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Add Block"))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("↑/↓ navigate  ⏎ select  q cancel"))
	b.WriteString("\n\n")

	if len(m.Kinds) == 0 {
		b.WriteString(listDimStyle.Render("  no block can be connected here"))
		b.WriteString("\n")
		return b.String()
	}

	end := min(m.Offset+m.Height, len(m.Kinds))
	for i := m.Offset; i < end; i++ {
		e := m.Kinds[i]
		cursor := "  "
		if i == m.Cursor {
			cursor = "▸ "
		}
		title := kindStyle(e.GradientColor).Render("●") + " " + fmt.Sprintf("%-18s", e.Title)
		line := cursor + title + " " + listDimStyle.Render(e.Kind)
		if i == m.Cursor {
			b.WriteString(listSelectedStyle.Render(line))
			b.WriteString("\n    ")
			b.WriteString(listDimStyle.Render(e.Description))
		} else {
			b.WriteString(listNormalStyle.Render(line))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(listDimStyle.Render(fmt.Sprintf("  [%d/%d]", m.Cursor+1, len(m.Kinds))))
	return b.String()
}

// runKindPicker runs the picker on the terminal and returns its final state.
func runKindPicker(m KindPickerModel) (KindPickerModel, error) {
	final, err := tea.NewProgram(m).Run()
	if err != nil {
		return m, fmt.Errorf("kind picker: %w", err)
	}
	return final.(KindPickerModel), nil
}
