package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/blockflow/pkg/model"
	"github.com/matzehuels/blockflow/pkg/registry"
)

// kindsCommand creates the "kinds" command listing the block catalog.
func (c *CLI) kindsCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "kinds",
		Short: "List the available block kinds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.config()
			if err != nil {
				return err
			}
			reg, err := cfg.Registry()
			if err != nil {
				return err
			}
			if asJSON {
				return c.writeKindsJSON(reg.All())
			}
			fmt.Fprintln(c.out, kindsTable(reg.All()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the catalog as JSON")
	return cmd
}

func kindsTable(entries []registry.Entry) string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{e.Kind, e.Title, e.Category, handleSummary(e.Handles), e.Description})
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("Kind", "Title", "Category", "Handles", "Description").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return styleHeader
			}
			if row >= len(entries) {
				return lipgloss.NewStyle()
			}
			switch col {
			case 0:
				return kindStyle(entries[row].GradientColor).Bold(true)
			case 4:
				return StyleDim.Width(48)
			default:
				return lipgloss.NewStyle()
			}
		})
	return t.Render()
}

// handleSummary renders handles as "in ← · out →" with limits in brackets.
func handleSummary(handles []model.Handle) string {
	parts := make([]string, 0, len(handles))
	for _, h := range handles {
		arrow := "←"
		if h.Type == model.HandleSource {
			arrow = "→"
		}
		limit := ""
		if h.Max > 0 {
			limit = fmt.Sprintf("[%d]", h.Max)
		}
		parts = append(parts, h.ID+limit+" "+arrow)
	}
	return strings.Join(parts, " · ")
}

type kindJSON struct {
	Kind        string         `json:"kind"`
	Title       string         `json:"title"`
	Category    string         `json:"category,omitempty"`
	Description string         `json:"description,omitempty"`
	Handles     []model.Handle `json:"handles"`
	Defaults    model.Payload  `json:"defaults"`
}

func (c *CLI) writeKindsJSON(entries []registry.Entry) error {
	out := make([]kindJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, kindJSON{
			Kind:        e.Kind,
			Title:       e.Title,
			Category:    e.Category,
			Description: e.Description,
			Handles:     e.Handles,
			Defaults:    e.Defaults.Clone(),
		})
	}
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
