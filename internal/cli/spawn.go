package cli

import (
	"github.com/spf13/cobra"

	"github.com/matzehuels/blockflow/pkg/engine"
	"github.com/matzehuels/blockflow/pkg/model"
)

// spawnCommand creates the "spawn" command: drop a connection from a handle
// onto empty canvas and pick the block to create there.
func (c *CLI) spawnCommand() *cobra.Command {
	var (
		path string
		from string
		at   string
		kind string
	)
	cmd := &cobra.Command{
		Use:   "spawn",
		Short: "Create a connected block by dropping an edge on the canvas",
		Long: `Start a connection at --from, drop it at --at and choose the kind of the
new block from an interactive menu of blocks that could be connected there.
With --kind the menu is skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pos, err := parsePosition(at)
			if err != nil {
				return err
			}
			return c.editFlow(path, func(eng *engine.Engine) error {
				return c.spawn(eng, from, pos, kind)
			})
		},
	}
	addFileFlag(cmd, &path)
	cmd.Flags().StringVar(&from, "from", "", "origin NODE[:HANDLE]; the handle defaults to the first source handle")
	cmd.Flags().StringVar(&at, "at", "", "drop position x,y")
	cmd.Flags().StringVar(&kind, "kind", "", "kind of the new block (skips the menu)")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.RegisterFlagCompletionFunc("from", c.completeNodeIDs)
	_ = cmd.RegisterFlagCompletionFunc("kind", c.completeKinds)
	_ = cmd.MarkFlagRequired("at")
	return cmd
}

func (c *CLI) spawn(eng *engine.Engine, from string, at model.Position, kind string) error {
	node, handle, err := resolveHandle(eng, from, model.HandleSource)
	if err != nil {
		return err
	}
	sp := eng.Spawner()
	if err := sp.BeginDrag(node, handle); err != nil {
		return err
	}
	if err := sp.EndDrag(false, at); err != nil {
		return err
	}

	if kind == "" {
		candidates, err := sp.Candidates()
		if err != nil {
			return err
		}
		picked, err := c.tuiRun(NewKindPickerModel(candidates))
		if err != nil || picked.Selected == nil {
			_ = sp.Cancel()
			if err == nil {
				c.printInfo("Cancelled")
			}
			return err
		}
		kind = picked.Selected.Kind
	}

	created, edge, err := sp.Choose(kind)
	if err != nil {
		_ = sp.Cancel()
		return err
	}
	c.printSuccess("Spawned %s %s", created.Kind, StyleHighlight.Render(created.ID))
	c.printDetail("%s:%s %s %s:%s", edge.Source, edge.SourceHandle, iconArrow, edge.Target, edge.TargetHandle)
	return nil
}
