package cli

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/blockflow/pkg/engine"
	"github.com/matzehuels/blockflow/pkg/errors"
	"github.com/matzehuels/blockflow/pkg/model"
	"github.com/matzehuels/blockflow/pkg/registry"
)

// newCommand creates the "new" command.
func (c *CLI) newCommand() *cobra.Command {
	var (
		path  string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create a flow document holding a start block",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(path); err == nil && !force {
				return errors.New(errors.ErrCodeDuplicateID, "%s already exists (use --force to overwrite)", path)
			}
			eng, err := c.newEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			start, err := eng.CreateNodeOfKind(registry.KindStart, model.Position{})
			if err != nil {
				return err
			}
			if err := c.saveFlow(eng, path); err != nil {
				return err
			}
			c.printSuccess("Created %s", path)
			c.printKeyValue("start", start.ID)
			c.printNextStep("Add a block", "blockflow add text-message -f "+path)
			return nil
		},
	}
	addFileFlag(cmd, &path)
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing document")
	return cmd
}

// addCommand creates the "add" command.
func (c *CLI) addCommand() *cobra.Command {
	var (
		path   string
		id     string
		at     string
		size   string
		fields []string
	)
	cmd := &cobra.Command{
		Use:   "add KIND",
		Short: "Add a block to a flow",
		Long: `Add a block of KIND to a flow. Payload fields are set with --set key=value;
values that parse as JSON are stored as such, anything else as a string.`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: c.completeKinds,
		RunE: func(cmd *cobra.Command, args []string) error {
			pos, err := parsePosition(at)
			if err != nil {
				return err
			}
			sz, err := parseSize(size)
			if err != nil {
				return err
			}
			return c.editFlow(path, func(eng *engine.Engine) error {
				node, err := eng.Registry().CreateDefault(args[0])
				if err != nil {
					return err
				}
				if id != "" {
					node.ID = id
				}
				node.Position = pos
				node.Size = sz
				if node, err = eng.AddNode(node); err != nil {
					return err
				}
				for _, f := range fields {
					key, raw, ok := strings.Cut(f, "=")
					if !ok {
						return errors.New(errors.ErrCodeInvalidInput, "--set %q: want key=value", f)
					}
					if node, err = eng.SetPayloadField(node.ID, "$."+key, fieldValue(raw)); err != nil {
						return err
					}
				}
				c.printSuccess("Added %s %s", node.Kind, StyleHighlight.Render(node.ID))
				c.printDetail("at %g,%g", node.Position.X, node.Position.Y)
				return nil
			})
		},
	}
	addFileFlag(cmd, &path)
	cmd.Flags().StringVar(&id, "id", "", "node id (default: generated)")
	cmd.Flags().StringVar(&at, "at", "0,0", "canvas position x,y")
	cmd.Flags().StringVar(&size, "size", "", "rendered size WxH, e.g. 200x96")
	cmd.Flags().StringArrayVar(&fields, "set", nil, "payload field key=value (repeatable)")
	return cmd
}

// fieldValue decodes raw as JSON, falling back to the raw string.
func fieldValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}

// connectCommand creates the "connect" command.
func (c *CLI) connectCommand() *cobra.Command {
	var (
		path   string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "connect SOURCE[:HANDLE] TARGET[:HANDLE]",
		Short: "Connect two blocks",
		Long: `Connect a source handle to a target handle. Omitted handles default to
the first handle of the right direction declared by the block's kind.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.editFlow(path, func(eng *engine.Engine) error {
				src, srcHandle, err := resolveHandle(eng, args[0], model.HandleSource)
				if err != nil {
					return err
				}
				tgt, tgtHandle, err := resolveHandle(eng, args[1], model.HandleTarget)
				if err != nil {
					return err
				}
				if dryRun {
					if err := eng.CanConnect(src, srcHandle, tgt, tgtHandle); err != nil {
						return err
					}
					c.printSuccess("%s:%s %s %s:%s is valid", src, srcHandle, iconArrow, tgt, tgtHandle)
					return nil
				}
				edge, err := eng.Connect(src, srcHandle, tgt, tgtHandle)
				if err != nil {
					return err
				}
				c.printSuccess("Connected %s:%s %s %s:%s", src, srcHandle, iconArrow, tgt, tgtHandle)
				c.printKeyValue("edge", edge.ID)
				return nil
			})
		},
	}
	addFileFlag(cmd, &path)
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only check whether the connection is valid")
	return cmd
}

func resolveHandle(eng *engine.Engine, ref string, typ model.HandleType) (string, string, error) {
	id, handle := parseHandleRef(ref)
	if handle != "" {
		return id, handle, nil
	}
	node, ok := eng.Node(id)
	if !ok {
		return "", "", errors.New(errors.ErrCodeNotFound, "node %s not found", id)
	}
	h, ok := eng.Registry().FirstHandle(node.Kind, typ)
	if !ok {
		return "", "", errors.InvalidConnection(errors.ReasonDanglingEndpoint, "%s has no %s handle", node.Kind, typ)
	}
	return id, h.ID, nil
}

// deleteCommand creates the "delete" command.
func (c *CLI) deleteCommand() *cobra.Command {
	var (
		path  string
		edges bool
	)
	cmd := &cobra.Command{
		Use:               "delete ID...",
		Aliases:           []string{"rm"},
		Short:             "Delete blocks and their connections",
		Args:              cobra.MinimumNArgs(1),
		ValidArgsFunction: c.completeNodeIDs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.editFlow(path, func(eng *engine.Engine) error {
				if edges {
					if err := eng.Disconnect(args...); err != nil {
						return err
					}
					c.printSuccess("Removed %d connections", len(args))
					return nil
				}
				before := len(eng.Edges())
				if err := eng.DeleteNodes(args...); err != nil {
					return err
				}
				c.printSuccess("Deleted %d blocks", len(args))
				if dropped := before - len(eng.Edges()); dropped > 0 {
					c.printDetail("%d connections removed with them", dropped)
				}
				return nil
			})
		},
	}
	addFileFlag(cmd, &path)
	cmd.Flags().BoolVar(&edges, "edges", false, "arguments are connection ids")
	return cmd
}

// moveCommand creates the "move" command.
func (c *CLI) moveCommand() *cobra.Command {
	var (
		path string
		to   string
	)
	cmd := &cobra.Command{
		Use:               "move ID",
		Short:             "Move a block, pushing overlapping neighbors aside",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: c.completeNodeIDs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pos, err := parsePosition(to)
			if err != nil {
				return err
			}
			return c.editFlow(path, func(eng *engine.Engine) error {
				before := positions(eng)
				node, err := eng.MoveNode(args[0], pos)
				if err != nil {
					return err
				}
				c.printSuccess("Moved %s to %g,%g", node.ID, node.Position.X, node.Position.Y)
				for _, n := range eng.Nodes() {
					if p, ok := before[n.ID]; ok && n.ID != node.ID && p != n.Position {
						c.printDetail("%s pushed to %g,%g", n.ID, n.Position.X, n.Position.Y)
					}
				}
				return nil
			})
		},
	}
	addFileFlag(cmd, &path)
	cmd.Flags().StringVar(&to, "to", "", "new position x,y")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func positions(eng *engine.Engine) map[string]model.Position {
	out := make(map[string]model.Position)
	for _, n := range eng.Nodes() {
		out[n.ID] = n.Position
	}
	return out
}

// validateCommand creates the "validate" command.
func (c *CLI) validateCommand() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "validate [FILE]",
		Short: "Check a flow document against the block catalog",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				path = args[0]
			}
			eng, err := c.openFlow(path, false)
			if err != nil {
				c.printError("%s: %s", path, errors.UserMessage(err))
				return err
			}
			defer eng.Close()
			op := c.beginOp(opValidate, path)
			err = eng.Verify()
			op.finish(len(eng.Nodes()), len(eng.Edges()), err)
			if err != nil {
				c.printError("%s: %s", path, errors.UserMessage(err))
				return err
			}
			c.printSuccess("%s is valid", path)
			c.printStats(len(eng.Nodes()), len(eng.Edges()))
			return nil
		},
	}
	addFileFlag(cmd, &path)
	return cmd
}
