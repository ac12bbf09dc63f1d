package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	flowio "github.com/matzehuels/blockflow/pkg/io"
	"github.com/matzehuels/blockflow/pkg/storage"
)

// storeCommand creates the "store" command managing named flows in the
// configured storage backend.
func (c *CLI) storeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Manage stored flows",
	}

	cmd.AddCommand(c.storePutCommand())
	cmd.AddCommand(c.storeGetCommand())
	cmd.AddCommand(c.storeRmCommand())
	cmd.AddCommand(c.storeLsCommand())

	return cmd
}

// openBackend connects the configured backend, showing a spinner for
// remote ones.
func (c *CLI) openBackend(ctx context.Context) (storage.Backend, error) {
	cfg, err := c.config()
	if err != nil {
		return nil, err
	}
	remote := cfg.Storage.Backend == storage.BackendRedis || cfg.Storage.Backend == storage.BackendMongo
	var spin *Spinner
	if remote {
		spin = newSpinnerWithContext(ctx, "Connecting to "+cfg.Storage.Backend+"...")
		spin.Start()
	}
	backend, err := cfg.OpenBackend(ctx)
	if spin != nil {
		spin.Stop()
	}
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Storage.Backend, err)
	}
	c.Logger.Debug("storage ready", "backend", cfg.Storage.Backend)
	return backend, nil
}

// withFlows runs fn against the stored flows and closes the backend.
func (c *CLI) withFlows(cmd *cobra.Command, fn func(context.Context, *storage.Flows) error) error {
	ctx := runContext(cmd)
	backend, err := c.openBackend(ctx)
	if err != nil {
		return err
	}
	defer backend.Close()
	return fn(ctx, storage.NewFlows(backend, c.Logger))
}

func (c *CLI) storePutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "put NAME FILE",
		Short: "Store a flow document under NAME",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Opening through the engine validates the document first.
			eng, err := c.openFlow(args[1], false)
			if err != nil {
				return err
			}
			defer eng.Close()
			doc := eng.Export()
			return c.withFlows(cmd, func(ctx context.Context, flows *storage.Flows) error {
				if err := flows.Save(ctx, args[0], doc); err != nil {
					return err
				}
				c.printSuccess("Stored %s", StyleHighlight.Render(args[0]))
				c.printStats(len(doc.Nodes), len(doc.Edges))
				return nil
			})
		},
	}
}

func (c *CLI) storeGetCommand() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "get NAME",
		Short: "Print or export a stored flow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withFlows(cmd, func(ctx context.Context, flows *storage.Flows) error {
				doc, err := flows.Load(ctx, args[0])
				if err != nil {
					return err
				}
				if output == "" {
					return flowio.WriteJSON(doc, c.out)
				}
				if err := flowio.ExportFile(doc, output); err != nil {
					return err
				}
				c.printSuccess("Exported %s", args[0])
				c.printFile(output)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to a .json or .yaml file instead of stdout")
	return cmd
}

func (c *CLI) storeRmCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rm NAME...",
		Short: "Delete stored flows",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withFlows(cmd, func(ctx context.Context, flows *storage.Flows) error {
				for _, name := range args {
					if err := flows.Delete(ctx, name); err != nil {
						return err
					}
				}
				c.printSuccess("Deleted %d flows", len(args))
				return nil
			})
		},
	}
}

func (c *CLI) storeLsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List stored flows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withFlows(cmd, func(ctx context.Context, flows *storage.Flows) error {
				names, err := flows.List(ctx)
				if err != nil {
					return err
				}
				if len(names) == 0 {
					c.printInfo("No stored flows")
					return nil
				}
				for _, name := range names {
					fmt.Fprintln(c.out, name)
				}
				return nil
			})
		},
	}
}
