package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/blockflow/internal/metrics"
	"github.com/matzehuels/blockflow/internal/server"
	"github.com/matzehuels/blockflow/pkg/storage"
)

// serveCommand creates the "serve" command running the HTTP API.
func (c *CLI) serveCommand() *cobra.Command {
	var (
		addr     string
		flowPath string
		noStore  bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a flow over the HTTP command API",
		Long: `Serve one flow over HTTP. With --file the flow is loaded at startup and
written back on shutdown. Stored flows live in the configured storage backend.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.config()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Server.Addr
			}
			ctx := runContext(cmd)

			eng, err := c.openFlow(flowPath, true)
			if err != nil {
				return err
			}
			defer eng.Close()

			m := metrics.New()
			m.Install()

			opts := server.Options{
				Metrics:         m.Handler(),
				Logger:          c.Logger,
				ReadTimeout:     cfg.Server.ReadTimeout,
				WriteTimeout:    cfg.Server.WriteTimeout,
				ShutdownTimeout: cfg.Server.ShutdownTimeout,
			}
			if !noStore {
				backend, err := c.openBackend(ctx)
				if err != nil {
					return err
				}
				defer backend.Close()
				opts.Flows = storage.NewFlows(backend, c.Logger)
			}
			srv := server.New(eng, opts)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return srv.ListenAndServe(gctx, addr)
			})
			g.Go(func() error {
				<-gctx.Done()
				if flowPath == "" {
					return nil
				}
				if err := c.saveFlow(eng, flowPath); err != nil {
					return err
				}
				c.Logger.Info("saved flow", "path", flowPath, "flow", eng.String())
				return nil
			})
			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVarP(&flowPath, "file", "f", "", "flow document to load and save back on shutdown")
	cmd.Flags().BoolVar(&noStore, "no-store", false, "disable the /flows storage routes")
	return cmd
}
