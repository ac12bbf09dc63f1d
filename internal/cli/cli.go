package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/blockflow/pkg/buildinfo"
	"github.com/matzehuels/blockflow/pkg/config"
	"github.com/matzehuels/blockflow/pkg/engine"
	"github.com/matzehuels/blockflow/pkg/errors"
	flowio "github.com/matzehuels/blockflow/pkg/io"
	"github.com/matzehuels/blockflow/pkg/model"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for directories and display.
	appName = "blockflow"

	// defaultFlowFile is the flow document edited when --file is not given.
	defaultFlowFile = "flow.json"
)

// LogInfo is the default level of the command-line logger.
const LogInfo = log.InfoLevel

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	// ConfigPath is the --config flag. Empty selects blockflow.toml in the
	// working directory when present.
	ConfigPath string
	// Verbose is the --verbose flag. It forces debug logging over the
	// configured level.
	Verbose bool

	cfg    *config.Config
	out    io.Writer
	in     io.Reader
	tuiRun func(KindPickerModel) (KindPickerModel, error)
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: newLogger(w, level),
		out:    os.Stdout,
		in:     os.Stdin,
		tuiRun: runKindPicker,
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
	c.Logger.SetReportTimestamp(level <= log.DebugLevel)
}

// SetOutput redirects command output, for tests.
func (c *CLI) SetOutput(w io.Writer) { c.out = w }

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           appName,
		Short:         "Blockflow edits chat-automation flow graphs",
		Long:          `Blockflow builds and validates flow graphs of typed blocks (messages, conditions, tags) joined by directed connections, keeping the canvas free of overlapping nodes.`,
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if c.Verbose {
				c.SetLogLevel(log.DebugLevel)
			}
			return nil
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVar(&c.ConfigPath, "config", "", "config file (default ./"+config.DefaultFile+" if present)")
	root.PersistentFlags().BoolVarP(&c.Verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(c.kindsCommand())
	root.AddCommand(c.newCommand())
	root.AddCommand(c.addCommand())
	root.AddCommand(c.connectCommand())
	root.AddCommand(c.deleteCommand())
	root.AddCommand(c.moveCommand())
	root.AddCommand(c.validateCommand())
	root.AddCommand(c.renderCommand())
	root.AddCommand(c.spawnCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.storeCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Configuration and Engine Factory
// =============================================================================

// config loads the configuration once per process.
func (c *CLI) config() (config.Config, error) {
	if c.cfg != nil {
		return *c.cfg, nil
	}
	cfg, err := config.Load(c.ConfigPath)
	if err != nil {
		return config.Config{}, err
	}
	c.cfg = &cfg
	if !c.Verbose {
		c.SetLogLevel(cfg.Level())
	}
	return cfg, nil
}

// newEngine creates an engine from the configuration.
func (c *CLI) newEngine() (*engine.Engine, error) {
	cfg, err := c.config()
	if err != nil {
		return nil, err
	}
	reg, err := cfg.Registry()
	if err != nil {
		return nil, err
	}
	return engine.New(reg, cfg.Engine(), engine.WithLogger(c.Logger)), nil
}

// openFlow creates an engine holding the document at path. A missing file
// yields an empty flow when allowMissing is set.
func (c *CLI) openFlow(path string, allowMissing bool) (*engine.Engine, error) {
	eng, err := c.newEngine()
	if err != nil {
		return nil, err
	}
	if allowMissing {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return eng, nil
		}
	}
	op := c.beginOp(opLoad, path)
	doc, err := flowio.ImportFile(path)
	if err == nil {
		err = eng.Import(doc)
		if err != nil {
			err = fmt.Errorf("%s: %w", path, err)
		}
	}
	op.finish(len(doc.Nodes), len(doc.Edges), err)
	if err != nil {
		eng.Close()
		return nil, err
	}
	return eng, nil
}

// editFlow opens path, applies fn and writes the result back.
func (c *CLI) editFlow(path string, fn func(*engine.Engine) error) error {
	eng, err := c.openFlow(path, false)
	if err != nil {
		return err
	}
	defer eng.Close()
	if err := fn(eng); err != nil {
		return err
	}
	return c.saveFlow(eng, path)
}

func (c *CLI) saveFlow(eng *engine.Engine, path string) (err error) {
	op := c.beginOp(opSave, path)
	doc := eng.Export()
	defer func() { op.finish(len(doc.Nodes), len(doc.Edges), err) }()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return flowio.ExportFile(doc, path)
}

// =============================================================================
// Flag Helpers
// =============================================================================

// addFileFlag registers the --file flag shared by the editing commands.
func addFileFlag(cmd *cobra.Command, path *string) {
	cmd.Flags().StringVarP(path, "file", "f", defaultFlowFile, "flow document (.json or .yaml)")
	_ = cmd.RegisterFlagCompletionFunc("file", completeFlowFiles)
}

// parsePair parses "a,b" (or "AxB" when sep is "x") into two floats.
func parsePair(s, sep, what string) (float64, float64, error) {
	a, b, ok := strings.Cut(s, sep)
	if !ok {
		return 0, 0, errors.New(errors.ErrCodeInvalidInput, "%s %q: want two numbers separated by %q", what, s, sep)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(a), 64)
	if err != nil {
		return 0, 0, errors.Wrap(errors.ErrCodeInvalidInput, err, "%s %q", what, s)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(b), 64)
	if err != nil {
		return 0, 0, errors.Wrap(errors.ErrCodeInvalidInput, err, "%s %q", what, s)
	}
	return x, y, nil
}

func parsePosition(s string) (model.Position, error) {
	x, y, err := parsePair(s, ",", "position")
	return model.Position{X: x, Y: y}, err
}

func parseSize(s string) (*model.Size, error) {
	if s == "" {
		return nil, nil
	}
	w, h, err := parsePair(strings.ToLower(s), "x", "size")
	if err != nil {
		return nil, err
	}
	return &model.Size{Width: w, Height: h}, nil
}

// parseHandleRef parses "node" or "node:handle".
func parseHandleRef(s string) (node, handle string) {
	node, handle, _ = strings.Cut(s, ":")
	return node, handle
}

// runContext returns cmd's context, falling back to Background when cobra
// was not started with one.
func runContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
