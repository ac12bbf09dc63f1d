package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/blockflow/pkg/engine"
	"github.com/matzehuels/blockflow/pkg/errors"
	"github.com/matzehuels/blockflow/pkg/render/nodelink"
)

const (
	formatDOT = "dot"
	formatSVG = "svg"
)

// renderOpts holds the command-line flags for the render command.
type renderOpts struct {
	output   string // output file, "-" for stdout
	format   string // "dot" or "svg"; inferred from output when empty
	detailed bool   // include payload fields in node labels
	ranked   bool   // let graphviz rank nodes instead of pinning canvas positions
}

// renderCommand creates the "render" command.
func (c *CLI) renderCommand() *cobra.Command {
	var opts renderOpts
	cmd := &cobra.Command{
		Use:   "render FILE",
		Short: "Render a flow as a DOT or SVG diagram",
		Long: `Render a flow document with graphviz. Nodes are pinned to their canvas
positions unless --ranked is given.`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeFlowFiles,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runRender(args[0], opts)
		},
	}
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (default FILE with the format's extension, - for stdout)")
	cmd.Flags().StringVar(&opts.format, "format", "", "output format: dot or svg (default from --output, else svg)")
	cmd.Flags().BoolVar(&opts.detailed, "detailed", false, "show payload fields")
	cmd.Flags().BoolVar(&opts.ranked, "ranked", false, "use a top-down ranked layout")
	return cmd
}

func (c *CLI) runRender(path string, opts renderOpts) error {
	format, err := renderFormat(opts)
	if err != nil {
		return err
	}
	eng, err := c.openFlow(path, false)
	if err != nil {
		return err
	}
	defer eng.Close()

	op := c.beginOp(opRender, path)
	data, out, err := c.writeRender(eng, path, format, opts)
	op.finish(len(eng.Nodes()), len(eng.Edges()), err)
	if err != nil || out == "-" {
		return err
	}
	c.printSuccess("Rendered %d blocks", len(eng.Nodes()))
	c.printFile(out)
	c.Logger.Debug("render output", "bytes", len(data), "format", format)
	return nil
}

// writeRender renders the flow and writes it to the output named by opts,
// returning the bytes written and where they went.
func (c *CLI) writeRender(eng *engine.Engine, path, format string, opts renderOpts) ([]byte, string, error) {
	dot := nodelink.ToDOT(eng.Nodes(), eng.Edges(), eng.Registry(), nodelink.Options{
		Detailed: opts.detailed,
		Ranked:   opts.ranked,
	})
	data := []byte(dot)
	if format == formatSVG {
		var err error
		if data, err = nodelink.RenderSVG(dot); err != nil {
			return nil, "", fmt.Errorf("render svg: %w", err)
		}
	}

	out := opts.output
	if out == "" {
		out = strings.TrimSuffix(path, filepath.Ext(path)) + "." + format
	}
	if out == "-" {
		_, err := c.out.Write(data)
		return data, out, err
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return nil, out, fmt.Errorf("write %s: %w", out, err)
	}
	return data, out, nil
}

func renderFormat(opts renderOpts) (string, error) {
	format := strings.ToLower(opts.format)
	if format == "" {
		switch strings.ToLower(filepath.Ext(opts.output)) {
		case ".dot", ".gv":
			format = formatDOT
		default:
			format = formatSVG
		}
	}
	if format != formatDOT && format != formatSVG {
		return "", errors.New(errors.ErrCodeInvalidInput, "unknown format %q (want dot or svg)", opts.format)
	}
	return format, nil
}
