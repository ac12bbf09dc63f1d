package nodelink

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/blockflow/pkg/model"
	"github.com/matzehuels/blockflow/pkg/registry"
)

// Options configures node-link diagram rendering.
type Options struct {
	// Detailed includes the payload fields in node labels.
	// When false, only the kind title and node ID are shown.
	Detailed bool

	// Ranked ignores node positions and lets Graphviz rank the flow
	// top to bottom instead.
	Ranked bool
}

// DefaultNodeSize is used for nodes that were never measured.
var DefaultNodeSize = model.Size{Width: 160, Height: 64}

const pointsPerInch = 72

var colors = map[string]string{
	"green":  "#d1fae5",
	"blue":   "#dbeafe",
	"purple": "#ede9fe",
	"orange": "#ffedd5",
	"red":    "#fee2e2",
	"gray":   "#f3f4f6",
}

// ToDOT converts a flow to Graphviz DOT format for node-link visualization.
// Node positions are pinned from their canvas geometry unless opts.Ranked is
// set. The resulting DOT string can be rendered using [RenderSVG].
//
// Edges leaving any handle other than the kind's first source handle are
// labelled with the handle id, so both branches of a conditional path are
// distinguishable.
func ToDOT(nodes []model.Node, edges []model.Edge, reg *registry.Registry, opts Options) string {
	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	if opts.Ranked {
		buf.WriteString("  rankdir=TB;\n")
		buf.WriteString("  ranksep=0.5;\n")
		buf.WriteString("  nodesep=0.3;\n")
	} else {
		buf.WriteString("  layout=neato;\n")
		fmt.Fprintf(&buf, "  inputscale=%d;\n", pointsPerInch)
		buf.WriteString("  splines=true;\n")
	}
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=12, margin=\"0.2,0.1\"];\n")
	buf.WriteString("\n")

	for _, n := range nodes {
		entry, _ := reg.Lookup(n.Kind)
		attrs := fmtAttrs(n, entry, opts)
		fmt.Fprintf(&buf, "  %q [%s];\n", n.ID, strings.Join(attrs, ", "))
	}

	buf.WriteString("\n")
	for _, e := range edges {
		var attrs []string
		if label := edgeLabel(e, reg, nodes); label != "" {
			attrs = append(attrs, fmt.Sprintf("label=%q", label))
		}
		if len(attrs) == 0 {
			fmt.Fprintf(&buf, "  %q -> %q;\n", e.Source, e.Target)
			continue
		}
		fmt.Fprintf(&buf, "  %q -> %q [%s];\n", e.Source, e.Target, strings.Join(attrs, ", "))
	}

	buf.WriteString("}\n")
	return buf.String()
}

func fmtLabel(n model.Node, entry registry.Entry, detailed bool) string {
	title := entry.Title
	if title == "" {
		title = n.Kind
	}
	head := title + "\n" + n.ID
	if !detailed || len(n.Payload) == 0 {
		return head
	}

	parts := make([]string, 0, len(n.Payload))
	for _, k := range slices.Sorted(maps.Keys(n.Payload)) {
		parts = append(parts, fmt.Sprintf("%s: %v", k, n.Payload[k]))
	}
	return head + "\n" + strings.Join(parts, "\n")
}

func fmtAttrs(n model.Node, entry registry.Entry, opts Options) []string {
	attrs := []string{fmt.Sprintf("label=%q", fmtLabel(n, entry, opts.Detailed))}
	if c, ok := colors[entry.GradientColor]; ok {
		attrs = append(attrs, fmt.Sprintf("fillcolor=%q", c))
	}
	if opts.Ranked {
		return attrs
	}

	size := DefaultNodeSize
	if n.Size != nil && n.Size.Width > 0 && n.Size.Height > 0 {
		size = *n.Size
	}
	// Graphviz positions are node centers with y growing upwards.
	cx := n.Position.X + size.Width/2
	cy := -(n.Position.Y + size.Height/2)
	attrs = append(attrs,
		fmt.Sprintf("pos=\"%s,%s!\"", fmtFloat(cx), fmtFloat(cy)),
		fmt.Sprintf("width=%s", fmtFloat(size.Width/pointsPerInch)),
		fmt.Sprintf("height=%s", fmtFloat(size.Height/pointsPerInch)),
		"fixedsize=true",
	)
	return attrs
}

func edgeLabel(e model.Edge, reg *registry.Registry, nodes []model.Node) string {
	var kind string
	for _, n := range nodes {
		if n.ID == e.Source {
			kind = n.Kind
			break
		}
	}
	first, ok := reg.FirstHandle(kind, model.HandleSource)
	if ok && first.ID == e.SourceHandle && e.SourceHandle == registry.HandleOut {
		return ""
	}
	return e.SourceHandle
}

func fmtFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// RenderSVG renders a DOT graph to SVG using Graphviz. Graphs produced by
// [ToDOT] with pinned positions are laid out with neato so the positions are
// kept; ranked graphs use dot.
func RenderSVG(dot string) ([]byte, error) {
	ctx := context.Background()
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()
	if pinnedRe.MatchString(dot) {
		gv.SetLayout(graphviz.NEATO)
	}

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return normalizeViewBox(buf.Bytes()), nil
}

var (
	pinnedRe  = regexp.MustCompile(`(?m)^\s*layout=neato;`)
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.-]+)\s+([0-9.-]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}

	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}

	newSvg := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`,
		w, h, w, h)

	return svgTagRe.ReplaceAll(svg, []byte(newSvg))
}
