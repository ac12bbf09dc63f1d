package io

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/matzehuels/blockflow/pkg/errors"
	"github.com/matzehuels/blockflow/pkg/flow"
	"github.com/matzehuels/blockflow/pkg/model"
)

// FormatVersion is the document version written by this package.
const FormatVersion = 1

// Document is the persisted form of a flow: its nodes in z-order and its
// edges in insertion order. Interaction state is not part of it.
type Document struct {
	Version int          `json:"version" yaml:"version"`
	Nodes   []model.Node `json:"nodes" yaml:"nodes"`
	Edges   []model.Edge `json:"edges" yaml:"edges"`
}

// Snapshot captures the current contents of s.
func Snapshot(s *flow.Store) Document {
	return Document{
		Version: FormatVersion,
		Nodes:   s.Nodes(),
		Edges:   s.Edges(),
	}
}

func (d Document) checkVersion() error {
	if d.Version > FormatVersion {
		return errors.New(errors.ErrCodeCorruptGraph, "unsupported document version %d (max %d)", d.Version, FormatVersion)
	}
	return nil
}

func (d Document) prepared() Document {
	if d.Version == 0 {
		d.Version = FormatVersion
	}
	if d.Nodes == nil {
		d.Nodes = []model.Node{}
	}
	if d.Edges == nil {
		d.Edges = []model.Edge{}
	}
	return d
}

// WriteJSON encodes the document as indented JSON.
// The output can be re-imported with [ReadJSON].
func WriteJSON(d Document, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d.prepared()); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}

// WriteYAML encodes the document as YAML.
func WriteYAML(d Document, w io.Writer) error {
	data, err := yaml.MarshalWithOptions(d.prepared(), yaml.IndentSequence(true))
	if err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// ExportFile writes the document to path, choosing the codec by extension.
func ExportFile(d Document, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	if isYAML(path) {
		return WriteYAML(d, f)
	}
	return WriteJSON(d, f)
}
