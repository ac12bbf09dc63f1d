package io

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/matzehuels/blockflow/pkg/errors"
	"github.com/matzehuels/blockflow/pkg/flow"
)

// ReadJSON decodes a flow document from r.
//
// The input must be a JSON object with "nodes" and "edges" arrays:
//
//	{
//	  "version": 1,
//	  "nodes": [
//	    {"id": "a", "kind": "start", "position": {"x": 0, "y": 0}, "payload": {}},
//	    {"id": "b", "kind": "text-message", "position": {"x": 240, "y": 0},
//	     "payload": {"channel": "whatsapp", "message": "Hi!"}}
//	  ],
//	  "edges": [
//	    {"id": "e1", "source": "a", "sourceHandle": "out", "target": "b", "targetHandle": "in"}
//	  ]
//	}
//
// ReadJSON only checks the syntax and the format version; the graph itself
// is checked when it is applied to a store with [Document.Apply]. Every
// failure is a CORRUPT_GRAPH error. ReadJSON does not close r.
func ReadJSON(r io.Reader) (Document, error) {
	var doc Document
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return Document{}, errors.Wrap(errors.ErrCodeCorruptGraph, err, "decode")
	}
	normalize(&doc)
	if err := doc.checkVersion(); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// ReadYAML decodes a flow document written in YAML. The structure is the
// same as the JSON format.
func ReadYAML(r io.Reader) (Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Document{}, fmt.Errorf("read: %w", err)
	}
	js, err := yaml.YAMLToJSON(data)
	if err != nil {
		return Document{}, errors.Wrap(errors.ErrCodeCorruptGraph, err, "decode yaml")
	}
	return ReadJSON(bytes.NewReader(js))
}

// ImportFile reads a document from path, choosing the codec by extension:
// .yaml and .yml are YAML, anything else is JSON.
func ImportFile(path string) (Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return Document{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	if isYAML(path) {
		return ReadYAML(f)
	}
	return ReadJSON(f)
}

// Apply replaces the contents of s with the document. It fails with
// CORRUPT_GRAPH, leaving s unchanged, if any node or edge would be rejected
// as a live mutation.
func (d Document) Apply(s *flow.Store) error {
	return s.Load(d.Nodes, d.Edges)
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// normalize converts json.Number values in payloads to float64, so decoded
// payloads hold the same types as payloads built in memory.
func normalize(doc *Document) {
	for i := range doc.Nodes {
		for k, v := range doc.Nodes[i].Payload {
			doc.Nodes[i].Payload[k] = normalizeValue(v)
		}
	}
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return val.String()
		}
		return f
	case map[string]any:
		for k, item := range val {
			val[k] = normalizeValue(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = normalizeValue(item)
		}
		return val
	default:
		return v
	}
}
