package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/blockflow/pkg/errors"
	flowio "github.com/matzehuels/blockflow/pkg/io"
)

// FlowPrefix is the key prefix of stored flow documents.
const FlowPrefix = "flow:"

// FlowKey returns the storage key of the named flow.
func FlowKey(name string) string { return FlowPrefix + name }

// Flows saves and loads named flow documents in a backend.
type Flows struct {
	backend Backend
	log     *log.Logger
}

// NewFlows wraps backend. logger may be nil.
func NewFlows(backend Backend, logger *log.Logger) *Flows {
	if logger == nil {
		logger = log.Default()
	}
	return &Flows{backend: backend, log: logger}
}

// Backend returns the underlying backend.
func (f *Flows) Backend() Backend { return f.backend }

// Save stores doc under name, replacing any previous version. Transient
// backend failures are retried.
func (f *Flows) Save(ctx context.Context, name string, doc flowio.Document) error {
	if err := errors.ValidateFlowName(name); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := flowio.WriteJSON(doc, &buf); err != nil {
		return err
	}
	err := RetryWithBackoff(ctx, func() error {
		return f.backend.Set(ctx, FlowKey(name), buf.Bytes(), 0)
	})
	if err != nil {
		return fmt.Errorf("save flow %s: %w", name, err)
	}
	f.log.Debug("saved flow", "name", name, "nodes", len(doc.Nodes), "edges", len(doc.Edges), "bytes", buf.Len())
	return nil
}

// Load reads the named flow. A missing flow is a NOT_FOUND error; a stored
// value that does not decode is CORRUPT_GRAPH.
func (f *Flows) Load(ctx context.Context, name string) (flowio.Document, error) {
	if err := errors.ValidateFlowName(name); err != nil {
		return flowio.Document{}, err
	}
	var (
		data []byte
		ok   bool
	)
	err := RetryWithBackoff(ctx, func() error {
		var err error
		data, ok, err = f.backend.Get(ctx, FlowKey(name))
		return err
	})
	if err != nil {
		return flowio.Document{}, fmt.Errorf("load flow %s: %w", name, err)
	}
	if !ok {
		return flowio.Document{}, errors.New(errors.ErrCodeNotFound, "flow %s not found", name)
	}
	doc, err := flowio.ReadJSON(bytes.NewReader(data))
	if err != nil {
		return flowio.Document{}, errors.Wrap(errors.ErrCodeCorruptGraph, err, "flow %s", name)
	}
	return doc, nil
}

// Delete removes the named flow.
func (f *Flows) Delete(ctx context.Context, name string) error {
	if err := errors.ValidateFlowName(name); err != nil {
		return err
	}
	if err := f.backend.Delete(ctx, FlowKey(name)); err != nil {
		return fmt.Errorf("delete flow %s: %w", name, err)
	}
	return nil
}

// List returns the names of all stored flows, sorted.
func (f *Flows) List(ctx context.Context) ([]string, error) {
	keys, err := f.backend.List(ctx, FlowPrefix)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = strings.TrimPrefix(k, FlowPrefix)
	}
	return names, nil
}
