// Package registry maps node kinds to their metadata, default payload,
// handles and connection rules.
//
// A [Registry] is populated once from a list of entries and is read-only
// afterwards, so concurrent lookups need no locking. The engine consults it
// to create nodes ([Registry.CreateDefault]), to resolve handles during
// connection validation, and to check payload shapes.
//
// # Compatibility
//
// Which kinds may connect is a per-entry predicate rather than a table of
// kind pairs. A source entry's AcceptsTarget and a target entry's
// AcceptsSource must both allow the pair; nil predicates accept everything.
// Predicates may be Go functions or, for kinds defined in configuration,
// sandboxed Lua expressions (see [Definition]).
package registry

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"

	"github.com/matzehuels/blockflow/pkg/errors"
	"github.com/matzehuels/blockflow/pkg/model"
)

// Entry describes one node kind.
type Entry struct {
	Kind          string
	Title         string
	Icon          string
	Description   string
	GradientColor string
	Category      string

	// Defaults is the payload assigned to freshly created nodes. It is deep
	// copied on every use.
	Defaults model.Payload

	// Handles lists the kind's connection points in declaration order.
	Handles []model.Handle

	// Panel names the editing surface the interaction layer should open for
	// nodes of this kind.
	Panel string

	// Schema is an optional JSON schema for the payload.
	Schema map[string]any

	// AcceptsSource reports whether an edge from a node of kind src may end
	// at this kind.
	AcceptsSource func(src Entry) bool
	// AcceptsTarget reports whether an edge from this kind may end at a node
	// of kind dst.
	AcceptsTarget func(dst Entry) bool

	// Acyclic forbids any edge that would close a cycle passing through a
	// node of this kind.
	Acyclic bool

	schema *gojsonschema.Schema
}

// Arity is the number of edges a kind may carry in each direction.
// A value of [model.Unlimited] means there is no bound.
type Arity struct {
	Inputs  int `json:"inputs"`
	Outputs int `json:"outputs"`
}

// Registry is an immutable catalog of node kinds.
type Registry struct {
	entries map[string]*Entry
	order   []string
}

// New builds a registry from entries. Handle limits are normalized: a target
// handle declared with Max 0 accepts one edge, a source handle declared with
// Max 0 is unlimited, and [model.Unlimited] lifts the bound on either.
func New(entries ...Entry) (*Registry, error) {
	r := &Registry{entries: make(map[string]*Entry, len(entries))}
	for _, e := range entries {
		if err := errors.ValidateKind(e.Kind); err != nil {
			return nil, err
		}
		if _, dup := r.entries[e.Kind]; dup {
			return nil, errors.New(errors.ErrCodeDuplicateID, "kind %q registered twice", e.Kind)
		}
		entry, err := prepare(e)
		if err != nil {
			return nil, fmt.Errorf("kind %s: %w", e.Kind, err)
		}
		r.entries[e.Kind] = entry
		r.order = append(r.order, e.Kind)
	}
	return r, nil
}

// MustNew is like New but panics on error. It is meant for static catalogs.
func MustNew(entries ...Entry) *Registry {
	r, err := New(entries...)
	if err != nil {
		panic(err)
	}
	return r
}

func prepare(e Entry) (*Entry, error) {
	seen := make(map[string]bool, len(e.Handles))
	handles := make([]model.Handle, 0, len(e.Handles))
	for _, h := range e.Handles {
		if h.ID == "" {
			return nil, errors.New(errors.ErrCodeInvalidInput, "handle id cannot be empty")
		}
		if h.Type != model.HandleSource && h.Type != model.HandleTarget {
			return nil, errors.New(errors.ErrCodeInvalidInput, "handle %s: unknown type %q", h.ID, h.Type)
		}
		key := string(h.Type) + "/" + h.ID
		if seen[key] {
			return nil, errors.New(errors.ErrCodeDuplicateID, "handle %s declared twice", h.ID)
		}
		seen[key] = true

		switch {
		case h.Max < 0:
			h.Max = 0
		case h.Max == 0 && h.Type == model.HandleTarget:
			h.Max = 1
		}
		handles = append(handles, h)
	}

	out := e
	out.Handles = handles
	out.Defaults = e.Defaults.Clone()
	if len(e.Schema) > 0 {
		s, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(e.Schema))
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid payload schema")
		}
		out.schema = s
		if err := out.checkPayload(out.Defaults); err != nil {
			return nil, fmt.Errorf("default payload: %w", err)
		}
	}
	return &out, nil
}

// Lookup returns the entry for kind.
func (r *Registry) Lookup(kind string) (Entry, error) {
	e, ok := r.entries[kind]
	if !ok {
		return Entry{}, errors.New(errors.ErrCodeUnknownKind, "unknown node kind %q", kind)
	}
	return *e, nil
}

// Has reports whether kind is registered.
func (r *Registry) Has(kind string) bool {
	_, ok := r.entries[kind]
	return ok
}

// Kinds returns the registered kinds in definition order.
func (r *Registry) Kinds() []string {
	return slices.Clone(r.order)
}

// All returns every entry in definition order.
func (r *Registry) All() []Entry {
	out := make([]Entry, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, *r.entries[k])
	}
	return out
}

// Len returns the number of registered kinds.
func (r *Registry) Len() int { return len(r.order) }

// CreateDefault builds a node of kind with a fresh id, a deep copy of the
// default payload, zero position and unknown size.
func (r *Registry) CreateDefault(kind string) (model.Node, error) {
	e, ok := r.entries[kind]
	if !ok {
		return model.Node{}, errors.New(errors.ErrCodeUnknownKind, "unknown node kind %q", kind)
	}
	return model.Node{
		ID:      uuid.NewString(),
		Kind:    kind,
		Payload: e.Defaults.Clone(),
	}, nil
}

// ArityOf sums the handle limits of kind per direction.
func (r *Registry) ArityOf(kind string) (Arity, error) {
	e, ok := r.entries[kind]
	if !ok {
		return Arity{}, errors.New(errors.ErrCodeUnknownKind, "unknown node kind %q", kind)
	}
	var a Arity
	for _, h := range e.Handles {
		p := &a.Outputs
		if h.Type == model.HandleTarget {
			p = &a.Inputs
		}
		switch {
		case *p == model.Unlimited:
		case h.Max == 0:
			*p = model.Unlimited
		default:
			*p += h.Max
		}
	}
	return a, nil
}

// Handle returns the handle of kind with the given id and type.
func (r *Registry) Handle(kind, handleID string, typ model.HandleType) (model.Handle, bool) {
	e, ok := r.entries[kind]
	if !ok {
		return model.Handle{}, false
	}
	for _, h := range e.Handles {
		if h.ID == handleID && h.Type == typ {
			return h, true
		}
	}
	return model.Handle{}, false
}

// FirstHandle returns the first declared handle of kind with the given type.
func (r *Registry) FirstHandle(kind string, typ model.HandleType) (model.Handle, bool) {
	e, ok := r.entries[kind]
	if !ok {
		return model.Handle{}, false
	}
	for _, h := range e.Handles {
		if h.Type == typ {
			return h, true
		}
	}
	return model.Handle{}, false
}

// Compatible reports whether an edge from a node of kind src to a node of
// kind dst is allowed by both entries' predicates.
func (r *Registry) Compatible(src, dst string) bool {
	s, ok := r.entries[src]
	if !ok {
		return false
	}
	d, ok := r.entries[dst]
	if !ok {
		return false
	}
	if s.AcceptsTarget != nil && !s.AcceptsTarget(*d) {
		return false
	}
	if d.AcceptsSource != nil && !d.AcceptsSource(*s) {
		return false
	}
	return true
}

// CheckPayload validates payload against the shape declared for kind.
// Kinds with a schema are checked against it; other kinds only require that
// every default key is present.
func (r *Registry) CheckPayload(kind string, payload model.Payload) error {
	e, ok := r.entries[kind]
	if !ok {
		return errors.New(errors.ErrCodeUnknownKind, "unknown node kind %q", kind)
	}
	return e.checkPayload(payload)
}

func (e *Entry) checkPayload(payload model.Payload) error {
	if e.schema == nil {
		for k := range e.Defaults {
			if _, ok := payload[k]; !ok {
				return errors.New(errors.ErrCodeInvalidPayload, "%s payload: missing field %q", e.Kind, k)
			}
		}
		return nil
	}

	doc := map[string]any(payload)
	if doc == nil {
		doc = map[string]any{}
	}
	result, err := e.schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPayload, err, "%s payload", e.Kind)
	}
	if !result.Valid() {
		var msg string
		for i, re := range result.Errors() {
			if i > 0 {
				msg += "; "
			}
			msg += re.String()
		}
		return errors.New(errors.ErrCodeInvalidPayload, "%s payload: %s", e.Kind, msg)
	}
	return nil
}
