package registry

import (
	"fmt"
	"strings"
	"sync"

	"github.com/Shopify/go-lua"

	"github.com/matzehuels/blockflow/pkg/errors"
	"github.com/matzehuels/blockflow/pkg/model"
)

// Definition is the declarative form of an Entry, as read from a
// configuration file. Compatibility predicates are Lua expressions that see
// two tables, source and target, each with kind and category fields:
//
//	accepts_source = "source.kind ~= 'start'"
//	accepts_target = "target.category == 'messaging'"
type Definition struct {
	Kind          string         `toml:"kind" json:"kind" validate:"required"`
	Title         string         `toml:"title" json:"title" validate:"required"`
	Icon          string         `toml:"icon" json:"icon,omitempty"`
	Description   string         `toml:"description" json:"description,omitempty"`
	GradientColor string         `toml:"gradient_color" json:"gradientColor,omitempty"`
	Category      string         `toml:"category" json:"category,omitempty"`
	Panel         string         `toml:"panel" json:"panel,omitempty"`
	Defaults      map[string]any `toml:"defaults" json:"defaults,omitempty"`
	Handles       []model.Handle `toml:"handles" json:"handles" validate:"dive"`
	Schema        map[string]any `toml:"schema" json:"schema,omitempty"`
	AcceptsSource string         `toml:"accepts_source" json:"acceptsSource,omitempty"`
	AcceptsTarget string         `toml:"accepts_target" json:"acceptsTarget,omitempty"`
	Acyclic       bool           `toml:"acyclic" json:"acyclic,omitempty"`
}

// Entry compiles the definition. Lua predicates are syntax-checked here so a
// bad expression fails at startup rather than on the first connection.
func (d Definition) Entry() (Entry, error) {
	e := Entry{
		Kind:          d.Kind,
		Title:         d.Title,
		Icon:          d.Icon,
		Description:   d.Description,
		GradientColor: d.GradientColor,
		Category:      d.Category,
		Panel:         d.Panel,
		Defaults:      model.Payload(d.Defaults).Clone(),
		Handles:       d.Handles,
		Schema:        d.Schema,
		Acyclic:       d.Acyclic,
	}
	if d.AcceptsSource != "" {
		p, err := compilePredicate(d.AcceptsSource)
		if err != nil {
			return Entry{}, fmt.Errorf("kind %s: accepts_source: %w", d.Kind, err)
		}
		self := d.Kind
		selfCat := d.Category
		e.AcceptsSource = func(src Entry) bool {
			return p.eval(src.Kind, src.Category, self, selfCat)
		}
	}
	if d.AcceptsTarget != "" {
		p, err := compilePredicate(d.AcceptsTarget)
		if err != nil {
			return Entry{}, fmt.Errorf("kind %s: accepts_target: %w", d.Kind, err)
		}
		self := d.Kind
		selfCat := d.Category
		e.AcceptsTarget = func(dst Entry) bool {
			return p.eval(self, selfCat, dst.Kind, dst.Category)
		}
	}
	return e, nil
}

// Compile turns definitions into entries.
func Compile(defs []Definition) ([]Entry, error) {
	out := make([]Entry, 0, len(defs))
	for _, d := range defs {
		e, err := d.Entry()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// predicate is a compiled Lua boolean expression. A Lua state is not safe
// for concurrent use, so evaluation is serialized.
type predicate struct {
	mu  sync.Mutex
	l   *lua.State
	src string
}

func compilePredicate(expr string) (*predicate, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "empty predicate")
	}
	l := lua.NewState()
	setupSandbox(l)
	src := "return (" + expr + ")"
	if err := lua.LoadString(l, src); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid predicate %q", expr)
	}
	l.Pop(1)
	return &predicate{l: l, src: src}, nil
}

// eval runs the expression with source and target bound. Runtime errors
// count as a rejection.
func (p *predicate) eval(srcKind, srcCat, dstKind, dstCat string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	l := p.l
	top := l.Top()
	defer l.SetTop(top)

	pushEndpoint(l, srcKind, srcCat)
	l.SetGlobal("source")
	pushEndpoint(l, dstKind, dstCat)
	l.SetGlobal("target")

	if err := lua.LoadString(l, p.src); err != nil {
		return false
	}
	if err := l.ProtectedCall(0, 1, 0); err != nil {
		return false
	}
	return l.ToBoolean(-1)
}

func pushEndpoint(l *lua.State, kind, category string) {
	l.NewTable()
	l.PushString(kind)
	l.SetField(-2, "kind")
	l.PushString(category)
	l.SetField(-2, "category")
}

// setupSandbox opens only the libraries an expression needs and removes the
// loaders that could reach the file system.
func setupSandbox(l *lua.State) {
	lua.Require(l, "_G", lua.BaseOpen, true)
	l.Pop(1)
	lua.Require(l, "string", lua.StringOpen, true)
	l.Pop(1)
	lua.Require(l, "math", lua.MathOpen, true)
	l.Pop(1)

	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "collectgarbage"} {
		l.PushNil()
		l.SetGlobal(name)
	}
}
