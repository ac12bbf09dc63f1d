package registry

import (
	"testing"

	"github.com/matzehuels/blockflow/pkg/model"
)

func TestDefinitionPredicates(t *testing.T) {
	defs := []Definition{
		{
			Kind:          "webhook",
			Title:         "Webhook",
			Category:      "integrations",
			Handles:       []model.Handle{{ID: "in", Type: model.HandleTarget}, {ID: "out", Type: model.HandleSource}},
			AcceptsSource: "source.kind ~= 'start'",
			AcceptsTarget: "target.category == 'messaging' or target.kind == 'end'",
		},
	}
	extra, err := Compile(defs)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	r, err := New(append(Builtin(), extra...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tests := []struct {
		src, dst string
		want     bool
	}{
		{KindStart, "webhook", false},
		{KindTextMessage, "webhook", true},
		{"webhook", KindTextMessage, true},
		{"webhook", KindEnd, true},
		{"webhook", KindTags, false},
	}

	for _, tt := range tests {
		t.Run(tt.src+"->"+tt.dst, func(t *testing.T) {
			if got := r.Compatible(tt.src, tt.dst); got != tt.want {
				t.Errorf("Compatible() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefinitionRejectsBadScript(t *testing.T) {
	_, err := Definition{Kind: "x", Title: "X", AcceptsSource: "source.kind =="}.Entry()
	if err == nil {
		t.Fatal("expected syntax error")
	}
}

func TestPredicateRuntimeErrorRejects(t *testing.T) {
	p, err := compilePredicate("source.missing.field == 1")
	if err != nil {
		t.Fatalf("compilePredicate: %v", err)
	}
	if p.eval("a", "", "b", "") {
		t.Error("runtime error should reject")
	}
}

func TestSandboxRemovesLoaders(t *testing.T) {
	p, err := compilePredicate("dofile == nil and require == nil and load == nil")
	if err != nil {
		t.Fatalf("compilePredicate: %v", err)
	}
	if !p.eval("a", "", "b", "") {
		t.Error("file loaders should be removed from the sandbox")
	}
}
