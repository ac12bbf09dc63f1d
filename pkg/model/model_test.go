package model

import "testing"

func TestPayloadCloneIsDeep(t *testing.T) {
	orig := Payload{
		"message": "hi",
		"tags":    []any{"a", "b"},
		"meta":    map[string]any{"nested": []any{1.0}},
	}

	clone := orig.Clone()
	clone["message"] = "changed"
	clone["tags"].([]any)[0] = "z"
	clone["meta"].(map[string]any)["nested"].([]any)[0] = 2.0

	if orig["message"] != "hi" {
		t.Errorf("message = %v, want hi", orig["message"])
	}
	if orig["tags"].([]any)[0] != "a" {
		t.Errorf("tags[0] = %v, want a", orig["tags"].([]any)[0])
	}
	if orig["meta"].(map[string]any)["nested"].([]any)[0] != 1.0 {
		t.Error("nested slice was aliased")
	}
}

func TestPayloadCloneNil(t *testing.T) {
	var p Payload
	if c := p.Clone(); c == nil {
		t.Error("Clone of nil payload should return an empty map")
	}
}

func TestNodeCloneCopiesSize(t *testing.T) {
	n := Node{ID: "a", Size: &Size{Width: 10, Height: 20}, Payload: Payload{}}
	c := n.Clone()
	c.Size.Width = 99
	if n.Size.Width != 10 {
		t.Errorf("Size aliased: width = %v", n.Size.Width)
	}
}

func TestRectOverlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b Rect
		gap  float64
		want bool
	}{
		{"intersecting", Rect{0, 0, 10, 10}, Rect{5, 5, 10, 10}, 0, true},
		{"touching", Rect{0, 0, 10, 10}, Rect{10, 0, 10, 10}, 0, false},
		{"touching with gap", Rect{0, 0, 10, 10}, Rect{10, 0, 10, 10}, 1, true},
		{"apart", Rect{0, 0, 10, 10}, Rect{30, 30, 10, 10}, 16, false},
		{"empty", Rect{0, 0, 0, 0}, Rect{0, 0, 10, 10}, 16, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Overlaps(tt.b, tt.gap); got != tt.want {
				t.Errorf("Overlaps() = %v, want %v", got, tt.want)
			}
			if got := tt.b.Overlaps(tt.a, tt.gap); got != tt.want {
				t.Errorf("Overlaps() not symmetric")
			}
		})
	}
}

func TestSnap(t *testing.T) {
	if got := SnapUp(17, 16); got != 32 {
		t.Errorf("SnapUp(17) = %v, want 32", got)
	}
	if got := SnapDown(-17, 16); got != -32 {
		t.Errorf("SnapDown(-17) = %v, want -32", got)
	}
	if got := SnapNearest(23, 16); got != 16 {
		t.Errorf("SnapNearest(23) = %v, want 16", got)
	}
	if got := SnapUp(5, 0); got != 5 {
		t.Errorf("SnapUp with zero grid = %v, want 5", got)
	}
}

func TestHandleTypeOpposite(t *testing.T) {
	if HandleSource.Opposite() != HandleTarget || HandleTarget.Opposite() != HandleSource {
		t.Error("Opposite() mismatch")
	}
}
