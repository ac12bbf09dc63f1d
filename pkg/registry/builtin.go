package registry

import "github.com/matzehuels/blockflow/pkg/model"

// Built-in node kinds.
const (
	KindStart           = "start"
	KindTextMessage     = "text-message"
	KindConditionalPath = "conditional-path"
	KindTags            = "tags"
	KindEnd             = "end"
)

// Handle ids shared by the built-in kinds.
const (
	HandleIn    = "in"
	HandleOut   = "out"
	HandleTrue  = "true"
	HandleFalse = "false"
)

// Channels a text message can be delivered through.
var Channels = []string{"whatsapp", "messenger", "telegram", "sms"}

var (
	inHandle  = model.Handle{ID: HandleIn, Type: model.HandleTarget}
	outHandle = model.Handle{ID: HandleOut, Type: model.HandleSource}
)

// Builtin returns the entries of the default block catalog in palette order.
func Builtin() []Entry {
	return []Entry{
		{
			Kind:          KindStart,
			Title:         "Start",
			Icon:          "solar:play-bold",
			Description:   "Entry point of the flow.",
			GradientColor: "green",
			Category:      "flow",
			Defaults:      model.Payload{},
			Handles:       []model.Handle{outHandle},
			AcceptsTarget: func(dst Entry) bool { return dst.Kind != KindEnd },
		},
		{
			Kind:          KindTextMessage,
			Title:         "Text Message",
			Icon:          "mynaui:message-solid",
			Description:   "Send a text message to the user using different messaging platforms like WhatsApp, Messenger, etc.",
			GradientColor: "blue",
			Category:      "messaging",
			Defaults:      model.Payload{"channel": "whatsapp", "message": ""},
			Handles:       []model.Handle{inHandle, outHandle},
			Panel:         "text-message",
			Schema: map[string]any{
				"type":     "object",
				"required": []any{"channel", "message"},
				"properties": map[string]any{
					"channel": map[string]any{"type": "string", "enum": toAny(Channels)},
					"message": map[string]any{"type": "string"},
				},
			},
		},
		{
			Kind:          KindConditionalPath,
			Title:         "Conditional Path",
			Icon:          "fluent:branch-16-filled",
			Description:   "Route the conversation down one of two paths depending on a condition.",
			GradientColor: "purple",
			Category:      "logic",
			Defaults:      model.Payload{"condition": ""},
			Handles: []model.Handle{
				inHandle,
				{ID: HandleTrue, Type: model.HandleSource, Max: 1},
				{ID: HandleFalse, Type: model.HandleSource, Max: 1},
			},
			Panel:   "conditional-path",
			Acyclic: true,
			Schema: map[string]any{
				"type":     "object",
				"required": []any{"condition"},
				"properties": map[string]any{
					"condition": map[string]any{"type": "string"},
				},
			},
		},
		{
			Kind:          KindTags,
			Title:         "Tags",
			Icon:          "mdi:tag",
			Description:   "Attach tags to the contact reaching this step.",
			GradientColor: "orange",
			Category:      "contacts",
			Defaults:      model.Payload{"tags": []any{}},
			Handles:       []model.Handle{inHandle, outHandle},
			Panel:         "tags",
			Schema: map[string]any{
				"type":     "object",
				"required": []any{"tags"},
				"properties": map[string]any{
					"tags": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"uniqueItems": true,
					},
				},
			},
		},
		{
			Kind:          KindEnd,
			Title:         "End",
			Icon:          "solar:stop-bold",
			Description:   "Terminates the flow.",
			GradientColor: "red",
			Category:      "flow",
			Defaults:      model.Payload{},
			Handles:       []model.Handle{{ID: HandleIn, Type: model.HandleTarget, Max: model.Unlimited}},
		},
	}
}

// Default returns a registry holding the built-in catalog.
func Default() *Registry {
	return MustNew(Builtin()...)
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
