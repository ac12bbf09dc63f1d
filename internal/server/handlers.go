package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/matzehuels/blockflow/pkg/buildinfo"
	"github.com/matzehuels/blockflow/pkg/errors"
	flowio "github.com/matzehuels/blockflow/pkg/io"
	"github.com/matzehuels/blockflow/pkg/model"
	"github.com/matzehuels/blockflow/pkg/registry"
	"github.com/matzehuels/blockflow/pkg/render/nodelink"
	"github.com/matzehuels/blockflow/pkg/spawner"
)

// =============================================================================
// Meta
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, buildinfo.Get())
}

// =============================================================================
// Graph
// =============================================================================

type graphView struct {
	flowio.Document
	UI      model.UI `json:"ui"`
	Pending []string `json:"pendingLayout,omitempty"`
}

func (s *Server) handleGetGraph(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, graphView{
		Document: s.eng.Export(),
		UI:       s.eng.UI(),
		Pending:  s.eng.PendingLayout(),
	})
}

func (s *Server) handlePutGraph(w http.ResponseWriter, r *http.Request) {
	doc, err := flowio.ReadJSON(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.eng.Import(doc); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.eng.Export())
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := nodelink.Options{
		Detailed: q.Get("detailed") == "true",
		Ranked:   q.Get("ranked") == "true",
	}
	dot := nodelink.ToDOT(s.eng.Nodes(), s.eng.Edges(), s.eng.Registry(), opts)

	switch format := q.Get("format"); format {
	case "", "dot":
		w.Header().Set("Content-Type", "text/vnd.graphviz")
		_, _ = w.Write([]byte(dot))
	case "svg":
		svg, err := nodelink.RenderSVG(dot)
		if err != nil {
			s.writeError(w, r, errors.Wrap(errors.ErrCodeInternal, err, "render svg"))
			return
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		_, _ = w.Write(svg)
	default:
		s.writeError(w, r, errors.New(errors.ErrCodeInvalidInput, "unknown format %q", format))
	}
}

// =============================================================================
// Kinds
// =============================================================================

type kindView struct {
	Kind        string         `json:"kind"`
	Title       string         `json:"title"`
	Icon        string         `json:"icon,omitempty"`
	Description string         `json:"description,omitempty"`
	Color       string         `json:"gradientColor,omitempty"`
	Category    string         `json:"category,omitempty"`
	Panel       string         `json:"panel,omitempty"`
	Handles     []model.Handle `json:"handles"`
	Defaults    model.Payload  `json:"defaults"`
}

func viewKind(e registry.Entry) kindView {
	return kindView{
		Kind:        e.Kind,
		Title:       e.Title,
		Icon:        e.Icon,
		Description: e.Description,
		Color:       e.GradientColor,
		Category:    e.Category,
		Panel:       e.Panel,
		Handles:     e.Handles,
		Defaults:    e.Defaults.Clone(),
	}
}

func viewKinds(entries []registry.Entry) []kindView {
	out := make([]kindView, 0, len(entries))
	for _, e := range entries {
		out = append(out, viewKind(e))
	}
	return out
}

func (s *Server) handleKinds(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, viewKinds(s.eng.Registry().All()))
}

// =============================================================================
// Nodes
// =============================================================================

// createNodeRequest without an id creates a node of kind with its default
// payload and a fresh id.
type createNodeRequest struct {
	ID       string         `json:"id"`
	Kind     string         `json:"kind"`
	Position model.Position `json:"position"`
	Size     *model.Size    `json:"size"`
	Payload  model.Payload  `json:"payload"`
}

func (s *Server) handleCreateNode(w http.ResponseWriter, r *http.Request) {
	var req createNodeRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	var (
		node model.Node
		err  error
	)
	if req.ID == "" {
		node, err = s.eng.CreateNodeOfKind(req.Kind, req.Position)
		if err == nil && req.Size != nil {
			node, err = s.eng.ResizeNode(node.ID, *req.Size)
		}
	} else {
		node, err = s.eng.AddNode(model.Node{
			ID:       req.ID,
			Kind:     req.Kind,
			Position: req.Position,
			Size:     req.Size,
			Payload:  req.Payload,
		})
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, node)
}

type patchNodeRequest struct {
	Position *model.Position `json:"position"`
	Size     *model.Size     `json:"size"`
}

func (s *Server) handlePatchNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req patchNodeRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Position == nil && req.Size == nil {
		s.writeError(w, r, errors.New(errors.ErrCodeInvalidInput, "position or size required"))
		return
	}

	node, ok := s.eng.Node(id)
	if !ok {
		s.writeError(w, r, errors.New(errors.ErrCodeNotFound, "node %q not found", id))
		return
	}
	var err error
	if req.Size != nil {
		if node, err = s.eng.ResizeNode(id, *req.Size); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	if req.Position != nil {
		if node, err = s.eng.MoveNode(id, *req.Position); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	s.writeJSON(w, http.StatusOK, node)
}

// patchPayloadRequest either sets one field addressed by a JSONPath or
// replaces the whole payload.
type patchPayloadRequest struct {
	Path    string        `json:"path"`
	Value   any           `json:"value"`
	Payload model.Payload `json:"payload"`
}

func (s *Server) handlePatchPayload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req patchPayloadRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	var (
		node model.Node
		err  error
	)
	switch {
	case req.Path != "" && req.Payload != nil:
		err = errors.New(errors.ErrCodeInvalidInput, "path and payload are mutually exclusive")
	case req.Path != "":
		node, err = s.eng.SetPayloadField(id, req.Path, req.Value)
	case req.Payload != nil:
		node, err = s.eng.UpdatePayload(id, func(model.Payload) model.Payload { return req.Payload })
	default:
		err = errors.New(errors.ErrCodeInvalidInput, "path or payload required")
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, node)
}

type idsRequest struct {
	IDs []string `json:"ids"`
}

func (s *Server) handleDeleteNodes(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.eng.DeleteNodes(req.IDs...); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// Edges
// =============================================================================

type connectRequest struct {
	Source       string `json:"source"`
	SourceHandle string `json:"sourceHandle"`
	Target       string `json:"target"`
	TargetHandle string `json:"targetHandle"`
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	edge, err := s.eng.Connect(req.Source, req.SourceHandle, req.Target, req.TargetHandle)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, edge)
}

type checkResult struct {
	Valid   bool          `json:"valid"`
	Reason  errors.Reason `json:"reason,omitempty"`
	Message string        `json:"message,omitempty"`
}

func (s *Server) handleCheckConnection(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	err := s.eng.CanConnect(req.Source, req.SourceHandle, req.Target, req.TargetHandle)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, checkResult{Valid: true})
	case errors.Is(err, errors.ErrCodeInvalidConnection):
		s.writeJSON(w, http.StatusOK, checkResult{Reason: errors.ReasonOf(err), Message: errors.UserMessage(err)})
	default:
		s.writeError(w, r, err)
	}
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.eng.Disconnect(chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// Panel
// =============================================================================

func (s *Server) handleOpenPanel(w http.ResponseWriter, r *http.Request) {
	if err := s.eng.OpenPropertiesOf(chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ui": s.eng.UI(), "panel": s.eng.PanelOf()})
}

func (s *Server) handleClosePanel(w http.ResponseWriter, r *http.Request) {
	if err := s.eng.CloseProperties(); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// Spawner
// =============================================================================

type spawnerView struct {
	spawner.Status
	Candidates []kindView `json:"candidates,omitempty"`
}

func (s *Server) spawnerView() spawnerView {
	sp := s.eng.Spawner()
	v := spawnerView{Status: sp.Status()}
	if v.State == spawner.MenuOpen.String() {
		if entries, err := sp.Candidates(); err == nil {
			v.Candidates = viewKinds(entries)
		}
	}
	return v
}

func (s *Server) handleSpawnerStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.spawnerView())
}

type dragRequest struct {
	Node   string `json:"node"`
	Handle string `json:"handle"`
}

func (s *Server) handleSpawnerDrag(w http.ResponseWriter, r *http.Request) {
	var req dragRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.eng.Spawner().BeginDrag(req.Node, req.Handle); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.spawnerView())
}

type dropRequest struct {
	OverHandle bool           `json:"overHandle"`
	Position   model.Position `json:"position"`
}

func (s *Server) handleSpawnerDrop(w http.ResponseWriter, r *http.Request) {
	var req dropRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.eng.Spawner().EndDrag(req.OverHandle, req.Position); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.spawnerView())
}

type chooseRequest struct {
	Kind string `json:"kind"`
}

type chooseResponse struct {
	Node model.Node `json:"node"`
	Edge model.Edge `json:"edge"`
}

func (s *Server) handleSpawnerChoose(w http.ResponseWriter, r *http.Request) {
	var req chooseRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	node, edge, err := s.eng.Spawner().Choose(req.Kind)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, chooseResponse{Node: node, Edge: edge})
}

func (s *Server) handleSpawnerCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.eng.Spawner().Cancel(); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.spawnerView())
}

// =============================================================================
// Stored flows
// =============================================================================

func (s *Server) handleListFlows(w http.ResponseWriter, r *http.Request) {
	names, err := s.flows.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"flows": names, "count": len(names)})
}

func (s *Server) handleGetFlow(w http.ResponseWriter, r *http.Request) {
	doc, err := s.flows.Load(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleSaveFlow(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	doc := s.eng.Export()
	if err := s.flows.Save(r.Context(), name, doc); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{"name": name, "nodes": len(doc.Nodes), "edges": len(doc.Edges)})
}

func (s *Server) handleLoadFlow(w http.ResponseWriter, r *http.Request) {
	doc, err := s.flows.Load(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.eng.Import(doc); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.eng.Export())
}

func (s *Server) handleDeleteFlow(w http.ResponseWriter, r *http.Request) {
	if err := s.flows.Delete(r.Context(), chi.URLParam(r, "name")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
