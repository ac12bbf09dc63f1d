package flow

import "fmt"

// Verify checks the structural invariants of the store: every edge has
// both endpoints, the adjacency indices agree with the edge table, no node
// is connected to itself, no handle carries more edges than it declares,
// and the open property panel names a present node.
func (s *Store) Verify() error {
	for id, r := range s.edges {
		e := r.edge
		if e.ID != id {
			return fmt.Errorf("edge %s stored under id %s", e.ID, id)
		}
		if _, ok := s.nodes[e.Source]; !ok {
			return fmt.Errorf("edge %s: dangling source %s", id, e.Source)
		}
		if _, ok := s.nodes[e.Target]; !ok {
			return fmt.Errorf("edge %s: dangling target %s", id, e.Target)
		}
		if e.Source == e.Target {
			return fmt.Errorf("edge %s: self-loop on %s", id, e.Source)
		}
		if _, ok := s.out[e.Source][id]; !ok {
			return fmt.Errorf("edge %s missing from outgoing index of %s", id, e.Source)
		}
		if _, ok := s.in[e.Target][id]; !ok {
			return fmt.Errorf("edge %s missing from incoming index of %s", id, e.Target)
		}
	}

	for _, idx := range []map[string]map[string]struct{}{s.in, s.out} {
		for node, set := range idx {
			if _, ok := s.nodes[node]; !ok {
				return fmt.Errorf("index entry for missing node %s", node)
			}
			for eid := range set {
				if _, ok := s.edges[eid]; !ok {
					return fmt.Errorf("index of %s references missing edge %s", node, eid)
				}
			}
		}
	}

	for id, r := range s.nodes {
		if r.node.ID != id {
			return fmt.Errorf("node %s stored under id %s", r.node.ID, id)
		}
		entry, err := s.reg.Lookup(r.node.Kind)
		if err != nil {
			return fmt.Errorf("node %s: %w", id, err)
		}
		for _, h := range entry.Handles {
			if h.Max == 0 {
				continue
			}
			if n := s.HandleLoad(id, h.ID, h.Type); n > h.Max {
				return fmt.Errorf("node %s: %s handle %q carries %d edges, max %d", id, h.Type, h.ID, n, h.Max)
			}
		}
	}

	if s.ui.Panel != "" {
		if _, ok := s.nodes[s.ui.Panel]; !ok {
			return fmt.Errorf("property panel open for missing node %s", s.ui.Panel)
		}
	}
	return nil
}
