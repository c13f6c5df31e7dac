package validation

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/framefold/canvas/common/models"
)

// TemplateCatalog is the slice of the template registry the validator needs
type TemplateCatalog interface {
	ByType(t models.NodeType) (*models.NodeTemplate, bool)
}

// GraphValidator checks the structural invariants of a canvas graph after a
// patch has been applied: referential integrity of handles and edges, handle
// direction and type compatibility, and acyclicity. A graph that passes is
// safe for the scheduler to run.
type GraphValidator struct {
	templates TemplateCatalog
}

// NewGraphValidator creates a new graph validator
func NewGraphValidator(templates TemplateCatalog) *GraphValidator {
	return &GraphValidator{templates: templates}
}

// Validate checks every structural invariant of the graph
func (v *GraphValidator) Validate(doc *models.GraphDoc) error {
	nodes, err := v.validateNodes(doc)
	if err != nil {
		return err
	}

	handles, err := v.validateHandles(doc, nodes)
	if err != nil {
		return err
	}

	if err := v.validateEdges(doc, nodes, handles); err != nil {
		return err
	}

	return v.validateAcyclic(doc)
}

func (v *GraphValidator) validateNodes(doc *models.GraphDoc) (map[uuid.UUID]*models.Node, error) {
	nodes := make(map[uuid.UUID]*models.Node, len(doc.Nodes))
	for _, n := range doc.Nodes {
		if n.ID == uuid.Nil {
			return nil, fmt.Errorf("graph validation failed: node %q has no id", n.Name)
		}
		if _, dup := nodes[n.ID]; dup {
			return nil, fmt.Errorf("graph validation failed: duplicate node id %s", n.ID)
		}
		if _, ok := v.templates.ByType(n.Type); !ok {
			return nil, fmt.Errorf("graph validation failed: node %s has unknown type %q", n.ID, n.Type)
		}
		nodes[n.ID] = n
	}
	return nodes, nil
}

func (v *GraphValidator) validateHandles(doc *models.GraphDoc, nodes map[uuid.UUID]*models.Node) (map[uuid.UUID]*models.Handle, error) {
	handles := make(map[uuid.UUID]*models.Handle, len(doc.Handles))
	for _, h := range doc.Handles {
		if _, dup := handles[h.ID]; dup {
			return nil, fmt.Errorf("graph validation failed: duplicate handle id %s", h.ID)
		}
		if _, ok := nodes[h.NodeID]; !ok {
			return nil, fmt.Errorf("graph validation failed: handle %s references missing node %s", h.ID, h.NodeID)
		}
		if h.Type != models.HandleInput && h.Type != models.HandleOutput {
			return nil, fmt.Errorf("graph validation failed: handle %s has invalid type %q", h.ID, h.Type)
		}
		if len(h.DataTypes) == 0 {
			return nil, fmt.Errorf("graph validation failed: handle %s has no data types", h.ID)
		}
		handles[h.ID] = h
	}
	return handles, nil
}

func (v *GraphValidator) validateEdges(doc *models.GraphDoc, nodes map[uuid.UUID]*models.Node, handles map[uuid.UUID]*models.Handle) error {
	seen := make(map[uuid.UUID]bool, len(doc.Edges))
	for _, e := range doc.Edges {
		if seen[e.ID] {
			return fmt.Errorf("graph validation failed: duplicate edge id %s", e.ID)
		}
		seen[e.ID] = true

		if e.Source == e.Target {
			return fmt.Errorf("graph validation failed: edge %s connects node %s to itself", e.ID, e.Source)
		}
		if _, ok := nodes[e.Source]; !ok {
			return fmt.Errorf("graph validation failed: edge %s references missing source node %s", e.ID, e.Source)
		}
		if _, ok := nodes[e.Target]; !ok {
			return fmt.Errorf("graph validation failed: edge %s references missing target node %s", e.ID, e.Target)
		}

		src, ok := handles[e.SourceHandleID]
		if !ok {
			return fmt.Errorf("graph validation failed: edge %s references missing source handle %s", e.ID, e.SourceHandleID)
		}
		if src.NodeID != e.Source {
			return fmt.Errorf("graph validation failed: edge %s source handle %s belongs to node %s, not %s", e.ID, src.ID, src.NodeID, e.Source)
		}
		if src.Type != models.HandleOutput {
			return fmt.Errorf("graph validation failed: edge %s source handle %s is not an output", e.ID, src.ID)
		}

		dst, ok := handles[e.TargetHandleID]
		if !ok {
			return fmt.Errorf("graph validation failed: edge %s references missing target handle %s", e.ID, e.TargetHandleID)
		}
		if dst.NodeID != e.Target {
			return fmt.Errorf("graph validation failed: edge %s target handle %s belongs to node %s, not %s", e.ID, dst.ID, dst.NodeID, e.Target)
		}
		if dst.Type != models.HandleInput {
			return fmt.Errorf("graph validation failed: edge %s target handle %s is not an input", e.ID, dst.ID)
		}

		if !dataTypesOverlap(src, dst) {
			return fmt.Errorf("graph validation failed: edge %s connects incompatible handles (%v -> %v)", e.ID, src.DataTypes, dst.DataTypes)
		}
	}
	return nil
}

func dataTypesOverlap(src, dst *models.Handle) bool {
	for _, dt := range src.DataTypes {
		if dst.Accepts(dt) {
			return true
		}
	}
	return false
}

// validateAcyclic runs a three-color DFS over the node adjacency
func (v *GraphValidator) validateAcyclic(doc *models.GraphDoc) error {
	adjacency := make(map[uuid.UUID][]uuid.UUID)
	for _, e := range doc.Edges {
		adjacency[e.Source] = append(adjacency[e.Source], e.Target)
	}

	const (
		white = 0 // unvisited
		grey  = 1 // on the current path
		black = 2 // fully explored
	)
	color := make(map[uuid.UUID]int, len(doc.Nodes))

	var visit func(id uuid.UUID) error
	visit = func(id uuid.UUID) error {
		color[id] = grey
		for _, next := range adjacency[id] {
			switch color[next] {
			case grey:
				return fmt.Errorf("graph validation failed: cycle detected through node %s", next)
			case white:
				if err := visit(next); err != nil {
					return err
				}
			}
		}
		color[id] = black
		return nil
	}

	for _, n := range doc.Nodes {
		if color[n.ID] == white {
			if err := visit(n.ID); err != nil {
				return err
			}
		}
	}
	return nil
}
