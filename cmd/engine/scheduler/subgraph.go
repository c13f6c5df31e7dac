package scheduler

import (
	"github.com/google/uuid"

	"github.com/framefold/canvas/common/models"
)

// targetSet resolves the requested target IDs against the snapshot. An empty
// request targets every node; IDs the canvas does not carry are dropped.
func targetSet(snap *models.CanvasSnapshot, targetNodeIDs []uuid.UUID) map[uuid.UUID]bool {
	targets := make(map[uuid.UUID]bool, len(snap.Nodes))
	if len(targetNodeIDs) == 0 {
		for _, n := range snap.Nodes {
			targets[n.ID] = true
		}
		return targets
	}

	for _, id := range targetNodeIDs {
		if snap.NodeByID(id) != nil {
			targets[id] = true
		}
	}
	return targets
}

// necessarySubgraph walks reverse edges breadth-first from the target set.
// The visited set holds every target plus every transitive upstream node;
// nothing outside it executes.
func necessarySubgraph(snap *models.CanvasSnapshot, targets map[uuid.UUID]bool) map[uuid.UUID]bool {
	parents := make(map[uuid.UUID][]uuid.UUID, len(snap.Edges))
	for _, e := range snap.Edges {
		parents[e.Target] = append(parents[e.Target], e.Source)
	}

	necessary := make(map[uuid.UUID]bool, len(targets))
	queue := make([]uuid.UUID, 0, len(targets))
	for id := range targets {
		necessary[id] = true
		queue = append(queue, id)
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		for _, parent := range parents[id] {
			if necessary[parent] {
				continue
			}
			if snap.NodeByID(parent) == nil {
				continue
			}
			necessary[parent] = true
			queue = append(queue, parent)
		}
	}

	return necessary
}

// NecessaryNodes returns the nodes a run with the given targets would
// execute, in snapshot order. Rate limiting prices a run on this set rather
// than on the whole canvas.
func NecessaryNodes(snap *models.CanvasSnapshot, targetNodeIDs []uuid.UUID) []*models.Node {
	necessary := necessarySubgraph(snap, targetSet(snap, targetNodeIDs))

	nodes := make([]*models.Node, 0, len(necessary))
	for _, n := range snap.Nodes {
		if necessary[n.ID] {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

// buildAdjacency derives forward adjacency and indegrees restricted to the
// necessary set. Parallel edges between the same node pair collapse to one
// dependency, so a child's indegree counts distinct parents.
func buildAdjacency(snap *models.CanvasSnapshot, necessary map[uuid.UUID]bool) (map[uuid.UUID][]uuid.UUID, map[uuid.UUID]int) {
	forward := make(map[uuid.UUID][]uuid.UUID, len(necessary))
	indegree := make(map[uuid.UUID]int, len(necessary))
	for id := range necessary {
		indegree[id] = 0
	}

	seen := make(map[[2]uuid.UUID]bool, len(snap.Edges))
	for _, e := range snap.Edges {
		if !necessary[e.Source] || !necessary[e.Target] {
			continue
		}
		pair := [2]uuid.UUID{e.Source, e.Target}
		if seen[pair] {
			continue
		}
		seen[pair] = true

		forward[e.Source] = append(forward[e.Source], e.Target)
		indegree[e.Target]++
	}

	return forward, indegree
}
