package ratelimit

import (
	"github.com/framefold/canvas/common/models"
)

// CanvasTier represents the rate limit tier based on canvas cost
type CanvasTier string

const (
	TierSimple   CanvasTier = "simple"   // No generative nodes
	TierStandard CanvasTier = "standard" // 1-2 generative nodes
	TierHeavy    CanvasTier = "heavy"    // 3+ generative nodes
)

// Generative node types invoke external models and dominate run cost
var generativeNodeTypes = map[models.NodeType]bool{
	models.NodeTypeImageGen: true,
	models.NodeTypeLLM:      true,
}

// CanvasProfile contains analysis of a canvas's run cost
type CanvasProfile struct {
	Tier            CanvasTier // Determined tier
	GenerativeCount int        // Number of generative nodes
	HasGenerative   bool       // Whether the canvas has any generative nodes
	TotalNodes      int        // Total node count
}

// InspectCanvas analyzes a canvas snapshot and determines its cost tier.
// Only the nodes that would actually run matter, so callers pass the
// necessary subgraph's nodes rather than the whole canvas when targeting.
func InspectCanvas(nodes []*models.Node) CanvasProfile {
	profile := CanvasProfile{
		Tier:       TierSimple,
		TotalNodes: len(nodes),
	}

	for _, node := range nodes {
		if generativeNodeTypes[node.Type] {
			profile.GenerativeCount++
			profile.HasGenerative = true
		}
	}

	profile.Tier = determineTier(profile.GenerativeCount)
	return profile
}

// determineTier returns the appropriate tier based on generative node count
func determineTier(generativeCount int) CanvasTier {
	switch {
	case generativeCount == 0:
		return TierSimple
	case generativeCount <= 2:
		return TierStandard
	default: // 3+
		return TierHeavy
	}
}

// String returns a human-readable description of the tier
func (t CanvasTier) String() string {
	switch t {
	case TierSimple:
		return "simple"
	case TierStandard:
		return "standard"
	case TierHeavy:
		return "heavy"
	default:
		return "unknown"
	}
}
