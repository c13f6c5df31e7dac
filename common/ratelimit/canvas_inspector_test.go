package ratelimit

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/framefold/canvas/common/models"
)

func nodesOfTypes(types ...models.NodeType) []*models.Node {
	nodes := make([]*models.Node, len(types))
	for i, nt := range types {
		nodes[i] = &models.Node{ID: uuid.New(), Type: nt}
	}
	return nodes
}

func TestInspectCanvas_Tiers(t *testing.T) {
	cases := []struct {
		name          string
		types         []models.NodeType
		wantTier      CanvasTier
		wantGenCount  int
		hasGenerative bool
	}{
		{
			name:     "empty selection",
			types:    nil,
			wantTier: TierSimple,
		},
		{
			name:     "media pipeline only",
			types:    []models.NodeType{models.NodeTypeFile, models.NodeTypeResize, models.NodeTypeBlur, models.NodeTypeExport},
			wantTier: TierSimple,
		},
		{
			name:          "single llm",
			types:         []models.NodeType{models.NodeTypeText, models.NodeTypeLLM},
			wantTier:      TierStandard,
			wantGenCount:  1,
			hasGenerative: true,
		},
		{
			name:          "two generative",
			types:         []models.NodeType{models.NodeTypeLLM, models.NodeTypeImageGen, models.NodeTypePreview},
			wantTier:      TierStandard,
			wantGenCount:  2,
			hasGenerative: true,
		},
		{
			name:          "three generative",
			types:         []models.NodeType{models.NodeTypeLLM, models.NodeTypeImageGen, models.NodeTypeImageGen},
			wantTier:      TierHeavy,
			wantGenCount:  3,
			hasGenerative: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			profile := InspectCanvas(nodesOfTypes(tc.types...))
			assert.Equal(t, tc.wantTier, profile.Tier)
			assert.Equal(t, tc.wantGenCount, profile.GenerativeCount)
			assert.Equal(t, tc.hasGenerative, profile.HasGenerative)
			assert.Equal(t, len(tc.types), profile.TotalNodes)
		})
	}
}

func TestGetLimitForTier(t *testing.T) {
	assert.Equal(t, int64(100), GetLimitForTier(TierSimple))
	assert.Equal(t, int64(20), GetLimitForTier(TierStandard))
	assert.Equal(t, int64(5), GetLimitForTier(TierHeavy))

	// Unknown tiers fall back to the most restrictive limit
	assert.Equal(t, int64(5), GetLimitForTier(CanvasTier("platinum")))
}

func TestTierOrderingIsMonotonic(t *testing.T) {
	// More generative nodes must never buy a looser limit
	prev := GetLimitForTier(determineTier(0))
	for count := 1; count <= 6; count++ {
		limit := GetLimitForTier(determineTier(count))
		assert.LessOrEqual(t, limit, prev, "limit should tighten as generative count grows")
		prev = limit
	}
}
