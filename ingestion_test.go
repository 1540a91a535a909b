package mnemon

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemon-dev/mnemon/pkg/types"
)

func TestIngestFactsSeedScenario(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t, &stubExtractor{})

	fact := types.Fact{
		Subject:   []string{"Alice", "Person"},
		Predicate: []string{"knows", "KNOWS"},
		Object:    []string{"Bob", "Person"},
	}

	report, err := engine.IngestFacts(ctx, "tenant-a", []types.Fact{fact})
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Empty(t, report.Unresolved)
	assert.Equal(t, "KNOWS", report.Results[0].RelationType)

	alice, err := store.GetNode(ctx, "Person", "Alice")
	require.NoError(t, err)
	require.NotNil(t, alice)
	bob, err := store.GetNode(ctx, "Person", "Bob")
	require.NoError(t, err)
	require.NotNil(t, bob)

	rels, err := store.GetRelationshipsBetween(ctx,
		types.NodeKey{Label: "Person", Name: "Alice"},
		types.NodeKey{Label: "Person", Name: "Bob"},
	)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, "KNOWS", rels[0].Type)

	// re-ingesting the identical fact must not duplicate the edge
	_, err = engine.IngestFacts(ctx, "tenant-a", []types.Fact{fact})
	require.NoError(t, err)
	rels, err = store.GetRelationshipsBetween(ctx,
		types.NodeKey{Label: "Person", Name: "Alice"},
		types.NodeKey{Label: "Person", Name: "Bob"},
	)
	require.NoError(t, err)
	assert.Len(t, rels, 1)

	// no name_variation key leaks into stored properties
	_, hasVariation := alice.Properties["name_variation"]
	assert.False(t, hasVariation)
}

func TestIngestFactsSelfRelationSkipsObject(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t, &stubExtractor{})

	report, err := engine.IngestFacts(ctx, "tenant-a", []types.Fact{{
		Subject:   []string{"Alice", "Person"},
		Predicate: []string{"talks to", "TALK_TO"},
		Object:    []string{"alice", "Person"}, // same entity, different case
	}})
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.True(t, report.Results[0].SelfRelated)
	assert.Empty(t, report.Unresolved)

	rels, err := store.AllRelationships(ctx)
	require.NoError(t, err)
	assert.Empty(t, rels)

	nodes, err := store.AllNodes(ctx)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "Alice", nodes[0].Name)
}

func TestIngestFactsResolvesTypeFromLabelPairs(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t, &stubExtractor{})

	// prior knowledge: Person LIVE_IN Place is the only type for this pair
	require.NoError(t, store.CreateOrUpdateRelationship(ctx, &types.Relationship{
		Type: "LIVE_IN", StartNode: "Carol", EndNode: "Tokyo",
		StartLabel: "Person", EndLabel: "Place",
	}))

	report, err := engine.IngestFacts(ctx, "tenant-a", []types.Fact{{
		Subject: []string{"Alice", "Person"},
		Object:  []string{"Paris", "Place"}, // no predicate supplied
	}})
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, "LIVE_IN", report.Results[0].RelationType)
	assert.Empty(t, report.Unresolved)

	rels, err := store.GetRelationshipsBetween(ctx,
		types.NodeKey{Label: "Person", Name: "Alice"},
		types.NodeKey{Label: "Place", Name: "Paris"},
	)
	require.NoError(t, err)
	assert.Len(t, rels, 1)
}

func TestIngestFactsUnresolvableTypeSurfaced(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t, &stubExtractor{})

	report, err := engine.IngestFacts(ctx, "tenant-a", []types.Fact{{
		Subject: []string{"Alice", "Person"},
		Object:  []string{"Mercury", "Planet"}, // no predicate, unknown pair
	}})
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	require.Len(t, report.Unresolved, 1)
	assert.Equal(t, "", report.Unresolved[0].RelationType)

	// both nodes exist, no edge was written
	rels, err := store.AllRelationships(ctx)
	require.NoError(t, err)
	assert.Empty(t, rels)
	nodes, err := store.AllNodes(ctx)
	require.NoError(t, err)
	assert.Len(t, nodes, 2)
}

func TestIngestFactsResolvesLabelFromSchema(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t, &stubExtractor{})

	require.NoError(t, store.CreateOrUpdateNode(ctx, &types.Node{
		Label: "Place", Name: "Paris",
	}))

	report, err := engine.IngestFacts(ctx, "tenant-a", []types.Fact{{
		Subject:   []string{"Alice", "Person"},
		Predicate: []string{"lives in", "LIVE_IN"},
		Object:    []string{"Paris"}, // label omitted by the extractor
	}})
	require.NoError(t, err)
	require.Len(t, report.Results, 1)

	rels, err := store.GetRelationshipsBetween(ctx,
		types.NodeKey{Label: "Person", Name: "Alice"},
		types.NodeKey{Label: "Place", Name: "Paris"},
	)
	require.NoError(t, err)
	assert.Len(t, rels, 1)
}

func TestIngestFactsDropsMalformed(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t, &stubExtractor{})

	report, err := engine.IngestFacts(ctx, "tenant-a", []types.Fact{
		{}, // no subject at all
		{
			Subject:   []string{"Alice", "Person"},
			Predicate: []string{"knows", "KNOWS"},
			Object:    []string{"Bob", "Person"},
		},
	})
	require.NoError(t, err)
	assert.Len(t, report.Results, 1)
}

func TestIngestFactsResponseGraphContainsNeighborhood(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t, &stubExtractor{})

	// Alice already has an unrelated outgoing edge
	require.NoError(t, store.CreateOrUpdateRelationship(ctx, &types.Relationship{
		Type: "OWN", StartNode: "Alice", EndNode: "Bicycle",
		StartLabel: "Person", EndLabel: "Thing",
	}))

	report, err := engine.IngestFacts(ctx, "tenant-a", []types.Fact{{
		Subject:   []string{"Alice", "Person"},
		Predicate: []string{"knows", "KNOWS"},
		Object:    []string{"Bob", "Person"},
	}})
	require.NoError(t, err)
	require.Len(t, report.Results, 1)

	graph := report.Results[0].Graph
	assert.True(t, graph.ContainsNode(types.NodeKey{Label: "Person", Name: "Alice"}))
	assert.True(t, graph.ContainsNode(types.NodeKey{Label: "Person", Name: "Bob"}))
	assert.NotNil(t, graph.FindRelationship(types.RelationshipKey{
		Type: "KNOWS", StartNode: "Alice", EndNode: "Bob",
		StartLabel: "Person", EndLabel: "Person",
	}))
	// the outgoing-relationships fetch pulled the prior edge in
	assert.NotNil(t, graph.FindRelationship(types.RelationshipKey{
		Type: "OWN", StartNode: "Alice", EndNode: "Bicycle",
		StartLabel: "Person", EndLabel: "Thing",
	}))
}
