package maintenance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemon-dev/mnemon/pkg/driver"
	"github.com/mnemon-dev/mnemon/pkg/types"
)

func seed(t *testing.T) (*driver.MemStore, *Integrator) {
	t.Helper()
	ctx := context.Background()
	store := driver.NewMemStore()

	require.NoError(t, store.CreateOrUpdateNode(ctx, &types.Node{
		Label:      "Person",
		Name:       "Alice",
		Properties: types.Properties{"hobby": {"chess"}},
	}))
	require.NoError(t, store.CreateOrUpdateNode(ctx, &types.Node{
		Label:         "Person",
		Name:          "Ali",
		Properties:    types.Properties{"hobby": {"hiking"}, "job": {"engineer"}},
		NameVariation: []string{"Al"},
	}))
	require.NoError(t, store.SetNameVariations(ctx,
		types.NodeKey{Label: "Person", Name: "Ali"}, []string{"Al"}))
	require.NoError(t, store.CreateOrUpdateRelationship(ctx, &types.Relationship{
		Type: "LIVE_IN", StartNode: "Ali", EndNode: "Paris",
		StartLabel: "Person", EndLabel: "Place",
	}))

	return store, NewIntegrator(store)
}

func TestIntegrateNodesMergesEverything(t *testing.T) {
	ctx := context.Background()
	store, integrator := seed(t)

	alice := types.NodeKey{Label: "Person", Name: "Alice"}
	ali := types.NodeKey{Label: "Person", Name: "Ali"}

	require.NoError(t, integrator.IntegrateNodes(ctx, alice, ali))

	merged, err := store.GetNode(ctx, "Person", "Alice")
	require.NoError(t, err)
	require.NotNil(t, merged)

	// step 1: b's name and variations became a's variations
	assert.ElementsMatch(t, []string{"Ali", "Al"}, merged.NameVariation)

	// step 2: properties unioned, name kept a's value
	assert.ElementsMatch(t, []string{"chess", "hiking"}, merged.Properties["hobby"])
	assert.Equal(t, []string{"engineer"}, merged.Properties["job"])
	assert.Equal(t, []string{"Alice"}, merged.Properties["name"])

	// step 3: b's edges now originate at a
	rels, err := store.GetOutgoingRelationships(ctx, alice)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, "Paris", rels[0].EndNode)

	// the absorbed node survives until explicitly deleted
	duplicate, err := store.GetNode(ctx, "Person", "Ali")
	require.NoError(t, err)
	assert.Equal(t, "Ali", duplicate.Name)
}

func TestIntegrateThenDeleteResolvesVariation(t *testing.T) {
	ctx := context.Background()
	store, integrator := seed(t)

	alice := types.NodeKey{Label: "Person", Name: "Alice"}
	ali := types.NodeKey{Label: "Person", Name: "Ali"}

	require.NoError(t, integrator.IntegrateNodes(ctx, alice, ali))

	removed, err := integrator.DeleteNode(ctx, ali)
	require.NoError(t, err)
	assert.True(t, removed)

	// the old surface name now resolves to the merged node
	node, err := store.GetNode(ctx, "Person", "Ali")
	require.NoError(t, err)
	require.NotNil(t, node)
	assert.Equal(t, "Alice", node.Name)
}

func TestIntegrateNodesIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store, integrator := seed(t)

	alice := types.NodeKey{Label: "Person", Name: "Alice"}
	ali := types.NodeKey{Label: "Person", Name: "Ali"}

	require.NoError(t, integrator.IntegrateNodes(ctx, alice, ali))
	require.NoError(t, integrator.IntegrateNodes(ctx, alice, ali))

	merged, err := store.GetNode(ctx, "Person", "Alice")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Ali", "Al"}, merged.NameVariation)
	assert.ElementsMatch(t, []string{"chess", "hiking"}, merged.Properties["hobby"])
}

func TestIntegrateNodesMissingTarget(t *testing.T) {
	ctx := context.Background()
	_, integrator := seed(t)

	err := integrator.IntegrateNodes(ctx,
		types.NodeKey{Label: "Person", Name: "Alice"},
		types.NodeKey{Label: "Person", Name: "Ghost"},
	)
	assert.ErrorIs(t, err, ErrNodeNotFound)
}
