package timeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemon-dev/mnemon/pkg/driver"
	"github.com/mnemon-dev/mnemon/pkg/embedder"
	"github.com/mnemon-dev/mnemon/pkg/types"
)

func newManager(t *testing.T) (*driver.MemStore, *Manager) {
	t.Helper()
	store := driver.NewMemStore()
	manager := NewManager(store, embedder.NewStaticClient(8), RecallConfig{
		TopK:          5,
		MinScore:      -1, // static embeddings score low, keep every hit
		RecencyWindow: time.Hour,
	})

	// monotonic clock so consecutive system nodes get distinct ids
	base := time.Now().UTC()
	step := 0
	manager.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Millisecond)
	}
	return store, manager
}

func aliceFacts() *types.Triplets {
	facts := types.NewTriplets()
	facts.AddNode(&types.Node{
		Label: "Person", Name: "Alice",
		Properties: types.Properties{"hobby": {"chess"}},
	})
	facts.AddNode(&types.Node{Label: "Place", Name: "Paris"})
	facts.AddRelationship(&types.Relationship{
		Type: "LIVE_IN", StartNode: "Alice", EndNode: "Paris",
		StartLabel: "Person", EndLabel: "Place",
	})
	return facts
}

func TestStoreMessagePersistsEntitiesAndChain(t *testing.T) {
	ctx := context.Background()
	store, manager := newManager(t)

	sceneID, err := manager.OpenScene(ctx, "a walk in the park")
	require.NoError(t, err)

	firstID, err := manager.StoreMessage(ctx, sceneID, "User", "Companion", "I live in Paris", aliceFacts())
	require.NoError(t, err)
	require.NotEmpty(t, firstID)

	// entities were upserted
	node, err := store.GetNode(ctx, "Person", "Alice")
	require.NoError(t, err)
	require.NotNil(t, node)
	assert.Equal(t, []string{"chess"}, node.Properties["hobby"])

	// message exists and is the scene's latest
	message, err := store.GetSystemNode(ctx, types.LabelMessage, firstID)
	require.NoError(t, err)
	require.NotNil(t, message)
	assert.Equal(t, "I live in Paris", message.Content)
	assert.NotEmpty(t, message.Embedding)

	latest, err := store.LatestMessageID(ctx, sceneID)
	require.NoError(t, err)
	assert.Equal(t, firstID, latest)

	// entity links carry the turn delta
	entities := store.MessageEntities(firstID)
	assert.Contains(t, entities, types.NodeKey{Label: "Person", Name: "Alice"})
	assert.Contains(t, entities, types.NodeKey{Label: "Place", Name: "Paris"})
}

func TestStoreMessageChainsTurns(t *testing.T) {
	ctx := context.Background()
	store, manager := newManager(t)

	sceneID, err := manager.OpenScene(ctx, "scene")
	require.NoError(t, err)

	first, err := manager.StoreMessage(ctx, sceneID, "User", "Companion", "hello", nil)
	require.NoError(t, err)
	second, err := manager.StoreMessage(ctx, sceneID, "Companion", "User", "hi there", nil)
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	latest, err := store.LatestMessageID(ctx, sceneID)
	require.NoError(t, err)
	assert.Equal(t, second, latest)
}

// droppedAttachStore loses the message write, as a cancelled transaction
// would.
type droppedAttachStore struct {
	*driver.MemStore
}

func (s *droppedAttachStore) AttachMessage(ctx context.Context, att driver.MessageAttachment) error {
	return errors.New("write lost")
}

func TestStoreMessageFailedAttachLeavesNoMessage(t *testing.T) {
	ctx := context.Background()
	inner := driver.NewMemStore()
	store := &droppedAttachStore{MemStore: inner}
	manager := NewManager(store, embedder.NewStaticClient(8), RecallConfig{
		TopK:          5,
		MinScore:      -1,
		RecencyWindow: time.Hour,
	})

	sceneID, err := manager.OpenScene(ctx, "scene")
	require.NoError(t, err)

	_, err = manager.StoreMessage(ctx, sceneID, "User", "Companion", "hello", nil)
	require.Error(t, err)

	// the failed turn left neither a chained nor an orphaned message
	latest, err := inner.LatestMessageID(ctx, sceneID)
	require.NoError(t, err)
	assert.Empty(t, latest)

	emb, err := embedder.NewStaticClient(8).EmbedSingle(ctx, "hello")
	require.NoError(t, err)
	hits, err := inner.SearchSystemNodes(ctx, emb, types.LabelMessage, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestStoreMessageDeltaOnlyNewValues(t *testing.T) {
	ctx := context.Background()
	store, manager := newManager(t)

	sceneID, err := manager.OpenScene(ctx, "scene")
	require.NoError(t, err)

	_, err = manager.StoreMessage(ctx, sceneID, "User", "Companion", "turn one", aliceFacts())
	require.NoError(t, err)

	// second turn repeats one value and adds one
	facts := types.NewTriplets()
	facts.AddNode(&types.Node{
		Label: "Person", Name: "Alice",
		Properties: types.Properties{"hobby": {"chess", "hiking"}},
	})
	_, err = manager.StoreMessage(ctx, sceneID, "User", "Companion", "turn two", facts)
	require.NoError(t, err)

	node, err := store.GetNode(ctx, "Person", "Alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"chess", "hiking"}, node.Properties["hobby"])
}

func TestCloseSceneStampsEndTime(t *testing.T) {
	ctx := context.Background()
	store, manager := newManager(t)

	sceneID, err := manager.OpenScene(ctx, "scene")
	require.NoError(t, err)
	require.NoError(t, manager.CloseScene(ctx, sceneID))

	scene, err := store.GetSystemNode(ctx, types.LabelScene, sceneID)
	require.NoError(t, err)
	assert.NotEmpty(t, scene.Properties["end_time"])

	assert.Error(t, manager.CloseScene(ctx, "no-such-scene"))
}

func TestQuerySystemNodesRecallsByLabel(t *testing.T) {
	ctx := context.Background()
	_, manager := newManager(t)

	sceneID, err := manager.OpenScene(ctx, "scene")
	require.NoError(t, err)
	_, err = manager.StoreMessage(ctx, sceneID, "User", "Companion", "I love chess", nil)
	require.NoError(t, err)
	_, err = manager.StoreTopic(ctx, "board games")
	require.NoError(t, err)

	// identical text embeds identically, so the stored message is the top hit
	hits, err := manager.QuerySystemNodes(ctx, "I love chess", types.LabelMessage)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "I love chess", hits[0].Content)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)

	topics, err := manager.QuerySystemNodes(ctx, "board games", types.LabelTopic)
	require.NoError(t, err)
	require.NotEmpty(t, topics)
	assert.Equal(t, "board games", topics[0].Content)
}

func TestGetNodeRelationshipsDelegatesDepth(t *testing.T) {
	ctx := context.Background()
	store, manager := newManager(t)

	require.NoError(t, store.CreateOrUpdateRelationship(ctx, &types.Relationship{
		Type: "KNOW", StartNode: "Alice", EndNode: "Bob",
		StartLabel: "Person", EndLabel: "Person",
	}))

	got, err := manager.GetNodeRelationships(ctx, []string{"Alice"}, 0)
	require.NoError(t, err)
	assert.True(t, got.ContainsNode(types.NodeKey{Label: "Person", Name: "Bob"}))
}
