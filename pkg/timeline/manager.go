// Package timeline maintains the temporal skeleton of the memory graph:
// scenes containing messages, messages chained in turn order, speaker and
// listener edges, and per-message links to the entities a turn introduced.
package timeline

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mnemon-dev/mnemon/pkg/driver"
	"github.com/mnemon-dev/mnemon/pkg/embedder"
	"github.com/mnemon-dev/mnemon/pkg/logger"
	"github.com/mnemon-dev/mnemon/pkg/types"
)

// RecallConfig bounds similarity recall.
type RecallConfig struct {
	TopK          int
	MinScore      float64
	RecencyWindow time.Duration
	TraverseDepth int
}

// Manager owns the write path for chat turns and the two read primitives,
// graph traversal and vector recall.
type Manager struct {
	store    driver.GraphStore
	embedder embedder.Client
	recall   RecallConfig

	// serializes message-chain writes per scene so RESPOND edges stay
	// strictly turn-ordered even when turns overlap
	mu     sync.Mutex
	scenes map[string]*sync.Mutex

	now func() time.Time // test hook
}

// NewManager builds a Manager. embedder may be nil, which disables vector
// population and recall but leaves the rest of the write path intact.
func NewManager(store driver.GraphStore, emb embedder.Client, recall RecallConfig) *Manager {
	if recall.TopK <= 0 {
		recall.TopK = 5
	}
	if recall.TraverseDepth <= 0 {
		recall.TraverseDepth = 2
	}
	return &Manager{
		store:    store,
		embedder: emb,
		recall:   recall,
		scenes:   make(map[string]*sync.Mutex),
		now:      time.Now,
	}
}

func (m *Manager) sceneLock(sceneID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.scenes[sceneID]
	if !ok {
		lock = &sync.Mutex{}
		m.scenes[sceneID] = lock
	}
	return lock
}

// systemID derives a system node id from its creation instant. System node
// identity is temporal, not nominal.
func systemID(t time.Time) string {
	return strconv.FormatInt(t.UnixNano(), 10)
}

// OpenScene creates a Scene node and returns its id.
func (m *Manager) OpenScene(ctx context.Context, description string) (string, error) {
	now := m.now().UTC()
	scene := &types.SystemNode{
		Label:      types.LabelScene,
		ID:         systemID(now),
		Content:    description,
		CreateTime: now,
	}
	if emb := m.embed(ctx, description); emb != nil {
		scene.Embedding = emb
	}
	if err := m.store.CreateSystemNode(ctx, scene); err != nil {
		return "", fmt.Errorf("open scene: %w", err)
	}
	return scene.ID, nil
}

// CloseScene stamps the scene with its end time. Subsequent StoreMessage
// calls for the scene still succeed; closing is bookkeeping, not a gate.
func (m *Manager) CloseScene(ctx context.Context, sceneID string) error {
	scene, err := m.store.GetSystemNode(ctx, types.LabelScene, sceneID)
	if err != nil {
		return err
	}
	if scene == nil {
		return fmt.Errorf("close scene: %s not found", sceneID)
	}
	if scene.Properties == nil {
		scene.Properties = types.Properties{}
	}
	scene.Properties.Merge(types.Properties{
		"end_time": {m.now().UTC().Format(time.RFC3339)},
	})
	return m.store.CreateSystemNode(ctx, scene)
}

// StoreMessage persists one turn: entity upserts first, then the Message
// node and its chain, speaker, listener, and containment edges. The chain
// edges are written only after every entity write has a result, so a turn
// cancelled mid-flight never leaves a half-linked message. Returns the new
// message id.
func (m *Manager) StoreMessage(ctx context.Context, sceneID, speaker, listener, text string, facts *types.Triplets) (string, error) {
	if facts == nil {
		facts = types.NewTriplets()
	}

	// entity writes fan out; deltas are captured per node for the
	// containment edges written afterwards
	deltas := make([]types.Properties, len(facts.Nodes))
	g, gctx := errgroup.WithContext(ctx)
	for i, node := range facts.Nodes {
		g.Go(func() error {
			existing, err := m.store.GetNode(gctx, node.Label, node.Name)
			if err != nil {
				return err
			}
			if existing == nil {
				deltas[i] = node.Properties.Clone()
			} else {
				deltas[i] = existing.Properties.Diff(node.Properties)
			}
			return m.store.CreateOrUpdateNode(gctx, node)
		})
	}
	for _, rel := range facts.Relationships {
		g.Go(func() error {
			return m.store.CreateOrUpdateRelationship(gctx, rel)
		})
	}
	if err := g.Wait(); err != nil {
		return "", fmt.Errorf("store turn entities: %w", err)
	}

	lock := m.sceneLock(sceneID)
	lock.Lock()
	defer lock.Unlock()

	former, err := m.store.LatestMessageID(ctx, sceneID)
	if err != nil {
		return "", err
	}

	now := m.now().UTC()
	message := &types.SystemNode{
		Label:      types.LabelMessage,
		ID:         systemID(now),
		Content:    text,
		CreateTime: now,
		Properties: types.Properties{"speaker": {speaker}},
	}
	if emb := m.embed(ctx, text); emb != nil {
		message.Embedding = emb
	}
	if err := m.store.AttachMessage(ctx, driver.MessageAttachment{
		Message:  message,
		SceneID:  sceneID,
		Speaker:  speaker,
		Listener: listener,
		FormerID: former,
	}); err != nil {
		return "", fmt.Errorf("store message: %w", err)
	}

	for i, node := range facts.Nodes {
		if err := m.store.LinkMessageEntity(ctx, message.ID, node.Key(), deltas[i]); err != nil {
			logger.Get().Warn("link message entity",
				zap.String("message", message.ID),
				zap.String("entity", node.Key().String()),
				zap.Error(err))
		}
	}
	return message.ID, nil
}

// StoreTopic persists a Topic node with an embedding for later recall.
func (m *Manager) StoreTopic(ctx context.Context, content string) (string, error) {
	now := m.now().UTC()
	topic := &types.SystemNode{
		Label:      types.LabelTopic,
		ID:         systemID(now),
		Content:    content,
		CreateTime: now,
	}
	if emb := m.embed(ctx, content); emb != nil {
		topic.Embedding = emb
	}
	if err := m.store.CreateSystemNode(ctx, topic); err != nil {
		return "", fmt.Errorf("store topic: %w", err)
	}
	return topic.ID, nil
}

// StoreDocument persists a Document node. Documents enter the graph
// through out-of-band import rather than chat turns.
func (m *Manager) StoreDocument(ctx context.Context, content string, props types.Properties) (string, error) {
	now := m.now().UTC()
	doc := &types.SystemNode{
		Label:      types.LabelDocument,
		ID:         systemID(now),
		Content:    content,
		CreateTime: now,
		Properties: props,
	}
	if emb := m.embed(ctx, content); emb != nil {
		doc.Embedding = emb
	}
	if err := m.store.CreateSystemNode(ctx, doc); err != nil {
		return "", fmt.Errorf("store document: %w", err)
	}
	return doc.ID, nil
}

// GetNodeRelationships expands breadth-first from the seed names up to
// depth hops, never crossing Message or Scene nodes.
func (m *Manager) GetNodeRelationships(ctx context.Context, names []string, depth int) (*types.Triplets, error) {
	if depth <= 0 {
		depth = m.recall.TraverseDepth
	}
	return m.store.ExpandFromNames(ctx, names, depth)
}

// QuerySystemNodes recalls the system nodes of one label most similar to
// the query text, bounded by the configured score floor and recency window.
func (m *Manager) QuerySystemNodes(ctx context.Context, text, label string) ([]*types.SystemNode, error) {
	if m.embedder == nil {
		return nil, nil
	}
	embedding, err := m.embedder.EmbedSingle(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return m.store.SearchSystemNodes(ctx, embedding, label, &driver.RecallOptions{
		Limit:    m.recall.TopK,
		MinScore: m.recall.MinScore,
		MaxAge:   m.recall.RecencyWindow,
	})
}

// embed returns nil on failure: a missing embedding degrades recall, it
// never blocks the write path.
func (m *Manager) embed(ctx context.Context, text string) []float32 {
	if m.embedder == nil || text == "" {
		return nil
	}
	embedding, err := m.embedder.EmbedSingle(ctx, text)
	if err != nil {
		logger.Get().Warn("embedding failed", zap.Error(err))
		return nil
	}
	return embedding
}
