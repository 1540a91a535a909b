package driver

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/mnemon-dev/mnemon/pkg/config"
	"github.com/mnemon-dev/mnemon/pkg/logger"
	"github.com/mnemon-dev/mnemon/pkg/types"
)

// BreakerStore wraps a GraphStore with a circuit breaker. Once the store
// starts failing the breaker opens and calls fail fast with
// ErrStoreUnavailable instead of piling up on a dead database, which keeps
// chat turns responsive while the graph is down.
type BreakerStore struct {
	inner GraphStore
	cb    *gobreaker.CircuitBreaker
}

// NewBreakerStore wraps inner. Returns inner unchanged when breaking is
// disabled in config.
func NewBreakerStore(inner GraphStore, cfg config.BreakerConfig) GraphStore {
	if !cfg.Enabled {
		return inner
	}

	st := gobreaker.Settings{
		Name:        "graph-store",
		MaxRequests: cfg.MaxRequests,
		Interval:    time.Duration(cfg.Interval) * time.Second,
		Timeout:     time.Duration(cfg.Timeout) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= cfg.ReadyToTripRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Get().Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &BreakerStore{
		inner: inner,
		cb:    gobreaker.NewCircuitBreaker(st),
	}
}

func (b *BreakerStore) execute(fn func() (any, error)) (any, error) {
	result, err := b.cb.Execute(fn)
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, ErrStoreUnavailable
	}
	return result, err
}

func (b *BreakerStore) GetNode(ctx context.Context, label, name string) (*types.Node, error) {
	result, err := b.execute(func() (any, error) {
		return b.inner.GetNode(ctx, label, name)
	})
	if err != nil {
		return nil, err
	}
	node, _ := result.(*types.Node)
	return node, nil
}

func (b *BreakerStore) CreateOrUpdateNode(ctx context.Context, node *types.Node) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.inner.CreateOrUpdateNode(ctx, node)
	})
	return err
}

func (b *BreakerStore) DeleteNode(ctx context.Context, label, name string) (bool, error) {
	result, err := b.execute(func() (any, error) {
		removed, err := b.inner.DeleteNode(ctx, label, name)
		return removed, err
	})
	if err != nil {
		return false, err
	}
	removed, _ := result.(bool)
	return removed, nil
}

func (b *BreakerStore) CreateOrUpdateRelationship(ctx context.Context, rel *types.Relationship) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.inner.CreateOrUpdateRelationship(ctx, rel)
	})
	return err
}

func (b *BreakerStore) DeleteRelationship(ctx context.Context, rel *types.Relationship) (int, error) {
	result, err := b.execute(func() (any, error) {
		return b.inner.DeleteRelationship(ctx, rel)
	})
	if err != nil {
		return 0, err
	}
	removed, _ := result.(int)
	return removed, nil
}

func (b *BreakerStore) GetRelationship(ctx context.Context, key types.RelationshipKey) (*types.Relationship, error) {
	result, err := b.execute(func() (any, error) {
		return b.inner.GetRelationship(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	rel, _ := result.(*types.Relationship)
	return rel, nil
}

func (b *BreakerStore) GetRelationshipsBetween(ctx context.Context, start, end types.NodeKey) ([]*types.Relationship, error) {
	result, err := b.execute(func() (any, error) {
		return b.inner.GetRelationshipsBetween(ctx, start, end)
	})
	if err != nil {
		return nil, err
	}
	rels, _ := result.([]*types.Relationship)
	return rels, nil
}

func (b *BreakerStore) GetRelationshipsByType(ctx context.Context, node types.NodeKey, relType string) ([]*types.Relationship, error) {
	result, err := b.execute(func() (any, error) {
		return b.inner.GetRelationshipsByType(ctx, node, relType)
	})
	if err != nil {
		return nil, err
	}
	rels, _ := result.([]*types.Relationship)
	return rels, nil
}

func (b *BreakerStore) GetOutgoingRelationships(ctx context.Context, node types.NodeKey) ([]*types.Relationship, error) {
	result, err := b.execute(func() (any, error) {
		return b.inner.GetOutgoingRelationships(ctx, node)
	})
	if err != nil {
		return nil, err
	}
	rels, _ := result.([]*types.Relationship)
	return rels, nil
}

func (b *BreakerStore) SetNameVariations(ctx context.Context, node types.NodeKey, variations []string) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.inner.SetNameVariations(ctx, node, variations)
	})
	return err
}

func (b *BreakerStore) RepointRelationships(ctx context.Context, from, to types.NodeKey) (int, error) {
	result, err := b.execute(func() (any, error) {
		return b.inner.RepointRelationships(ctx, from, to)
	})
	if err != nil {
		return 0, err
	}
	moved, _ := result.(int)
	return moved, nil
}

func (b *BreakerStore) ExpandFromNames(ctx context.Context, names []string, depth int) (*types.Triplets, error) {
	result, err := b.execute(func() (any, error) {
		return b.inner.ExpandFromNames(ctx, names, depth)
	})
	if err != nil {
		return nil, err
	}
	triplets, _ := result.(*types.Triplets)
	return triplets, nil
}

func (b *BreakerStore) CreateSystemNode(ctx context.Context, node *types.SystemNode) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.inner.CreateSystemNode(ctx, node)
	})
	return err
}

func (b *BreakerStore) GetSystemNode(ctx context.Context, label, id string) (*types.SystemNode, error) {
	result, err := b.execute(func() (any, error) {
		return b.inner.GetSystemNode(ctx, label, id)
	})
	if err != nil {
		return nil, err
	}
	node, _ := result.(*types.SystemNode)
	return node, nil
}

func (b *BreakerStore) LatestMessageID(ctx context.Context, sceneID string) (string, error) {
	result, err := b.execute(func() (any, error) {
		return b.inner.LatestMessageID(ctx, sceneID)
	})
	if err != nil {
		return "", err
	}
	id, _ := result.(string)
	return id, nil
}

func (b *BreakerStore) AttachMessage(ctx context.Context, att MessageAttachment) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.inner.AttachMessage(ctx, att)
	})
	return err
}

func (b *BreakerStore) LinkMessageEntity(ctx context.Context, messageID string, entity types.NodeKey, delta types.Properties) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.inner.LinkMessageEntity(ctx, messageID, entity, delta)
	})
	return err
}

func (b *BreakerStore) SearchSystemNodes(ctx context.Context, embedding []float32, label string, opts *RecallOptions) ([]*types.SystemNode, error) {
	result, err := b.execute(func() (any, error) {
		return b.inner.SearchSystemNodes(ctx, embedding, label, opts)
	})
	if err != nil {
		return nil, err
	}
	nodes, _ := result.([]*types.SystemNode)
	return nodes, nil
}

func (b *BreakerStore) Labels(ctx context.Context) ([]string, error) {
	result, err := b.execute(func() (any, error) {
		return b.inner.Labels(ctx)
	})
	if err != nil {
		return nil, err
	}
	labels, _ := result.([]string)
	return labels, nil
}

func (b *BreakerStore) RelationshipTypes(ctx context.Context) ([]string, error) {
	result, err := b.execute(func() (any, error) {
		return b.inner.RelationshipTypes(ctx)
	})
	if err != nil {
		return nil, err
	}
	relTypes, _ := result.([]string)
	return relTypes, nil
}

func (b *BreakerStore) LabelPairTypes(ctx context.Context) (map[types.LabelPair][]string, error) {
	result, err := b.execute(func() (any, error) {
		return b.inner.LabelPairTypes(ctx)
	})
	if err != nil {
		return nil, err
	}
	pairs, _ := result.(map[types.LabelPair][]string)
	return pairs, nil
}

func (b *BreakerStore) NodeNames(ctx context.Context, label string) ([]string, error) {
	result, err := b.execute(func() (any, error) {
		return b.inner.NodeNames(ctx, label)
	})
	if err != nil {
		return nil, err
	}
	names, _ := result.([]string)
	return names, nil
}

func (b *BreakerStore) AllNodes(ctx context.Context) ([]*types.Node, error) {
	result, err := b.execute(func() (any, error) {
		return b.inner.AllNodes(ctx)
	})
	if err != nil {
		return nil, err
	}
	nodes, _ := result.([]*types.Node)
	return nodes, nil
}

func (b *BreakerStore) AllRelationships(ctx context.Context) ([]*types.Relationship, error) {
	result, err := b.execute(func() (any, error) {
		return b.inner.AllRelationships(ctx)
	})
	if err != nil {
		return nil, err
	}
	rels, _ := result.([]*types.Relationship)
	return rels, nil
}

func (b *BreakerStore) CreateIndices(ctx context.Context) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.inner.CreateIndices(ctx)
	})
	return err
}

func (b *BreakerStore) Stats(ctx context.Context) (*Stats, error) {
	result, err := b.execute(func() (any, error) {
		return b.inner.Stats(ctx)
	})
	if err != nil {
		return nil, err
	}
	stats, _ := result.(*Stats)
	return stats, nil
}

func (b *BreakerStore) Provider() Provider { return b.inner.Provider() }

func (b *BreakerStore) Close(ctx context.Context) error { return b.inner.Close(ctx) }
