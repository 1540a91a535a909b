// Package schema caches graph schema summaries so ingestion can resolve
// labels and relationship types without hitting the store on every fact.
// Schema drifts slowly relative to chat traffic, so entries live for a
// fixed TTL (24h by default) and are refreshed read-through on expiry.
package schema

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mnemon-dev/mnemon/pkg/driver"
	"github.com/mnemon-dev/mnemon/pkg/logger"
	"github.com/mnemon-dev/mnemon/pkg/types"
)

// Cache keys. Node-name entries append the label, e.g. "node_names_Person".
const (
	keyLabels     = "labels"
	keyRelTypes   = "relationship_types"
	keyLabelPairs = "label_and_relationship_type_sets"
	keyNodeNames  = "node_names_"
	keyAllNodes   = "all_nodes"
	keyAllRels    = "all_relationships"
)

// DefaultTTL is how long a schema summary stays fresh.
const DefaultTTL = 24 * time.Hour

type entry struct {
	value   any
	expires time.Time
}

// Cache is a TTL read-through cache over a store's schema introspection.
// Concurrent readers of a cold key may each trigger a refresh; the queries
// are cheap and idempotent so the duplicate work is accepted.
type Cache struct {
	store driver.SchemaIntrospection
	ttl   time.Duration

	mu      sync.RWMutex
	entries map[string]entry

	now func() time.Time // test hook
}

// New builds a cache over store. ttl <= 0 selects DefaultTTL.
func New(store driver.SchemaIntrospection, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		store:   store,
		ttl:     ttl,
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

func (c *Cache) get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || c.now().After(e.expires) {
		return nil, false
	}
	return e.value, true
}

func (c *Cache) put(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, expires: c.now().Add(c.ttl)}
}

// load returns the cached value or refreshes it via fetch. A failed refresh
// falls back to the stale value when one exists: a schema snapshot from
// yesterday beats failing the chat turn.
func (c *Cache) load(key string, fetch func() (any, error)) (any, error) {
	if value, ok := c.get(key); ok {
		return value, nil
	}
	value, err := fetch()
	if err != nil {
		c.mu.RLock()
		stale, ok := c.entries[key]
		c.mu.RUnlock()
		if ok {
			logger.Get().Warn("schema refresh failed, serving stale entry",
				zap.String("key", key), zap.Error(err))
			return stale.value, nil
		}
		return nil, err
	}
	c.put(key, value)
	return value, nil
}

// Labels returns all known node labels.
func (c *Cache) Labels(ctx context.Context) ([]string, error) {
	value, err := c.load(keyLabels, func() (any, error) {
		return c.store.Labels(ctx)
	})
	if err != nil {
		return nil, err
	}
	return value.([]string), nil
}

// RelationshipTypes returns all known relationship types.
func (c *Cache) RelationshipTypes(ctx context.Context) ([]string, error) {
	value, err := c.load(keyRelTypes, func() (any, error) {
		return c.store.RelationshipTypes(ctx)
	})
	if err != nil {
		return nil, err
	}
	return value.([]string), nil
}

// LabelPairTypes returns the relationship types observed per label pair.
func (c *Cache) LabelPairTypes(ctx context.Context) (map[types.LabelPair][]string, error) {
	value, err := c.load(keyLabelPairs, func() (any, error) {
		return c.store.LabelPairTypes(ctx)
	})
	if err != nil {
		return nil, err
	}
	return value.(map[types.LabelPair][]string), nil
}

// NodeNames returns the names of nodes with the label.
func (c *Cache) NodeNames(ctx context.Context, label string) ([]string, error) {
	value, err := c.load(keyNodeNames+label, func() (any, error) {
		return c.store.NodeNames(ctx, label)
	})
	if err != nil {
		return nil, err
	}
	return value.([]string), nil
}

// AllNodes returns a snapshot of every semantic node.
func (c *Cache) AllNodes(ctx context.Context) ([]*types.Node, error) {
	value, err := c.load(keyAllNodes, func() (any, error) {
		return c.store.AllNodes(ctx)
	})
	if err != nil {
		return nil, err
	}
	return value.([]*types.Node), nil
}

// AllRelationships returns a snapshot of every semantic edge.
func (c *Cache) AllRelationships(ctx context.Context) ([]*types.Relationship, error) {
	value, err := c.load(keyAllRels, func() (any, error) {
		return c.store.AllRelationships(ctx)
	})
	if err != nil {
		return nil, err
	}
	return value.([]*types.Relationship), nil
}

// LabelForName scans known labels for one whose node set contains name.
// Used by ingestion to type a bare entity name; returns "" when unknown.
func (c *Cache) LabelForName(ctx context.Context, name string) (string, error) {
	labels, err := c.Labels(ctx)
	if err != nil {
		return "", err
	}
	for _, label := range labels {
		if types.IsSystemLabel(label) {
			continue
		}
		names, err := c.NodeNames(ctx, label)
		if err != nil {
			return "", err
		}
		for _, n := range names {
			if n == name {
				return label, nil
			}
		}
	}
	return "", nil
}

// Invalidate drops every entry. Called after bulk writes that change the
// schema faster than the TTL assumes, such as node integration.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}
