package driver

import (
	"context"
	"errors"
	"time"

	"github.com/mnemon-dev/mnemon/pkg/types"
)

// Provider identifies the graph database product behind a GraphStore.
type Provider string

const (
	ProviderNeo4j  Provider = "neo4j"
	ProviderMemory Provider = "memory"
)

// ErrStoreUnavailable wraps connection and timeout failures talking to the
// graph store. It is fatal for the current operation and surfaces to the
// caller without internal retry.
var ErrStoreUnavailable = errors.New("graph store unavailable")

// EntityStore provides CRUD over individual nodes and relationships with
// merge-not-overwrite property semantics.
type EntityStore interface {
	// GetNode finds a node by exact name or name variation. System labels
	// are rejected; a miss returns (nil, nil).
	GetNode(ctx context.Context, label, name string) (*types.Node, error)

	// CreateOrUpdateNode creates the node or set-unions its property lists
	// into the stored ones. Replaying the same node is a no-op.
	CreateOrUpdateNode(ctx context.Context, node *types.Node) error

	// DeleteNode detach-deletes a node, reporting whether one was found.
	DeleteNode(ctx context.Context, label, name string) (bool, error)

	// CreateOrUpdateRelationship merges the relationship by its full key,
	// auto-vivifying missing endpoints. Concurrent calls for the same edge
	// never produce duplicates.
	CreateOrUpdateRelationship(ctx context.Context, rel *types.Relationship) error

	// DeleteRelationship removes the edge matching the full key, reporting
	// how many were removed (0 or 1).
	DeleteRelationship(ctx context.Context, rel *types.Relationship) (int, error)

	// GetRelationship fetches one edge by its full key, nil on miss.
	GetRelationship(ctx context.Context, key types.RelationshipKey) (*types.Relationship, error)

	// GetRelationshipsBetween lists the directed edges from start to end.
	GetRelationshipsBetween(ctx context.Context, start, end types.NodeKey) ([]*types.Relationship, error)

	// GetRelationshipsByType lists edges of one type incident to the node.
	GetRelationshipsByType(ctx context.Context, node types.NodeKey, relType string) ([]*types.Relationship, error)

	// GetOutgoingRelationships lists every edge originating at the node.
	GetOutgoingRelationships(ctx context.Context, node types.NodeKey) ([]*types.Relationship, error)

	// SetNameVariations replaces the node's name_variation list.
	SetNameVariations(ctx context.Context, node types.NodeKey, variations []string) error

	// RepointRelationships rewrites every edge incident to from so it
	// originates or terminates at to, preserving type and properties.
	// Returns the number of edges moved.
	RepointRelationships(ctx context.Context, from, to types.NodeKey) (int, error)
}

// Traversal provides depth-bounded expansion for fact recall.
type Traversal interface {
	// ExpandFromNames walks up to depth hops from nodes matching the seed
	// names (by name or variation), pruning any path that touches a
	// Message or Scene node, and returns the union of everything touched.
	ExpandFromNames(ctx context.Context, names []string, depth int) (*types.Triplets, error)
}

// MessageAttachment carries a new Message node and how it links into the
// temporal skeleton. Node and edges commit together, so a cancellation
// never leaves an edge-less message behind.
type MessageAttachment struct {
	Message  *types.SystemNode
	SceneID  string
	Speaker  string
	Listener string
	// FormerID is the previous latest message of the scene; empty for the
	// first message. The former message gains a RESPOND edge to this one.
	FormerID string
}

// RecallOptions bounds a similarity query over system nodes.
type RecallOptions struct {
	Limit    int
	MinScore float64
	// MaxAge excludes system nodes older than now minus MaxAge; zero
	// disables the recency filter.
	MaxAge time.Duration
}

// Timeline maintains the Scene/Message/Topic/Document skeleton and its
// embedding-based recall.
type Timeline interface {
	CreateSystemNode(ctx context.Context, node *types.SystemNode) error
	GetSystemNode(ctx context.Context, label, id string) (*types.SystemNode, error)

	// LatestMessageID returns the scene's open latest message (the one
	// without an outgoing RESPOND edge), or "" when the scene is empty.
	LatestMessageID(ctx context.Context, sceneID string) (string, error)

	// AttachMessage creates the message node and links it into its scene
	// in one transaction: CONTAIN from the scene, SPEAKER/LISTENER from
	// the persons, and RESPOND from the former latest message when
	// present.
	AttachMessage(ctx context.Context, att MessageAttachment) error

	// LinkMessageEntity records that the message introduced facts about
	// the entity, carrying the per-turn property delta on the edge.
	LinkMessageEntity(ctx context.Context, messageID string, entity types.NodeKey, delta types.Properties) error

	// SearchSystemNodes runs cosine-similarity recall over one system
	// label, honoring the score floor and recency window, ordered by
	// descending score.
	SearchSystemNodes(ctx context.Context, embedding []float32, label string, opts *RecallOptions) ([]*types.SystemNode, error)
}

// SchemaIntrospection exposes the store's metadata for the schema cache.
type SchemaIntrospection interface {
	Labels(ctx context.Context) ([]string, error)
	RelationshipTypes(ctx context.Context) ([]string, error)

	// LabelPairTypes maps each observed (start label, end label) pair to
	// the set of relationship types connecting nodes of those labels.
	LabelPairTypes(ctx context.Context) (map[types.LabelPair][]string, error)

	NodeNames(ctx context.Context, label string) ([]string, error)

	// AllNodes and AllRelationships snapshot the semantic graph; system
	// labels are structural and excluded.
	AllNodes(ctx context.Context) ([]*types.Node, error)
	AllRelationships(ctx context.Context) ([]*types.Relationship, error)
}

// Admin provides maintenance operations.
type Admin interface {
	CreateIndices(ctx context.Context) error
	Stats(ctx context.Context) (*Stats, error)
	Provider() Provider
	Close(ctx context.Context) error
}

// GraphStore is the complete store contract the engine depends on. The
// engine never assumes a specific product beyond this capability set.
type GraphStore interface {
	EntityStore
	Traversal
	Timeline
	SchemaIntrospection
	Admin
}

// Stats summarizes the graph for operators.
type Stats struct {
	NodeCount           int64            `json:"node_count"`
	RelationshipCount   int64            `json:"relationship_count"`
	NodesByLabel        map[string]int64 `json:"nodes_by_label"`
	RelationshipsByType map[string]int64 `json:"relationships_by_type"`
	CollectedAt         time.Time        `json:"collected_at"`
}
