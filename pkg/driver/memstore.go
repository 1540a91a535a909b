package driver

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mnemon-dev/mnemon/pkg/types"
	"github.com/mnemon-dev/mnemon/pkg/vector"
)

// MemStore is an in-memory GraphStore with the same merge and lookup
// semantics as the Neo4j implementation. It backs unit tests and the
// zero-infrastructure dev mode; it is not durable.
type MemStore struct {
	mu    sync.RWMutex
	nodes map[types.NodeKey]*types.Node
	rels  map[types.RelationshipKey]*types.Relationship
	sys   map[string]map[string]*types.SystemNode // label -> id -> node

	// scene -> ordered message ids, for latest-message lookup
	sceneMessages map[string][]string
	// message -> entity links with their turn deltas
	messageLinks map[string][]messageLink
}

type messageLink struct {
	entity types.NodeKey
	delta  types.Properties
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		nodes:         make(map[types.NodeKey]*types.Node),
		rels:          make(map[types.RelationshipKey]*types.Relationship),
		sys:           make(map[string]map[string]*types.SystemNode),
		sceneMessages: make(map[string][]string),
		messageLinks:  make(map[string][]messageLink),
	}
}

func (m *MemStore) Provider() Provider { return ProviderMemory }

func (m *MemStore) Close(ctx context.Context) error { return nil }

// findLocked resolves a name against names and variations. Caller holds mu.
func (m *MemStore) findLocked(label, name string) *types.Node {
	if node, ok := m.nodes[types.NodeKey{Label: label, Name: name}]; ok {
		return node
	}
	for key, node := range m.nodes {
		if key.Label != label {
			continue
		}
		for _, variation := range node.NameVariation {
			if variation == name {
				return node
			}
		}
	}
	return nil
}

func (m *MemStore) GetNode(ctx context.Context, label, name string) (*types.Node, error) {
	if types.IsSystemLabel(label) {
		return nil, types.ErrSystemLabel
	}
	if err := checkIdentifiers(label); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	node := m.findLocked(label, name)
	if node == nil {
		return nil, nil
	}
	return cloneNode(node), nil
}

func (m *MemStore) CreateOrUpdateNode(ctx context.Context, node *types.Node) error {
	if node == nil {
		return types.ErrEmptyName
	}
	if err := node.Validate(); err != nil {
		return err
	}
	if err := checkIdentifiers(node.Label); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.findLocked(node.Label, node.Name)
	if existing == nil {
		stored := cloneNode(node)
		if stored.Properties == nil {
			stored.Properties = types.Properties{}
		}
		stored.Properties.Merge(types.Properties{"name": {node.Name}})
		m.nodes[stored.Key()] = stored
		return nil
	}
	existing.Properties.Merge(node.Properties)
	return nil
}

func (m *MemStore) DeleteNode(ctx context.Context, label, name string) (bool, error) {
	if err := checkIdentifiers(label); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := types.NodeKey{Label: label, Name: name}
	if _, ok := m.nodes[key]; !ok {
		return false, nil
	}
	delete(m.nodes, key)
	for relKey, rel := range m.rels {
		if rel.Touches(key) {
			delete(m.rels, relKey)
		}
	}
	return true, nil
}

func (m *MemStore) CreateOrUpdateRelationship(ctx context.Context, rel *types.Relationship) error {
	if rel == nil {
		return types.ErrEmptyType
	}
	if err := rel.Validate(); err != nil {
		return err
	}
	if err := checkIdentifiers(rel.Type, rel.StartLabel, rel.EndLabel); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// endpoints auto-vivify, same as the MERGE clauses in the Neo4j path
	for _, endpoint := range []types.NodeKey{rel.Start(), rel.End()} {
		if m.findLocked(endpoint.Label, endpoint.Name) == nil {
			m.nodes[endpoint] = &types.Node{
				Label:      endpoint.Label,
				Name:       endpoint.Name,
				Properties: types.Properties{"name": {endpoint.Name}},
			}
		}
	}

	existing, ok := m.rels[rel.Key()]
	if !ok {
		m.rels[rel.Key()] = cloneRelationship(rel)
		return nil
	}
	if existing.Properties == nil {
		existing.Properties = types.Properties{}
	}
	existing.Properties.Merge(rel.Properties)
	return nil
}

func (m *MemStore) DeleteRelationship(ctx context.Context, rel *types.Relationship) (int, error) {
	if err := rel.Validate(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rels[rel.Key()]; !ok {
		return 0, nil
	}
	delete(m.rels, rel.Key())
	return 1, nil
}

func (m *MemStore) GetRelationship(ctx context.Context, key types.RelationshipKey) (*types.Relationship, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rel, ok := m.rels[key]
	if !ok {
		return nil, nil
	}
	return cloneRelationship(rel), nil
}

func (m *MemStore) GetRelationshipsBetween(ctx context.Context, start, end types.NodeKey) ([]*types.Relationship, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*types.Relationship
	for _, rel := range m.rels {
		if rel.Start() == start && rel.End() == end {
			out = append(out, cloneRelationship(rel))
		}
	}
	sortRelationships(out)
	return out, nil
}

func (m *MemStore) GetRelationshipsByType(ctx context.Context, node types.NodeKey, relType string) ([]*types.Relationship, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*types.Relationship
	for _, rel := range m.rels {
		if rel.Type == relType && rel.Touches(node) {
			out = append(out, cloneRelationship(rel))
		}
	}
	sortRelationships(out)
	return out, nil
}

func (m *MemStore) GetOutgoingRelationships(ctx context.Context, node types.NodeKey) ([]*types.Relationship, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*types.Relationship
	for _, rel := range m.rels {
		if rel.Start() == node {
			out = append(out, cloneRelationship(rel))
		}
	}
	sortRelationships(out)
	return out, nil
}

func (m *MemStore) SetNameVariations(ctx context.Context, node types.NodeKey, variations []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.nodes[node]
	if !ok {
		return nil
	}
	stored.NameVariation = append([]string(nil), variations...)
	return nil
}

func (m *MemStore) RepointRelationships(ctx context.Context, from, to types.NodeKey) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	moved := 0
	for key, rel := range m.rels {
		if !rel.Touches(from) {
			continue
		}
		replacement := cloneRelationship(rel)
		if replacement.Start() == from {
			replacement.StartNode = to.Name
			replacement.StartLabel = to.Label
		}
		if replacement.End() == from {
			replacement.EndNode = to.Name
			replacement.EndLabel = to.Label
		}
		delete(m.rels, key)
		if replacement.Start() == replacement.End() {
			continue
		}
		if existing, ok := m.rels[replacement.Key()]; ok {
			if existing.Properties == nil {
				existing.Properties = types.Properties{}
			}
			existing.Properties.Merge(replacement.Properties)
		} else {
			m.rels[replacement.Key()] = replacement
		}
		moved++
	}
	return moved, nil
}

// timelineLabel reports whether the label belongs to the conversational
// skeleton. Expansion never crosses those nodes, but Topic and Document
// stay reachable, matching the Neo4j traversal.
func timelineLabel(label string) bool {
	return label == types.LabelMessage || label == types.LabelScene
}

func (m *MemStore) ExpandFromNames(ctx context.Context, names []string, depth int) (*types.Triplets, error) {
	out := types.NewTriplets()
	if len(names) == 0 {
		return out, nil
	}
	if depth < 1 {
		depth = 1
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	frontier := map[types.NodeKey]bool{}
	for _, name := range names {
		for key, node := range m.nodes {
			if timelineLabel(key.Label) {
				continue
			}
			if key.Name == name || containsStr(node.NameVariation, name) {
				frontier[key] = true
			}
		}
	}

	visited := map[types.NodeKey]bool{}
	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		next := map[types.NodeKey]bool{}
		for key := range frontier {
			if visited[key] {
				continue
			}
			visited[key] = true
			for _, rel := range m.rels {
				if !rel.Touches(key) {
					continue
				}
				if timelineLabel(rel.StartLabel) || timelineLabel(rel.EndLabel) {
					continue
				}
				if start, ok := m.nodes[rel.Start()]; ok {
					out.AddNode(cloneNode(start))
				}
				if end, ok := m.nodes[rel.End()]; ok {
					out.AddNode(cloneNode(end))
				}
				out.AddRelationship(cloneRelationship(rel))
				other := rel.Start()
				if other == key {
					other = rel.End()
				}
				if !visited[other] {
					next[other] = true
				}
			}
		}
		frontier = next
	}
	return out, nil
}

func (m *MemStore) CreateSystemNode(ctx context.Context, node *types.SystemNode) error {
	if err := node.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	byID, ok := m.sys[node.Label]
	if !ok {
		byID = make(map[string]*types.SystemNode)
		m.sys[node.Label] = byID
	}
	if existing, ok := byID[node.ID]; ok {
		existing.Content = node.Content
		if existing.Properties == nil {
			existing.Properties = types.Properties{}
		}
		existing.Properties.Merge(node.Properties)
		return nil
	}
	byID[node.ID] = cloneSystemNode(node)
	return nil
}

func (m *MemStore) GetSystemNode(ctx context.Context, label, id string) (*types.SystemNode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	node, ok := m.sys[label][id]
	if !ok {
		return nil, nil
	}
	return cloneSystemNode(node), nil
}

func (m *MemStore) LatestMessageID(ctx context.Context, sceneID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	messages := m.sceneMessages[sceneID]
	if len(messages) == 0 {
		return "", nil
	}
	return messages[len(messages)-1], nil
}

// AttachMessage stores the message node and appends it to the scene's
// chain under one lock, mirroring the single-transaction Neo4j write.
func (m *MemStore) AttachMessage(ctx context.Context, att MessageAttachment) error {
	msg := att.Message
	if msg == nil {
		return errors.New("attach message: attachment carries no message node")
	}
	if err := msg.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	byID, ok := m.sys[msg.Label]
	if !ok {
		byID = make(map[string]*types.SystemNode)
		m.sys[msg.Label] = byID
	}
	if existing, ok := byID[msg.ID]; ok {
		existing.Content = msg.Content
		if existing.Properties == nil {
			existing.Properties = types.Properties{}
		}
		existing.Properties.Merge(msg.Properties)
	} else {
		byID[msg.ID] = cloneSystemNode(msg)
	}

	m.sceneMessages[att.SceneID] = append(m.sceneMessages[att.SceneID], msg.ID)
	return nil
}

func (m *MemStore) LinkMessageEntity(ctx context.Context, messageID string, entity types.NodeKey, delta types.Properties) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.messageLinks[messageID] = append(m.messageLinks[messageID], messageLink{
		entity: entity,
		delta:  delta.Clone(),
	})
	return nil
}

// MessageEntities reports which entities a message was linked to. Test
// hook; the Neo4j store answers this through graph queries instead.
func (m *MemStore) MessageEntities(messageID string) []types.NodeKey {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []types.NodeKey
	for _, link := range m.messageLinks[messageID] {
		out = append(out, link.entity)
	}
	return out
}

func (m *MemStore) SearchSystemNodes(ctx context.Context, embedding []float32, label string, opts *RecallOptions) ([]*types.SystemNode, error) {
	if len(embedding) == 0 {
		return nil, nil
	}
	if opts == nil {
		opts = &RecallOptions{Limit: 5}
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 5
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	oldest := time.Time{}
	if opts.MaxAge > 0 {
		oldest = time.Now().UTC().Add(-opts.MaxAge)
	}

	var candidates []vector.Scored[*types.SystemNode]
	for _, node := range m.sys[label] {
		if len(node.Embedding) == 0 {
			continue
		}
		if !oldest.IsZero() && node.CreateTime.Before(oldest) {
			continue
		}
		score := vector.Cosine(embedding, node.Embedding)
		if score < opts.MinScore {
			continue
		}
		candidates = append(candidates, vector.Scored[*types.SystemNode]{Item: node, Score: score})
	}

	top := vector.TopK(candidates, limit)
	out := make([]*types.SystemNode, len(top))
	for i, scored := range top {
		node := cloneSystemNode(scored.Item)
		node.Score = scored.Score
		out[i] = node
	}
	return out, nil
}

func (m *MemStore) Labels(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := map[string]bool{}
	var out []string
	for key := range m.nodes {
		if !seen[key.Label] {
			seen[key.Label] = true
			out = append(out, key.Label)
		}
	}
	for label := range m.sys {
		if len(m.sys[label]) > 0 && !seen[label] {
			seen[label] = true
			out = append(out, label)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemStore) RelationshipTypes(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := map[string]bool{}
	var out []string
	for _, rel := range m.rels {
		if !seen[rel.Type] {
			seen[rel.Type] = true
			out = append(out, rel.Type)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemStore) LabelPairTypes(ctx context.Context) (map[types.LabelPair][]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pairs := make(map[types.LabelPair][]string)
	for _, rel := range m.rels {
		pair := types.LabelPair{Start: rel.StartLabel, End: rel.EndLabel}
		if !containsStr(pairs[pair], rel.Type) {
			pairs[pair] = append(pairs[pair], rel.Type)
		}
	}
	for _, relTypes := range pairs {
		sort.Strings(relTypes)
	}
	return pairs, nil
}

func (m *MemStore) NodeNames(ctx context.Context, label string) ([]string, error) {
	if err := checkIdentifiers(label); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []string
	for key := range m.nodes {
		if key.Label == label {
			out = append(out, key.Name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemStore) AllNodes(ctx context.Context) ([]*types.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*types.Node
	for _, node := range m.nodes {
		out = append(out, cloneNode(node))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key().String() < out[j].Key().String()
	})
	return out, nil
}

func (m *MemStore) AllRelationships(ctx context.Context) ([]*types.Relationship, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*types.Relationship
	for _, rel := range m.rels {
		out = append(out, cloneRelationship(rel))
	}
	sortRelationships(out)
	return out, nil
}

func (m *MemStore) CreateIndices(ctx context.Context) error { return nil }

func (m *MemStore) Stats(ctx context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &Stats{
		NodesByLabel:        make(map[string]int64),
		RelationshipsByType: make(map[string]int64),
		CollectedAt:         time.Now().UTC(),
	}
	for key := range m.nodes {
		stats.NodesByLabel[key.Label]++
		stats.NodeCount++
	}
	for label, byID := range m.sys {
		stats.NodesByLabel[label] += int64(len(byID))
		stats.NodeCount += int64(len(byID))
	}
	for _, rel := range m.rels {
		stats.RelationshipsByType[rel.Type]++
		stats.RelationshipCount++
	}
	return stats, nil
}

func cloneNode(n *types.Node) *types.Node { return n.Clone() }

func cloneRelationship(r *types.Relationship) *types.Relationship { return r.Clone() }

func cloneSystemNode(n *types.SystemNode) *types.SystemNode {
	out := *n
	out.Embedding = append([]float32(nil), n.Embedding...)
	out.Properties = n.Properties.Clone()
	return &out
}

func sortRelationships(rels []*types.Relationship) {
	sort.Slice(rels, func(i, j int) bool {
		return relSortKey(rels[i]) < relSortKey(rels[j])
	})
}

func relSortKey(r *types.Relationship) string {
	return strings.Join([]string{r.StartLabel, r.StartNode, r.Type, r.EndLabel, r.EndNode}, "|")
}

