package driver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/mnemon-dev/mnemon/pkg/types"
)

// Neo4jStore implements GraphStore against a Neo4j database. One store maps
// to one logical database (one tenant); the underlying connection pool is
// shared across concurrent requests, but every logical operation opens its
// own session so no transaction spans unrelated suspension points.
type Neo4jStore struct {
	client    neo4j.DriverWithContext
	database  string
	locks     *keyedMutex
	vectorDim int
}

// NewNeo4jStore connects to a Neo4j server. vectorDim sizes the vector
// indexes created by CreateIndices; pass 0 for the default of 1536.
func NewNeo4jStore(uri, username, password, database string, vectorDim int) (*Neo4jStore, error) {
	client, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if database == "" {
		database = "neo4j"
	}
	if vectorDim <= 0 {
		vectorDim = 1536
	}
	return &Neo4jStore{
		client:    client,
		database:  database,
		locks:     newKeyedMutex(64),
		vectorDim: vectorDim,
	}, nil
}

// Provider returns ProviderNeo4j.
func (s *Neo4jStore) Provider() Provider { return ProviderNeo4j }

// Close releases the connection pool.
func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

func (s *Neo4jStore) readSession(ctx context.Context) neo4j.SessionWithContext {
	return s.client.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: s.database,
		AccessMode:   neo4j.AccessModeRead,
	})
}

func (s *Neo4jStore) writeSession(ctx context.Context) neo4j.SessionWithContext {
	return s.client.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: s.database,
		AccessMode:   neo4j.AccessModeWrite,
	})
}

// storeErr wraps infrastructure failures so callers can distinguish a down
// store from a semantic error.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// GetNode finds an entity by exact name or name variation. An exact name
// match wins over a variation match, the same preference MemStore applies.
func (s *Neo4jStore) GetNode(ctx context.Context, label, name string) (*types.Node, error) {
	if types.IsSystemLabel(label) {
		return nil, fmt.Errorf("%w: %s", types.ErrSystemLabel, label)
	}
	if err := checkIdentifiers(label); err != nil {
		return nil, err
	}

	session := s.readSession(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := fmt.Sprintf(`
			MATCH (n:%s)
			WHERE n.name = $name OR $name IN coalesce(n.name_variation, [])
			RETURN n
			ORDER BY n.name = $name DESC, n.name
			LIMIT 1
		`, label)
		res, err := tx.Run(ctx, query, map[string]any{"name": name})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, storeErr(err)
	}

	records := result.([]*db.Record)
	if len(records) == 0 {
		return nil, nil
	}
	dbNode, ok := recordNode(records[0], "n")
	if !ok {
		return nil, nil
	}
	return nodeFromDBNode(label, dbNode), nil
}

// CreateOrUpdateNode performs the match-then-branch upsert under the
// entity's keyed lock so same-key callers cannot interleave the read-merge
// with the write.
func (s *Neo4jStore) CreateOrUpdateNode(ctx context.Context, node *types.Node) error {
	if node == nil {
		return types.ErrEmptyName
	}
	if err := node.Validate(); err != nil {
		return err
	}
	if err := checkIdentifiers(node.Label); err != nil {
		return err
	}

	unlock := s.locks.Lock(node.Key().String())
	defer unlock()

	session := s.writeSession(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		matchQuery := fmt.Sprintf(`
			MATCH (n:%s)
			WHERE n.name = $name OR $name IN coalesce(n.name_variation, [])
			RETURN n
			LIMIT 1
		`, node.Label)
		res, err := tx.Run(ctx, matchQuery, map[string]any{"name": node.Name})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}

		if len(records) == 0 {
			props := node.Properties.Clone()
			if props == nil {
				props = types.Properties{}
			}
			props.Merge(types.Properties{"name": {node.Name}})
			createQuery := fmt.Sprintf(`
				CREATE (n:%s)
				SET n = $props, n.name = $name, n.create_time = datetime($now)
			`, node.Label)
			_, err = tx.Run(ctx, createQuery, map[string]any{
				"name":  node.Name,
				"props": propertiesToStore(props),
				"now":   time.Now().UTC().Format(time.RFC3339),
			})
			return nil, err
		}

		dbNode, ok := recordNode(records[0], "n")
		if !ok {
			return nil, fmt.Errorf("unexpected record shape for node %s", node.Key())
		}
		existing := nodeFromDBNode(node.Label, dbNode)
		if !existing.Properties.Merge(node.Properties) {
			return nil, nil // replay, nothing to write
		}
		updateQuery := fmt.Sprintf(`
			MATCH (n:%s {name: $name})
			SET n += $props
		`, node.Label)
		_, err = tx.Run(ctx, updateQuery, map[string]any{
			"name":  existing.Name,
			"props": propertiesToStore(existing.Properties),
		})
		return nil, err
	})
	return storeErr(err)
}

// DeleteNode detach-deletes; absence is a normal (false, nil) outcome.
func (s *Neo4jStore) DeleteNode(ctx context.Context, label, name string) (bool, error) {
	if err := checkIdentifiers(label); err != nil {
		return false, err
	}

	session := s.writeSession(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := fmt.Sprintf(`
			MATCH (n:%s {name: $name})
			DETACH DELETE n
			RETURN count(*) AS removed
		`, label)
		res, err := tx.Run(ctx, query, map[string]any{"name": name})
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		removed, _ := record.Get("removed")
		return removed, nil
	})
	if err != nil {
		return false, storeErr(err)
	}
	removed, _ := result.(int64)
	return removed > 0, nil
}

// CreateOrUpdateRelationship merges the edge in one transaction: MERGE
// guarantees a single edge per full key even under concurrent callers, and
// the property union happens against the row MERGE returned.
func (s *Neo4jStore) CreateOrUpdateRelationship(ctx context.Context, rel *types.Relationship) error {
	if rel == nil {
		return types.ErrEmptyType
	}
	if err := rel.Validate(); err != nil {
		return err
	}
	if err := checkIdentifiers(rel.Type, rel.StartLabel, rel.EndLabel); err != nil {
		return err
	}

	session := s.writeSession(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		mergeQuery := fmt.Sprintf(`
			MERGE (s:%s {name: $start})
			ON CREATE SET s.create_time = datetime($now)
			MERGE (e:%s {name: $end})
			ON CREATE SET e.create_time = datetime($now)
			MERGE (s)-[r:%s]->(e)
			RETURN properties(r) AS props
		`, rel.StartLabel, rel.EndLabel, rel.Type)
		res, err := tx.Run(ctx, mergeQuery, map[string]any{
			"start": rel.StartNode,
			"end":   rel.EndNode,
			"now":   time.Now().UTC().Format(time.RFC3339),
		})
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}

		if len(rel.Properties) == 0 {
			return nil, nil
		}

		existing := types.Properties{}
		if raw, ok := record.Get("props"); ok {
			if propMap, ok := raw.(map[string]any); ok {
				existing = propertiesFromStore(propMap)
			}
		}
		if !existing.Merge(rel.Properties) {
			return nil, nil
		}
		setQuery := fmt.Sprintf(`
			MATCH (s:%s {name: $start})-[r:%s]->(e:%s {name: $end})
			SET r += $props
		`, rel.StartLabel, rel.Type, rel.EndLabel)
		_, err = tx.Run(ctx, setQuery, map[string]any{
			"start": rel.StartNode,
			"end":   rel.EndNode,
			"props": propertiesToStore(existing),
		})
		return nil, err
	})
	return storeErr(err)
}

// DeleteRelationship removes the edge matching the full key.
func (s *Neo4jStore) DeleteRelationship(ctx context.Context, rel *types.Relationship) (int, error) {
	if err := rel.Validate(); err != nil {
		return 0, err
	}
	if err := checkIdentifiers(rel.Type, rel.StartLabel, rel.EndLabel); err != nil {
		return 0, err
	}

	session := s.writeSession(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := fmt.Sprintf(`
			MATCH (s:%s {name: $start})-[r:%s]->(e:%s {name: $end})
			DELETE r
			RETURN count(*) AS removed
		`, rel.StartLabel, rel.Type, rel.EndLabel)
		res, err := tx.Run(ctx, query, map[string]any{
			"start": rel.StartNode,
			"end":   rel.EndNode,
		})
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		removed, _ := record.Get("removed")
		return removed, nil
	})
	if err != nil {
		return 0, storeErr(err)
	}
	removed, _ := result.(int64)
	return int(removed), nil
}

// GetRelationship fetches one edge by its full key.
func (s *Neo4jStore) GetRelationship(ctx context.Context, key types.RelationshipKey) (*types.Relationship, error) {
	if err := checkIdentifiers(key.Type, key.StartLabel, key.EndLabel); err != nil {
		return nil, err
	}
	rels, err := s.queryRelationships(ctx, fmt.Sprintf(`
		MATCH (s:%s {name: $start})-[r:%s]->(e:%s {name: $end})
		RETURN type(r) AS type, s.name AS start, e.name AS end,
		       labels(s)[0] AS start_label, labels(e)[0] AS end_label,
		       properties(r) AS props
		LIMIT 1
	`, key.StartLabel, key.Type, key.EndLabel), map[string]any{
		"start": key.StartNode,
		"end":   key.EndNode,
	})
	if err != nil || len(rels) == 0 {
		return nil, err
	}
	return rels[0], nil
}

// GetRelationshipsBetween lists directed edges from start to end.
func (s *Neo4jStore) GetRelationshipsBetween(ctx context.Context, start, end types.NodeKey) ([]*types.Relationship, error) {
	if err := checkIdentifiers(start.Label, end.Label); err != nil {
		return nil, err
	}
	return s.queryRelationships(ctx, fmt.Sprintf(`
		MATCH (s:%s {name: $start})-[r]->(e:%s {name: $end})
		RETURN type(r) AS type, s.name AS start, e.name AS end,
		       labels(s)[0] AS start_label, labels(e)[0] AS end_label,
		       properties(r) AS props
	`, start.Label, end.Label), map[string]any{
		"start": start.Name,
		"end":   end.Name,
	})
}

// GetRelationshipsByType lists edges of one type incident to the node,
// in either direction.
func (s *Neo4jStore) GetRelationshipsByType(ctx context.Context, node types.NodeKey, relType string) ([]*types.Relationship, error) {
	if err := checkIdentifiers(node.Label, relType); err != nil {
		return nil, err
	}
	return s.queryRelationships(ctx, fmt.Sprintf(`
		MATCH (s)-[r:%s]->(e)
		WHERE (s:%s AND s.name = $name) OR (e:%s AND e.name = $name)
		RETURN type(r) AS type, s.name AS start, e.name AS end,
		       labels(s)[0] AS start_label, labels(e)[0] AS end_label,
		       properties(r) AS props
	`, relType, node.Label, node.Label), map[string]any{"name": node.Name})
}

// GetOutgoingRelationships lists every edge originating at the node.
func (s *Neo4jStore) GetOutgoingRelationships(ctx context.Context, node types.NodeKey) ([]*types.Relationship, error) {
	if err := checkIdentifiers(node.Label); err != nil {
		return nil, err
	}
	return s.queryRelationships(ctx, fmt.Sprintf(`
		MATCH (s:%s {name: $name})-[r]->(e)
		RETURN type(r) AS type, s.name AS start, e.name AS end,
		       labels(s)[0] AS start_label, labels(e)[0] AS end_label,
		       properties(r) AS props
	`, node.Label), map[string]any{"name": node.Name})
}

// SetNameVariations replaces the node's variation list.
func (s *Neo4jStore) SetNameVariations(ctx context.Context, node types.NodeKey, variations []string) error {
	if err := checkIdentifiers(node.Label); err != nil {
		return err
	}

	session := s.writeSession(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := fmt.Sprintf(`
			MATCH (n:%s {name: $name})
			SET n.name_variation = $variations
		`, node.Label)
		_, err := tx.Run(ctx, query, map[string]any{
			"name":       node.Name,
			"variations": variations,
		})
		return nil, err
	})
	return storeErr(err)
}

// RepointRelationships rewrites every edge incident to from so it attaches
// to to instead. Edge types are dynamic per row, which the query language
// cannot express, so the edges are fetched and replayed one at a time; the
// operation is idempotent and safe to re-run after a partial failure.
func (s *Neo4jStore) RepointRelationships(ctx context.Context, from, to types.NodeKey) (int, error) {
	if err := checkIdentifiers(from.Label, to.Label); err != nil {
		return 0, err
	}

	outgoing, err := s.GetOutgoingRelationships(ctx, from)
	if err != nil {
		return 0, err
	}
	incoming, err := s.queryRelationships(ctx, fmt.Sprintf(`
		MATCH (s)-[r]->(e:%s {name: $name})
		RETURN type(r) AS type, s.name AS start, e.name AS end,
		       labels(s)[0] AS start_label, labels(e)[0] AS end_label,
		       properties(r) AS props
	`, from.Label), map[string]any{"name": from.Name})
	if err != nil {
		return 0, err
	}

	moved := 0
	for _, rel := range outgoing {
		replacement := *rel
		replacement.StartNode = to.Name
		replacement.StartLabel = to.Label
		if replacement.StartNode == replacement.EndNode && replacement.StartLabel == replacement.EndLabel {
			continue // edge between the two merge candidates collapses
		}
		if err := s.CreateOrUpdateRelationship(ctx, &replacement); err != nil {
			return moved, err
		}
		if _, err := s.DeleteRelationship(ctx, rel); err != nil {
			return moved, err
		}
		moved++
	}
	for _, rel := range incoming {
		replacement := *rel
		replacement.EndNode = to.Name
		replacement.EndLabel = to.Label
		if replacement.StartNode == replacement.EndNode && replacement.StartLabel == replacement.EndLabel {
			continue
		}
		if err := s.CreateOrUpdateRelationship(ctx, &replacement); err != nil {
			return moved, err
		}
		if _, err := s.DeleteRelationship(ctx, rel); err != nil {
			return moved, err
		}
		moved++
	}
	return moved, nil
}

// ExpandFromNames walks the semantic graph breadth-first from the seeds,
// never crossing a Message or Scene node.
func (s *Neo4jStore) ExpandFromNames(ctx context.Context, names []string, depth int) (*types.Triplets, error) {
	out := types.NewTriplets()
	if len(names) == 0 {
		return out, nil
	}
	if depth < 1 {
		depth = 1
	}

	session := s.readSession(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := fmt.Sprintf(`
			MATCH (seed)
			WHERE NOT seed:Message AND NOT seed:Scene
			  AND (seed.name IN $names
			       OR any(v IN coalesce(seed.name_variation, []) WHERE v IN $names))
			MATCH p = (seed)-[*1..%d]-(other)
			WHERE none(x IN nodes(p) WHERE x:Message OR x:Scene)
			UNWIND relationships(p) AS rel
			WITH DISTINCT rel, startNode(rel) AS sn, endNode(rel) AS en
			RETURN type(rel) AS type, sn, en, properties(rel) AS props
		`, depth)
		res, err := tx.Run(ctx, query, map[string]any{"names": names})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, storeErr(err)
	}

	for _, record := range result.([]*db.Record) {
		sn, okS := recordNode(record, "sn")
		en, okE := recordNode(record, "en")
		if !okS || !okE {
			continue
		}
		relType, _ := recordString(record, "type")
		start := nodeFromDBNode(firstLabel(sn), sn)
		end := nodeFromDBNode(firstLabel(en), en)
		out.AddNode(start)
		out.AddNode(end)

		rel := &types.Relationship{
			Type:       relType,
			StartNode:  start.Name,
			EndNode:    end.Name,
			StartLabel: start.Label,
			EndLabel:   end.Label,
		}
		if raw, ok := record.Get("props"); ok {
			if propMap, ok := raw.(map[string]any); ok {
				rel.Properties = propertiesFromStore(propMap)
			}
		}
		out.AddRelationship(rel)
	}
	return out, nil
}

// CreateSystemNode persists a structural node, idempotent on (label, id).
func (s *Neo4jStore) CreateSystemNode(ctx context.Context, node *types.SystemNode) error {
	if err := node.Validate(); err != nil {
		return err
	}

	session := s.writeSession(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := fmt.Sprintf(`
			MERGE (n:%s {id: $id})
			ON CREATE SET n.create_time = datetime($create_time)
			SET n.content = $content
		`, node.Label)
		params := map[string]any{
			"id":          node.ID,
			"content":     node.Content,
			"create_time": node.CreateTime.UTC().Format(time.RFC3339),
		}
		if len(node.Embedding) > 0 {
			query += "\nSET n.embedding = $embedding"
			params["embedding"] = floatsToStore(node.Embedding)
		}
		if len(node.Properties) > 0 {
			query += "\nSET n += $props"
			params["props"] = propertiesToStore(node.Properties)
		}
		_, err := tx.Run(ctx, query, params)
		return nil, err
	})
	return storeErr(err)
}

// GetSystemNode fetches a structural node by id, nil on miss.
func (s *Neo4jStore) GetSystemNode(ctx context.Context, label, id string) (*types.SystemNode, error) {
	if !types.IsSystemLabel(label) {
		return nil, fmt.Errorf("%w: %q is not a system label", types.ErrEmptyLabel, label)
	}

	session := s.readSession(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := fmt.Sprintf(`MATCH (n:%s {id: $id}) RETURN n LIMIT 1`, label)
		res, err := tx.Run(ctx, query, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, storeErr(err)
	}

	records := result.([]*db.Record)
	if len(records) == 0 {
		return nil, nil
	}
	dbNode, ok := recordNode(records[0], "n")
	if !ok {
		return nil, nil
	}
	return systemNodeFromDBNode(label, dbNode), nil
}

// LatestMessageID finds the scene's open latest message.
func (s *Neo4jStore) LatestMessageID(ctx context.Context, sceneID string) (string, error) {
	session := s.readSession(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (s:Scene {id: $scene})-[:CONTAIN]->(m:Message)
			WHERE NOT (m)-[:RESPOND]->(:Message)
			RETURN m.id AS id
			ORDER BY m.create_time DESC
			LIMIT 1
		`
		res, err := tx.Run(ctx, query, map[string]any{"scene": sceneID})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return "", storeErr(err)
	}

	records := result.([]*db.Record)
	if len(records) == 0 {
		return "", nil
	}
	id, _ := recordString(records[0], "id")
	return id, nil
}

// AttachMessage creates the message node and links it into its scene in
// one transaction. A cancelled turn therefore never leaves a message
// without its CONTAIN and SPEAKER/LISTENER edges.
func (s *Neo4jStore) AttachMessage(ctx context.Context, att MessageAttachment) error {
	msg := att.Message
	if msg == nil {
		return errors.New("attach message: attachment carries no message node")
	}
	if err := msg.Validate(); err != nil {
		return err
	}

	session := s.writeSession(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := fmt.Sprintf(`
			MATCH (s:Scene {id: $scene})
			MERGE (m:%s {id: $message})
			ON CREATE SET m.create_time = datetime($create_time)
			SET m.content = $content
			MERGE (s)-[:CONTAIN]->(m)
			MERGE (spk:Person {name: $speaker})
			ON CREATE SET spk.create_time = datetime($now)
			MERGE (spk)-[:SPEAKER]->(m)
			MERGE (lst:Person {name: $listener})
			ON CREATE SET lst.create_time = datetime($now)
			MERGE (lst)-[:LISTENER]->(m)
		`, msg.Label)
		params := map[string]any{
			"scene":       att.SceneID,
			"message":     msg.ID,
			"content":     msg.Content,
			"create_time": msg.CreateTime.UTC().Format(time.RFC3339),
			"speaker":     att.Speaker,
			"listener":    att.Listener,
			"now":         time.Now().UTC().Format(time.RFC3339),
		}
		if len(msg.Embedding) > 0 {
			query += "\nSET m.embedding = $embedding"
			params["embedding"] = floatsToStore(msg.Embedding)
		}
		if len(msg.Properties) > 0 {
			query += "\nSET m += $props"
			params["props"] = propertiesToStore(msg.Properties)
		}
		if _, err := tx.Run(ctx, query, params); err != nil {
			return nil, err
		}

		if att.FormerID != "" {
			chain := `
				MATCH (f:Message {id: $former})
				MATCH (m:Message {id: $message})
				MERGE (f)-[:RESPOND]->(m)
			`
			if _, err := tx.Run(ctx, chain, map[string]any{
				"former":  att.FormerID,
				"message": msg.ID,
			}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return storeErr(err)
}

// LinkMessageEntity creates the CONTAIN edge carrying the turn's delta.
func (s *Neo4jStore) LinkMessageEntity(ctx context.Context, messageID string, entity types.NodeKey, delta types.Properties) error {
	if err := checkIdentifiers(entity.Label); err != nil {
		return err
	}

	session := s.writeSession(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := fmt.Sprintf(`
			MATCH (m:Message {id: $message})
			MATCH (n:%s {name: $name})
			MERGE (m)-[c:CONTAIN]->(n)
		`, entity.Label)
		params := map[string]any{
			"message": messageID,
			"name":    entity.Name,
		}
		if len(delta) > 0 {
			query += "\nSET c += $delta"
			params["delta"] = propertiesToStore(delta)
		}
		_, err := tx.Run(ctx, query, params)
		return nil, err
	})
	return storeErr(err)
}

// SearchSystemNodes queries the label's vector index, then applies the
// score floor and recency window.
func (s *Neo4jStore) SearchSystemNodes(ctx context.Context, embedding []float32, label string, opts *RecallOptions) ([]*types.SystemNode, error) {
	if !types.IsSystemLabel(label) {
		return nil, fmt.Errorf("%w: %q is not a system label", types.ErrEmptyLabel, label)
	}
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

	session := s.readSession(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := fmt.Sprintf(`
			CALL db.index.vector.queryNodes($index, $k, $embedding)
			YIELD node, score
			WHERE node:%s AND score >= $min_score
			RETURN node, score
			ORDER BY score DESC
		`, label)
		res, err := tx.Run(ctx, query, map[string]any{
			"index":     vectorIndexName(label),
			"k":         limit * 4, // over-fetch, the recency filter trims below
			"embedding": floatsToStore(embedding),
			"min_score": opts.MinScore,
		})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, storeErr(err)
	}

	oldest := time.Time{}
	if opts.MaxAge > 0 {
		oldest = time.Now().UTC().Add(-opts.MaxAge)
	}

	var out []*types.SystemNode
	for _, record := range result.([]*db.Record) {
		dbNode, ok := recordNode(record, "node")
		if !ok {
			continue
		}
		node := systemNodeFromDBNode(label, dbNode)
		if !oldest.IsZero() && node.CreateTime.Before(oldest) {
			continue
		}
		if score, ok := record.Get("score"); ok {
			if f, ok := score.(float64); ok {
				node.Score = f
			}
		}
		out = append(out, node)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// Labels lists every label known to the store.
func (s *Neo4jStore) Labels(ctx context.Context) ([]string, error) {
	return s.queryStrings(ctx, `CALL db.labels() YIELD label RETURN label`, "label")
}

// RelationshipTypes lists every relationship type known to the store.
func (s *Neo4jStore) RelationshipTypes(ctx context.Context) ([]string, error) {
	return s.queryStrings(ctx, `CALL db.relationshipTypes() YIELD relationshipType RETURN relationshipType`, "relationshipType")
}

// LabelPairTypes maps observed label pairs to their relationship types.
func (s *Neo4jStore) LabelPairTypes(ctx context.Context) (map[types.LabelPair][]string, error) {
	session := s.readSession(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (a)-[r]->(b)
			WITH DISTINCT labels(a)[0] AS start_label, type(r) AS rel_type, labels(b)[0] AS end_label
			RETURN start_label, rel_type, end_label
		`
		res, err := tx.Run(ctx, query, nil)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, storeErr(err)
	}

	pairs := make(map[types.LabelPair][]string)
	for _, record := range result.([]*db.Record) {
		start, _ := recordString(record, "start_label")
		end, _ := recordString(record, "end_label")
		relType, _ := recordString(record, "rel_type")
		if start == "" || end == "" || relType == "" {
			continue
		}
		pair := types.LabelPair{Start: start, End: end}
		if !containsStr(pairs[pair], relType) {
			pairs[pair] = append(pairs[pair], relType)
		}
	}
	return pairs, nil
}

// NodeNames lists names of nodes carrying the label.
func (s *Neo4jStore) NodeNames(ctx context.Context, label string) ([]string, error) {
	if err := checkIdentifiers(label); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`MATCH (n:%s) WHERE n.name IS NOT NULL RETURN n.name AS name`, label)
	return s.queryStrings(ctx, query, "name")
}

// AllNodes snapshots every semantic node; system labels are structural and
// excluded.
func (s *Neo4jStore) AllNodes(ctx context.Context) ([]*types.Node, error) {
	session := s.readSession(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (n)
			WHERE ` + systemLabelExclusion("n") + `
			RETURN n
		`
		res, err := tx.Run(ctx, query, nil)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, storeErr(err)
	}

	var out []*types.Node
	for _, record := range result.([]*db.Record) {
		if dbNode, ok := recordNode(record, "n"); ok {
			out = append(out, nodeFromDBNode(firstLabel(dbNode), dbNode))
		}
	}
	return out, nil
}

// AllRelationships snapshots every semantic edge.
func (s *Neo4jStore) AllRelationships(ctx context.Context) ([]*types.Relationship, error) {
	return s.queryRelationships(ctx, `
		MATCH (s)-[r]->(e)
		WHERE `+systemLabelExclusion("s")+`
		  AND `+systemLabelExclusion("e")+`
		RETURN type(r) AS type, s.name AS start, e.name AS end,
		       labels(s)[0] AS start_label, labels(e)[0] AS end_label,
		       properties(r) AS props
	`, nil)
}

// CreateIndices creates the range, text, and vector indexes the engine
// relies on. Safe to call repeatedly.
func (s *Neo4jStore) CreateIndices(ctx context.Context) error {
	session := s.writeSession(ctx)
	defer session.Close(ctx)

	statements := []string{
		"CREATE INDEX person_name IF NOT EXISTS FOR (n:Person) ON (n.name)",
		"CREATE INDEX person_name_variation IF NOT EXISTS FOR (n:Person) ON (n.name_variation)",
	}
	for _, label := range types.SystemLabels {
		statements = append(statements,
			fmt.Sprintf("CREATE INDEX %s_id IF NOT EXISTS FOR (n:%s) ON (n.id)", strings.ToLower(label), label),
			fmt.Sprintf("CREATE INDEX %s_create_time IF NOT EXISTS FOR (n:%s) ON (n.create_time)", strings.ToLower(label), label),
			fmt.Sprintf(`CREATE VECTOR INDEX %s IF NOT EXISTS FOR (n:%s) ON (n.embedding)
				OPTIONS {indexConfig: {`+"`vector.dimensions`"+`: %d, `+"`vector.similarity_function`"+`: 'cosine'}}`,
				vectorIndexName(label), label, s.vectorDim),
		)
	}

	for _, stmt := range statements {
		if _, err := session.Run(ctx, stmt, nil); err != nil {
			return storeErr(err)
		}
	}
	return nil
}

// Stats counts nodes and relationships by label and type.
func (s *Neo4jStore) Stats(ctx context.Context) (*Stats, error) {
	session := s.readSession(ctx)
	defer session.Close(ctx)

	stats := &Stats{
		NodesByLabel:        make(map[string]int64),
		RelationshipsByType: make(map[string]int64),
		CollectedAt:         time.Now().UTC(),
	}

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH (n) RETURN labels(n)[0] AS label, count(*) AS count`, nil)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, storeErr(err)
	}
	for _, record := range result.([]*db.Record) {
		label, _ := recordString(record, "label")
		if count, ok := record.Get("count"); ok {
			if c, ok := count.(int64); ok {
				stats.NodesByLabel[label] = c
				stats.NodeCount += c
			}
		}
	}

	result, err = session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH ()-[r]->() RETURN type(r) AS type, count(*) AS count`, nil)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, storeErr(err)
	}
	for _, record := range result.([]*db.Record) {
		relType, _ := recordString(record, "type")
		if count, ok := record.Get("count"); ok {
			if c, ok := count.(int64); ok {
				stats.RelationshipsByType[relType] = c
				stats.RelationshipCount += c
			}
		}
	}
	return stats, nil
}

// queryRelationships runs a query whose RETURN clause follows the shared
// (type, start, end, start_label, end_label, props) shape.
func (s *Neo4jStore) queryRelationships(ctx context.Context, query string, params map[string]any) ([]*types.Relationship, error) {
	session := s.readSession(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, storeErr(err)
	}

	var out []*types.Relationship
	for _, record := range result.([]*db.Record) {
		rel := &types.Relationship{}
		rel.Type, _ = recordString(record, "type")
		rel.StartNode, _ = recordString(record, "start")
		rel.EndNode, _ = recordString(record, "end")
		rel.StartLabel, _ = recordString(record, "start_label")
		rel.EndLabel, _ = recordString(record, "end_label")
		if raw, ok := record.Get("props"); ok {
			if propMap, ok := raw.(map[string]any); ok {
				rel.Properties = propertiesFromStore(propMap)
			}
		}
		if rel.Type == "" || rel.StartNode == "" || rel.EndNode == "" {
			continue
		}
		out = append(out, rel)
	}
	return out, nil
}

func (s *Neo4jStore) queryStrings(ctx context.Context, query, column string) ([]string, error) {
	session := s.readSession(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, nil)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, storeErr(err)
	}

	var out []string
	for _, record := range result.([]*db.Record) {
		if v, ok := recordString(record, column); ok && v != "" {
			out = append(out, v)
		}
	}
	return out, nil
}

func vectorIndexName(label string) string {
	return strings.ToLower(label) + "_embedding"
}

func systemLabelExclusion(variable string) string {
	parts := make([]string, len(types.SystemLabels))
	for i, label := range types.SystemLabels {
		parts[i] = fmt.Sprintf("NOT %s:%s", variable, label)
	}
	return strings.Join(parts, " AND ")
}

func firstLabel(node dbtype.Node) string {
	if len(node.Labels) > 0 {
		return node.Labels[0]
	}
	return ""
}

func containsStr(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
