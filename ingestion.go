package mnemon

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mnemon-dev/mnemon/pkg/logger"
	"github.com/mnemon-dev/mnemon/pkg/types"
)

// defaultLabel types entities whose label the extractor omitted and the
// schema could not supply.
const defaultLabel = "Entity"

// FactResult is the per-fact outcome of ingestion.
type FactResult struct {
	Fact types.Fact `json:"fact"`
	// RelationType is the resolved type, empty when neither the extractor
	// nor the label-pair table could supply one.
	RelationType string `json:"relation_type,omitempty"`
	// SelfRelated marks facts whose subject and object name the same
	// entity; no object node or edge is written for them.
	SelfRelated bool `json:"self_related,omitempty"`
	// Graph is the response neighborhood assembled around the fact.
	Graph *types.Triplets `json:"graph"`
}

// IngestReport summarizes one batch of facts.
type IngestReport struct {
	Results []*FactResult `json:"results"`
	// Unresolved lists facts kept with a null relation type for caller
	// inspection rather than dropped.
	Unresolved []*FactResult `json:"unresolved,omitempty"`
	// Graph is the union of every per-fact response graph.
	Graph *types.Triplets `json:"graph"`
}

// IngestFacts runs the triplet pipeline for a batch of subject-predicate-
// object facts. Facts fan out concurrently; malformed facts are dropped
// individually and a store failure aborts the batch.
func (e *Engine) IngestFacts(ctx context.Context, tenant string, facts []types.Fact) (*IngestReport, error) {
	s, err := e.session(ctx, tenant)
	if err != nil {
		return nil, err
	}

	report := &IngestReport{Graph: types.NewTriplets()}
	results := make([]*FactResult, len(facts))

	g, gctx := errgroup.WithContext(ctx)
	for i, fact := range facts {
		g.Go(func() error {
			if err := fact.Validate(); err != nil {
				logger.Get().Debug("dropping malformed fact", zap.Error(err))
				return nil
			}
			result, err := e.ingestFact(gctx, s, fact)
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, result := range results {
		if result == nil {
			continue
		}
		report.Results = append(report.Results, result)
		report.Graph.Union(result.Graph)
		if result.RelationType == "" && !result.SelfRelated {
			report.Unresolved = append(report.Unresolved, result)
		}
	}
	return report, nil
}

// ingestFact handles one fact: label resolution, upserts, and the
// fan-out/gather reads that assemble its response graph.
func (e *Engine) ingestFact(ctx context.Context, s *session, fact types.Fact) (*FactResult, error) {
	result := &FactResult{
		Fact:        fact,
		SelfRelated: fact.SelfRelated(),
		Graph:       types.NewTriplets(),
	}

	subjectLabel := e.resolveLabel(ctx, s, fact.SubjectLabel(), fact.SubjectName())
	subject := types.NodeKey{Label: subjectLabel, Name: fact.SubjectName()}

	var object types.NodeKey
	if !result.SelfRelated {
		objectLabel := e.resolveLabel(ctx, s, fact.ObjectLabel(), fact.ObjectName())
		object = types.NodeKey{Label: objectLabel, Name: fact.ObjectName()}
		result.RelationType = e.resolveRelationType(ctx, s, fact, subject.Label, object.Label)
	}

	// writes: subject and object concurrently, the edge after both exist
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.store.CreateOrUpdateNode(gctx, &types.Node{Label: subject.Label, Name: subject.Name})
	})
	if !result.SelfRelated {
		g.Go(func() error {
			return s.store.CreateOrUpdateNode(gctx, &types.Node{Label: object.Label, Name: object.Name})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var edge *types.Relationship
	if result.RelationType != "" {
		edge = &types.Relationship{
			Type:       result.RelationType,
			StartNode:  subject.Name,
			EndNode:    object.Name,
			StartLabel: subject.Label,
			EndLabel:   object.Label,
		}
		if fact.Time != "" {
			edge.Properties = types.Properties{"time": {fact.Time}}
		}
		if err := s.store.CreateOrUpdateRelationship(ctx, edge); err != nil {
			return nil, err
		}
	}

	// gather: every read lands in the response graph
	var mu sync.Mutex
	add := func(nodes []*types.Node, rels []*types.Relationship) {
		mu.Lock()
		defer mu.Unlock()
		for _, n := range nodes {
			result.Graph.AddNode(n)
		}
		for _, r := range rels {
			result.Graph.AddRelationship(r)
		}
	}

	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		node, err := s.store.GetNode(gctx, subject.Label, subject.Name)
		if err != nil {
			return err
		}
		add([]*types.Node{node}, nil)
		return nil
	})
	if !result.SelfRelated {
		g.Go(func() error {
			node, err := s.store.GetNode(gctx, object.Label, object.Name)
			if err != nil {
				return err
			}
			add([]*types.Node{node}, nil)
			return nil
		})
		g.Go(func() error {
			rels, err := s.store.GetRelationshipsBetween(gctx, subject, object)
			if err != nil {
				return err
			}
			add(nil, rels)
			return nil
		})
	}
	if result.RelationType != "" {
		g.Go(func() error {
			rels, err := s.store.GetRelationshipsByType(gctx, subject, result.RelationType)
			if err != nil {
				return err
			}
			add(nil, rels)
			return nil
		})
	}
	g.Go(func() error {
		rels, err := s.store.GetOutgoingRelationships(gctx, subject)
		if err != nil {
			return err
		}
		add(nil, rels)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

// resolveLabel prefers the extractor's label, falls back to the schema's
// knowledge of the name, then to the default label.
func (e *Engine) resolveLabel(ctx context.Context, s *session, supplied, name string) string {
	if supplied != "" && !types.IsSystemLabel(supplied) {
		return supplied
	}
	known, err := s.schema.LabelForName(ctx, name)
	if err != nil {
		logger.Get().Warn("label resolution failed", zap.String("name", name), zap.Error(err))
	}
	if known != "" {
		return known
	}
	return defaultLabel
}

// resolveRelationType prefers the extractor's type; otherwise consults the
// label-pair table and commits only when the pair maps to exactly one type.
// Ambiguity or absence leaves the type empty for the caller to inspect.
func (e *Engine) resolveRelationType(ctx context.Context, s *session, fact types.Fact, startLabel, endLabel string) string {
	if t := fact.RelationType(); t != "" {
		return t
	}
	pairs, err := s.schema.LabelPairTypes(ctx)
	if err != nil {
		logger.Get().Warn("relation type resolution failed", zap.Error(err))
		return ""
	}
	candidates := pairs[types.LabelPair{Start: startLabel, End: endLabel}]
	if len(candidates) == 1 {
		return candidates[0]
	}
	return ""
}
