package mnemon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mnemon-dev/mnemon/pkg/config"
	"github.com/mnemon-dev/mnemon/pkg/driver"
	"github.com/mnemon-dev/mnemon/pkg/embedder"
	"github.com/mnemon-dev/mnemon/pkg/extract"
	"github.com/mnemon-dev/mnemon/pkg/journal"
	"github.com/mnemon-dev/mnemon/pkg/logger"
	"github.com/mnemon-dev/mnemon/pkg/maintenance"
	"github.com/mnemon-dev/mnemon/pkg/memory"
	"github.com/mnemon-dev/mnemon/pkg/registry"
	"github.com/mnemon-dev/mnemon/pkg/schema"
	"github.com/mnemon-dev/mnemon/pkg/timeline"
	"github.com/mnemon-dev/mnemon/pkg/types"
)

// Engine is the memory engine facade. One Engine serves many tenants, each
// with its own graph store, schema cache, short-term window, and scene.
type Engine struct {
	cfg       *config.Config
	stores    *registry.Registry
	journal   *journal.Journal
	extractor extract.Client
	embedder  embedder.Client

	mu       sync.Mutex
	sessions map[string]*session
	inits    map[string]*sync.Mutex
}

// session is a tenant's live state.
type session struct {
	tenant  string
	store   driver.GraphStore
	schema  *schema.Cache
	manager *timeline.Manager
	window  *memory.ShortMemory

	mu      sync.Mutex
	sceneID string
}

func (s *session) scene() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sceneID
}

func (s *session) setScene(id string) {
	s.mu.Lock()
	s.sceneID = id
	s.mu.Unlock()
}

// Option customizes engine construction. Tests inject in-memory stores and
// deterministic clients through these.
type Option func(*Engine)

// WithStoreFactory overrides how per-tenant graph stores are built.
func WithStoreFactory(factory registry.Factory) Option {
	return func(e *Engine) { e.stores = registry.New(factory) }
}

// WithExtractor overrides the entity extraction client.
func WithExtractor(client extract.Client) Option {
	return func(e *Engine) { e.extractor = client }
}

// WithEmbedder overrides the embedding client.
func WithEmbedder(client embedder.Client) Option {
	return func(e *Engine) { e.embedder = client }
}

// WithJournal overrides the turn journal.
func WithJournal(j *journal.Journal) Option {
	return func(e *Engine) { e.journal = j }
}

// NewEngine builds an engine from configuration. Without options it
// connects tenants to Neo4j behind a circuit breaker and uses OpenAI for
// extraction and embedding.
func NewEngine(cfg *config.Config, opts ...Option) (*Engine, error) {
	e := &Engine{
		cfg:      cfg,
		sessions: make(map[string]*session),
		inits:    make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.embedder == nil {
		e.embedder = embedder.NewOpenAIClient(
			cfg.Embed.APIKey, cfg.Embed.BaseURL, cfg.Embed.Model, cfg.Embed.Dimensions)
	}
	if e.extractor == nil {
		e.extractor = extract.NewOpenAIClient(
			cfg.Extract.APIKey, cfg.Extract.BaseURL, cfg.Extract.Model)
	}
	if e.stores == nil {
		e.stores = registry.New(func(ctx context.Context, tenant string) (driver.GraphStore, error) {
			store, err := driver.NewNeo4jStore(
				cfg.Graph.URI, cfg.Graph.Username, cfg.Graph.Password,
				tenantDatabase(cfg.Graph.Database, tenant), e.embedder.Dimensions())
			if err != nil {
				return nil, err
			}
			return driver.NewBreakerStore(store, cfg.Breaker), nil
		})
	}
	if e.journal == nil {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return nil, err
		}
		e.journal = j
	}
	return e, nil
}

// tenantDatabase maps a tenant id onto a database name. The configured
// default database hosts the default tenant.
func tenantDatabase(base, tenant string) string {
	if tenant == "" || tenant == "default" {
		return base
	}
	return tenant
}

// Session returns the tenant's live state, creating it on first use. A new
// session gets indexes, a rehydrated short-term window from the journal,
// and an open scene. Construction runs under a per-tenant lock so a slow
// tenant never stalls lookups for the others.
func (e *Engine) session(ctx context.Context, tenant string) (*session, error) {
	if tenant == "" {
		tenant = "default"
	}

	e.mu.Lock()
	if s, ok := e.sessions[tenant]; ok {
		e.mu.Unlock()
		return s, nil
	}
	init, ok := e.inits[tenant]
	if !ok {
		init = &sync.Mutex{}
		e.inits[tenant] = init
	}
	e.mu.Unlock()

	init.Lock()
	defer init.Unlock()

	e.mu.Lock()
	if s, ok := e.sessions[tenant]; ok {
		e.mu.Unlock()
		return s, nil
	}
	e.mu.Unlock()

	s, err := e.buildSession(ctx, tenant)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.sessions[tenant] = s
	e.mu.Unlock()
	return s, nil
}

func (e *Engine) buildSession(ctx context.Context, tenant string) (*session, error) {
	store, err := e.stores.Get(ctx, tenant)
	if err != nil {
		return nil, fmt.Errorf("open tenant store: %w", err)
	}
	if err := store.CreateIndices(ctx); err != nil {
		logger.Get().Warn("create indices", zap.String("tenant", tenant), zap.Error(err))
	}

	s := &session{
		tenant: tenant,
		store:  store,
		schema: schema.New(store, time.Duration(e.cfg.Memory.SchemaTTLHours)*time.Hour),
		window: memory.New(e.cfg.Memory.Limit),
		manager: timeline.NewManager(store, e.embedder, timeline.RecallConfig{
			TopK:          e.cfg.Recall.TopK,
			MinScore:      e.cfg.Recall.MinScore,
			RecencyWindow: time.Duration(e.cfg.Recall.RecencyHours) * time.Hour,
			TraverseDepth: e.cfg.Recall.TraverseDepth,
		}),
	}

	entries, err := e.journal.Recent(tenant, e.cfg.Memory.Limit)
	if err != nil {
		logger.Get().Warn("journal rehydration failed", zap.String("tenant", tenant), zap.Error(err))
	}
	for _, entry := range entries {
		s.window.TurnOver(entry.UserInput, entry.Response, entry.Facts)
	}

	sceneID, err := s.manager.OpenScene(ctx, "session start")
	if err != nil {
		return nil, fmt.Errorf("open scene: %w", err)
	}
	s.sceneID = sceneID
	return s, nil
}

// TurnRequest carries one completed exchange into the engine.
type TurnRequest struct {
	Tenant    string
	UserInput string
	Response  string
}

// TurnResult reports what a committed turn did. StorageErr is non-nil when
// persistence failed; the turn's response was still delivered, so the
// failure is informational.
type TurnResult struct {
	UserMessageID string
	AIMessageID   string
	Facts         *types.Triplets
	Dropped       []string
	StorageErr    error
}

// CommitTurn extracts facts from the exchange and persists them along with
// the message chain, then rolls the short-term window forward. Extraction
// and storage failures never abort the turn.
func (e *Engine) CommitTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	s, err := e.session(ctx, req.Tenant)
	if err != nil {
		return nil, err
	}

	result := &TurnResult{Facts: types.NewTriplets()}

	extracted, err := e.extractor.Extract(ctx, req.UserInput,
		e.cfg.Persona.UserName, e.cfg.Persona.AIName)
	if err != nil {
		logger.Get().Warn("extraction failed, committing turn without facts",
			zap.String("tenant", s.tenant), zap.Error(err))
	} else if extracted != nil {
		facts, dropped := extracted.Triplets()
		result.Facts = facts
		result.Dropped = dropped
		for _, key := range dropped {
			logger.Get().Debug("dropped malformed relationship", zap.String("key", key))
		}
	}

	sceneID := s.scene()
	userID, err := s.manager.StoreMessage(ctx, sceneID,
		e.cfg.Persona.UserName, e.cfg.Persona.AIName, req.UserInput, result.Facts)
	if err != nil {
		result.StorageErr = err
		logger.Get().Error("turn storage failed",
			zap.String("tenant", s.tenant), zap.Error(err))
	} else {
		result.UserMessageID = userID
		aiID, err := s.manager.StoreMessage(ctx, sceneID,
			e.cfg.Persona.AIName, e.cfg.Persona.UserName, req.Response, nil)
		if err != nil {
			result.StorageErr = err
			logger.Get().Error("response storage failed",
				zap.String("tenant", s.tenant), zap.Error(err))
		} else {
			result.AIMessageID = aiID
		}
	}

	s.window.TurnOver(req.UserInput, req.Response, result.Facts)
	if err := e.journal.Append(s.tenant, req.UserInput, req.Response, result.Facts); err != nil {
		logger.Get().Warn("journal append failed", zap.String("tenant", s.tenant), zap.Error(err))
	}
	return result, nil
}

// RecallResult is the memory context assembled for the next prompt.
type RecallResult struct {
	// Activated is the short-term overlap with the query's entities.
	Activated *types.Triplets
	// Expanded is the graph neighborhood of the query's entities.
	Expanded *types.Triplets
	// Messages, Scenes, and Topics are vector-recall hits per label.
	Messages []*types.SystemNode
	Scenes   []*types.SystemNode
	Topics   []*types.SystemNode
}

// Recall assembles memory context for a new user input: extraction seeds
// short-term activation and graph expansion, while vector recall runs over
// the system labels, all concurrently.
func (e *Engine) Recall(ctx context.Context, tenant, text string) (*RecallResult, error) {
	s, err := e.session(ctx, tenant)
	if err != nil {
		return nil, err
	}

	extracted, err := e.extractor.Extract(ctx, text,
		e.cfg.Persona.UserName, e.cfg.Persona.AIName)
	if err != nil {
		logger.Get().Warn("extraction failed, recalling by similarity only",
			zap.String("tenant", s.tenant), zap.Error(err))
		extracted = &types.ExtractionResult{}
	}
	query, _ := extracted.Triplets()

	result := &RecallResult{
		Activated: s.window.Activate(query),
		Expanded:  types.NewTriplets(),
	}

	var names []string
	for _, node := range query.Nodes {
		names = append(names, node.Name)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		expanded, err := s.manager.GetNodeRelationships(gctx, names, 0)
		if err != nil {
			return err
		}
		result.Expanded = expanded
		return nil
	})
	g.Go(func() error {
		hits, err := s.manager.QuerySystemNodes(gctx, text, types.LabelMessage)
		if err != nil {
			return err
		}
		result.Messages = hits
		return nil
	})
	g.Go(func() error {
		hits, err := s.manager.QuerySystemNodes(gctx, text, types.LabelScene)
		if err != nil {
			return err
		}
		result.Scenes = hits
		return nil
	})
	g.Go(func() error {
		hits, err := s.manager.QuerySystemNodes(gctx, text, types.LabelTopic)
		if err != nil {
			return err
		}
		result.Topics = hits
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

// IntegrateNodes merges duplicate entities for a tenant. The schema cache
// is invalidated afterwards since node names changed under it.
func (e *Engine) IntegrateNodes(ctx context.Context, tenant string, a, b types.NodeKey) error {
	s, err := e.session(ctx, tenant)
	if err != nil {
		return err
	}
	if err := maintenance.NewIntegrator(s.store).IntegrateNodes(ctx, a, b); err != nil {
		return err
	}
	s.schema.Invalidate()
	return nil
}

// DeleteNode removes an entity, typically the absorbed duplicate after an
// integration has been verified.
func (e *Engine) DeleteNode(ctx context.Context, tenant string, key types.NodeKey) (bool, error) {
	s, err := e.session(ctx, tenant)
	if err != nil {
		return false, err
	}
	removed, err := s.store.DeleteNode(ctx, key.Label, key.Name)
	if err != nil {
		return false, err
	}
	if removed {
		s.schema.Invalidate()
	}
	return removed, nil
}

// StoreTopic records a conversation topic for later vector recall.
func (e *Engine) StoreTopic(ctx context.Context, tenant, content string) (string, error) {
	s, err := e.session(ctx, tenant)
	if err != nil {
		return "", err
	}
	return s.manager.StoreTopic(ctx, content)
}

// StoreDocument records a document for later vector recall. Props carry
// source metadata such as title or origin.
func (e *Engine) StoreDocument(ctx context.Context, tenant, content string, props types.Properties) (string, error) {
	s, err := e.session(ctx, tenant)
	if err != nil {
		return "", err
	}
	return s.manager.StoreDocument(ctx, content, props)
}

// CloseScene ends the tenant's current scene and opens a fresh one.
func (e *Engine) CloseScene(ctx context.Context, tenant string) error {
	s, err := e.session(ctx, tenant)
	if err != nil {
		return err
	}
	if err := s.manager.CloseScene(ctx, s.scene()); err != nil {
		return err
	}
	sceneID, err := s.manager.OpenScene(ctx, "session start")
	if err != nil {
		return err
	}
	s.setScene(sceneID)
	return nil
}

// Schema exposes the tenant's cached schema summaries.
func (e *Engine) Schema(ctx context.Context, tenant string) (*schema.Cache, error) {
	s, err := e.session(ctx, tenant)
	if err != nil {
		return nil, err
	}
	return s.schema, nil
}

// Stats reports graph counts for a tenant.
func (e *Engine) Stats(ctx context.Context, tenant string) (*driver.Stats, error) {
	s, err := e.session(ctx, tenant)
	if err != nil {
		return nil, err
	}
	return s.store.Stats(ctx)
}

// Close releases every tenant store and the journal.
func (e *Engine) Close(ctx context.Context) error {
	err := e.stores.Close(ctx)
	if jerr := e.journal.Close(); err == nil {
		err = jerr
	}
	return err
}
