// Package maintenance holds out-of-band graph consolidation operations.
// Integration merges duplicate entities discovered after the fact; it is
// never triggered by normal chat flow.
package maintenance

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mnemon-dev/mnemon/pkg/driver"
	"github.com/mnemon-dev/mnemon/pkg/logger"
	"github.com/mnemon-dev/mnemon/pkg/types"
)

// ErrNodeNotFound is returned when either integration endpoint is missing.
var ErrNodeNotFound = errors.New("integration target not found")

// ErrPartialMerge wraps a step failure after earlier steps already
// committed. Each step is idempotent, so re-invoking the integration
// resumes where it failed instead of corrupting state.
var ErrPartialMerge = errors.New("integration partially applied")

// Integrator merges duplicate entities. Earlier steps are not rolled back
// when a later step fails; the caller re-runs the whole operation.
type Integrator struct {
	store driver.GraphStore
}

// NewIntegrator builds an Integrator over store.
func NewIntegrator(store driver.GraphStore) *Integrator {
	return &Integrator{store: store}
}

// IntegrateNodes merges node b into node a in three steps: name-variation
// union, property union, relationship re-pointing. Node b itself is left in
// place; call DeleteNode after verifying the merge.
func (i *Integrator) IntegrateNodes(ctx context.Context, a, b types.NodeKey) error {
	nodeA, err := i.store.GetNode(ctx, a.Label, a.Name)
	if err != nil {
		return err
	}
	if nodeA == nil {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, a)
	}
	nodeB, err := i.store.GetNode(ctx, b.Label, b.Name)
	if err != nil {
		return err
	}
	if nodeB == nil {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, b)
	}
	if nodeA.Key() == nodeB.Key() {
		return nil
	}

	log := logger.Get().With(
		zap.String("into", a.String()),
		zap.String("from", b.String()),
	)

	// step 1: variation union, so b's surface names resolve to a
	variations := append([]string(nil), nodeA.NameVariation...)
	for _, v := range append([]string{nodeB.Name}, nodeB.NameVariation...) {
		if v != nodeA.Name && !contains(variations, v) {
			variations = append(variations, v)
		}
	}
	if err := i.store.SetNameVariations(ctx, nodeA.Key(), variations); err != nil {
		return fmt.Errorf("merge name variations: %w", err)
	}

	// step 2: property union, name keeps a's value
	incoming := nodeB.Properties.Clone()
	delete(incoming, "name")
	if len(incoming) > 0 {
		update := &types.Node{Label: nodeA.Label, Name: nodeA.Name, Properties: incoming}
		if err := i.store.CreateOrUpdateNode(ctx, update); err != nil {
			return fmt.Errorf("%w: merge properties: %v", ErrPartialMerge, err)
		}
	}

	// step 3: re-point b's edges at a
	moved, err := i.store.RepointRelationships(ctx, nodeB.Key(), nodeA.Key())
	if err != nil {
		return fmt.Errorf("%w: repoint relationships: %v", ErrPartialMerge, err)
	}

	log.Info("nodes integrated", zap.Int("relationships_moved", moved))
	return nil
}

// DeleteNode removes the absorbed duplicate once the merge has been
// verified. Reports whether a node was actually removed.
func (i *Integrator) DeleteNode(ctx context.Context, key types.NodeKey) (bool, error) {
	return i.store.DeleteNode(ctx, key.Label, key.Name)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
