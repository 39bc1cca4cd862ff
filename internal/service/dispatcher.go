package service

import (
	"context"
	"fmt"

	"secuer/internal/domain"
)

// Dispatcher hands one fully resolved run to the clustering primitive.
type Dispatcher struct {
	clusterer domain.Clusterer
}

// NewDispatcher wraps a clustering primitive.
func NewDispatcher(c domain.Clusterer) *Dispatcher { return &Dispatcher{clusterer: c} }

// RunOnce validates params, runs the primitive once and surfaces its labels.
// Primitive failures are wrapped in ErrClustering and never retried.
func (d *Dispatcher) RunOnce(ctx context.Context, embedding [][]float64, params domain.RunParameters) (domain.LabelVector, error) {
	if err := validate(embedding, params); err != nil {
		return nil, err
	}
	labels, err := d.clusterer.Cluster(ctx, embedding, params)
	if err != nil {
		return nil, fmt.Errorf("%w: seed %d: %w", domain.ErrClustering, params.Seed, err)
	}
	if len(labels) != len(embedding) {
		return nil, fmt.Errorf("%w: seed %d: got %d labels for %d observations", domain.ErrClustering, params.Seed, len(labels), len(embedding))
	}
	return labels, nil
}

func validate(embedding [][]float64, p domain.RunParameters) error {
	switch {
	case len(embedding) == 0:
		return fmt.Errorf("%w: empty embedding", domain.ErrClustering)
	case p.Anchors <= 0:
		return fmt.Errorf("%w: p should be a positive integer, got %d", domain.ErrConfiguration, p.Anchors)
	case p.KNN <= 0:
		return fmt.Errorf("%w: knn should be a positive integer, got %d", domain.ErrConfiguration, p.KNN)
	}
	return nil
}
