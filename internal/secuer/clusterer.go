// Package secuer is the anchor-based spectral clustering primitive: anchors
// are picked from the observations, a bipartite kNN graph links observations
// to anchors, the number of clusters is estimated on the anchor graph and the
// observations are partitioned with a transfer cut.
package secuer

import (
	"context"
	"fmt"
	"math/rand"

	"secuer/internal/domain"
	"secuer/internal/linalg"
)

const (
	// anchorSampleFactor bounds the subsample anchors are refined on.
	anchorSampleFactor = 10
	anchorKMeansIter   = 10
)

// Clusterer implements domain.Clusterer. It holds no state between calls and
// is safe for concurrent use.
type Clusterer struct{}

// New returns the clustering primitive.
func New() *Clusterer { return &Clusterer{} }

var _ domain.Clusterer = (*Clusterer)(nil)

// Cluster labels every row of embedding. The result depends only on the
// embedding and params, the seed included.
func (c *Clusterer) Cluster(ctx context.Context, embedding [][]float64, params domain.RunParameters) (domain.LabelVector, error) {
	n := len(embedding)
	if n == 0 {
		return nil, fmt.Errorf("secuer: empty embedding")
	}
	if len(embedding[0]) == 0 {
		return nil, fmt.Errorf("secuer: embedding has no columns")
	}
	if params.Anchors <= 0 || params.KNN <= 0 {
		return nil, fmt.Errorf("secuer: anchors and knn must be positive, got p=%d knn=%d", params.Anchors, params.KNN)
	}

	anchors, err := SelectAnchors(embedding, params.Anchors, params.Seed)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g, err := BuildAnchorGraph(embedding, anchors, params.KNN, params.Distance, params.Kernel)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k, err := EstimateK(g, params.EskMethod, params.EskResolution, params.GapTh, params.Seed)
	if err != nil {
		return nil, err
	}
	if k > len(anchors) {
		k = len(anchors)
	}
	if k < 1 {
		k = 1
	}
	return TransferCut(g, k, params.ClusterMethod, params.Seed)
}

// SelectAnchors picks p representatives: a seeded random subsample of at most
// anchorSampleFactor*p observations is reduced to p k-means centers. With
// p >= n every observation is an anchor.
func SelectAnchors(points [][]float64, p int, seed int64) ([][]float64, error) {
	n := len(points)
	if p >= n {
		out := make([][]float64, n)
		for i, pt := range points {
			out[i] = append([]float64(nil), pt...)
		}
		return out, nil
	}
	rng := rand.New(rand.NewSource(seed))
	size := anchorSampleFactor * p
	if size > n {
		size = n
	}
	perm := rng.Perm(n)[:size]
	sample := make([][]float64, size)
	for i, idx := range perm {
		sample[i] = points[idx]
	}
	res, err := linalg.KMeans(sample, p, seed, anchorKMeansIter)
	if err != nil {
		return nil, fmt.Errorf("secuer: select anchors: %w", err)
	}
	return res.Centers, nil
}
