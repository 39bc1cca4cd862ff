// Package ensemble runs the clustering primitive M times with independent
// seeds and reduces the labelings to one consensus partition.
package ensemble

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"secuer/internal/domain"
	"secuer/internal/logging"
	"secuer/internal/secuer"
)

// MinSuccessfulRuns is the smallest number of runs a consensus is built from.
const MinSuccessfulRuns = 2

// DefaultWorkers bounds the pool when parallel execution is requested
// without a size.
const DefaultWorkers = 4

// Runner executes one clustering run.
type Runner interface {
	RunOnce(ctx context.Context, embedding [][]float64, params domain.RunParameters) (domain.LabelVector, error)
}

// Observer is told about every finished run. Calls are serialized.
type Observer func(domain.RunOutcome)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithParallel runs members on a pool of at most workers goroutines.
func WithParallel(workers int) Option {
	return func(c *Coordinator) {
		if workers <= 0 {
			workers = DefaultWorkers
		}
		c.workers = workers
	}
}

// WithObserver registers a callback for finished runs.
func WithObserver(fn Observer) Option { return func(c *Coordinator) { c.observer = fn } }

// Coordinator fans an ensemble out over a Runner and aggregates the results.
type Coordinator struct {
	runner   Runner
	log      *logging.Logger
	workers  int // 0 means sequential
	observer Observer
	mu       sync.Mutex
}

// NewCoordinator creates a coordinator. Runs execute sequentially unless
// WithParallel is given.
func NewCoordinator(runner Runner, log *logging.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{runner: runner, log: log}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run executes m runs seeded base.Seed, base.Seed+1, ..., base.Seed+m-1 and
// returns their consensus. Failed runs are excluded; fewer than
// MinSuccessfulRuns successes is ErrEnsembleExhausted. The result does not
// depend on completion order or pool size.
func (c *Coordinator) Run(ctx context.Context, embedding [][]float64, base domain.RunParameters, m int) (*domain.ConsensusResult, error) {
	if m <= 0 {
		return nil, fmt.Errorf("%w: ensemble size must be positive, got %d", domain.ErrConfiguration, m)
	}
	outcomes := make([]domain.RunOutcome, m)

	if c.workers > 0 {
		c.log.Infof("running %d clusterings on %d workers...", m, c.workers)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(c.workers)
		for i := 0; i < m; i++ {
			i := i
			g.Go(func() error {
				outcomes[i] = c.runOne(gctx, embedding, base, i)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		c.log.Infof("running %d clusterings sequentially...", m)
		for i := 0; i < m; i++ {
			outcomes[i] = c.runOne(ctx, embedding, base, i)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.aggregate(outcomes, base)
}

func (c *Coordinator) runOne(ctx context.Context, embedding [][]float64, base domain.RunParameters, i int) domain.RunOutcome {
	seed := base.Seed + int64(i)
	out := domain.RunOutcome{Index: i, Seed: seed}
	labels, err := c.runner.RunOnce(ctx, embedding, base.WithSeed(seed))
	switch {
	case err != nil:
		out.Err = err
	case len(labels) != len(embedding):
		out.Err = fmt.Errorf("%w: run returned %d labels for %d observations", domain.ErrClustering, len(labels), len(embedding))
	default:
		out.Labels = labels
		out.Clusters = labels.NumClusters()
	}
	if c.observer != nil {
		c.mu.Lock()
		c.observer(out)
		c.mu.Unlock()
	}
	return out
}

func (c *Coordinator) aggregate(outcomes []domain.RunOutcome, base domain.RunParameters) (*domain.ConsensusResult, error) {
	res := &domain.ConsensusResult{}
	var runs []domain.LabelVector
	for _, o := range outcomes {
		if o.Err != nil {
			c.log.Warnf("run %d (seed %d) failed and is excluded from the consensus: %v", o.Index+1, o.Seed, o.Err)
			res.FailedSeeds = append(res.FailedSeeds, o.Seed)
			continue
		}
		runs = append(runs, o.Labels)
		res.Seeds = append(res.Seeds, o.Seed)
		res.RunClusters = append(res.RunClusters, o.Clusters)
	}
	if len(runs) < MinSuccessfulRuns {
		return nil, fmt.Errorf("%w: %d of %d runs succeeded, need at least %d",
			domain.ErrEnsembleExhausted, len(runs), len(outcomes), MinSuccessfulRuns)
	}

	ca, err := NewCoAssociation(runs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrClustering, err)
	}
	res.TargetGroups = medianInt(res.RunClusters)
	c.log.Infof("building consensus of %d runs over %d observations into %d groups...", ca.Runs(), ca.Len(), res.TargetGroups)
	labels, err := secuer.TransferCut(ca.Graph(), res.TargetGroups, base.ClusterMethod, base.Seed)
	if err != nil {
		return nil, fmt.Errorf("%w: consensus: %v", domain.ErrClustering, err)
	}
	res.Labels = labels
	return res, nil
}

// medianInt returns the lower median.
func medianInt(vals []int) int {
	s := append([]int(nil), vals...)
	sort.Ints(s)
	return s[(len(s)-1)/2]
}
