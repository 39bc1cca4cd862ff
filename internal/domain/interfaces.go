package domain

import "context"

// LabelVector holds one cluster id per observation. Ids are local to the run
// that produced them and carry no meaning across runs.
type LabelVector []int

// NumClusters returns the number of distinct labels.
func (l LabelVector) NumClusters() int {
	seen := make(map[int]struct{}, 16)
	for _, v := range l {
		seen[v] = struct{}{}
	}
	return len(seen)
}

// Distance metrics understood by the clustering primitive.
const (
	DistanceEuclidean   = "euclidean"
	DistanceSqEuclidean = "sqeuclidean"
	DistanceCosine      = "cosine"
	DistanceL1          = "L1"
)

// Cluster-count estimation methods.
const (
	EstimateSubGraph = "subGraph"
	EstimateBiGraph  = "BiGraph"
)

// Bipartite graph kernels.
const (
	KernelLocalScaled = "localscaled"
	KernelGaussian    = "gaussian"
)

// Partitioning methods.
const (
	PartitionKmeans     = "Kmeans"
	PartitionAnchorVote = "AnchorVote"
)

// RunParameters is the resolved input of one clustering run. The embedding
// itself travels next to it and is shared read-only between runs.
type RunParameters struct {
	Distance      string
	Anchors       int
	KNN           int
	EskMethod     string
	EskResolution float64
	GapTh         int
	Kernel        string
	ClusterMethod string
	Seed          int64
}

// WithSeed returns a copy of p with the seed replaced.
func (p RunParameters) WithSeed(seed int64) RunParameters {
	p.Seed = seed
	return p
}

// RunOutcome reports a single ensemble member.
type RunOutcome struct {
	Index    int
	Seed     int64
	Labels   LabelVector
	Clusters int
	Err      error
}

// ConsensusResult is the reduced labeling of an ensemble.
type ConsensusResult struct {
	Labels       LabelVector
	Seeds        []int64
	FailedSeeds  []int64
	RunClusters  []int
	TargetGroups int
}

// Clusterer is the clustering primitive: given an embedding and parameters it
// returns one label per row.
type Clusterer interface {
	Cluster(ctx context.Context, embedding [][]float64, params RunParameters) (LabelVector, error)
}

// Plotter renders a 2D view of labelled observations.
type Plotter interface {
	Plot(dir, name string, coords [][]float64, edges [][2]int, labels LabelVector) error
}
