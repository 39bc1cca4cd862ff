package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"secuer/internal/domain"
)

// Stage names of the options document.
const (
	StageGene   = "gene"
	StageCell   = "cell"
	StageNorm   = "norm"
	StageHVG    = "hvg"
	StagePCA    = "pca"
	StageSecuer = "secuer"
)

// Option keys of the secuer stage. The same names are used for command-line
// overrides.
const (
	KeyAnchors       = "p"
	KeyKNN           = "knn"
	KeySeed          = "seed"
	KeyDistance      = "distance"
	KeyEskMethod     = "eskMethod"
	KeyEskResolution = "eskResolution"
	KeyGapTh         = "gapth"
	KeyKernel        = "kernel"
	KeyClusterMethod = "clusterMethod"
	KeyTimes         = "M"
	KeyParallel      = "multiProcessState"
	KeyWorkers       = "num_multiProcesses"
)

// DefaultDocument is written by `secuer init` and mirrors configs/secuer.yaml.
const DefaultDocument = `# secuer options document
gene:
  min_counts: 3
  min_cells: null
  max_counts: null
  max_cells: null
cell:
  min_counts: 200
  min_genes: null
  max_counts: null
  max_genes: null
norm:
  target_sum: 10000
hvg:
  min_mean: 0.0125
  max_mean: 3
  min_disp: 0.5
  flavor: seurat
  n_top_genes: null
  span: 0.3
pca:
  svd_solver: arpack
  n_comps: 50
---
secuer:
  p: 1000
  knn: 7
  distance: euclidean
  seed: 1
`

// Overrides carries command-line values that were set explicitly, keyed by
// the secuer stage option names.
type Overrides map[string]any

// RunSettings are the clustering options after defaults, document and
// command-line values have been layered.
type RunSettings struct {
	Anchors       int
	KNN           int
	Seed          int64
	Distance      string
	EskMethod     string
	EskResolution float64
	GapTh         int
	Kernel        string
	ClusterMethod string
	Times         int
	Parallel      bool
	Workers       int
}

// Params converts the settings into the parameters of one run.
func (s RunSettings) Params() domain.RunParameters {
	return domain.RunParameters{
		Distance:      s.Distance,
		Anchors:       s.Anchors,
		KNN:           s.KNN,
		EskMethod:     s.EskMethod,
		EskResolution: s.EskResolution,
		GapTh:         s.GapTh,
		Kernel:        s.Kernel,
		ClusterMethod: s.ClusterMethod,
		Seed:          s.Seed,
	}
}

// Configuration is the resolved, read-only configuration of one invocation.
// Stage accessors validate their keys lazily so that a missing key only
// fails once its stage is about to run.
type Configuration struct {
	source string
	stages map[string]map[string]any
	run    RunSettings
}

// Source returns the options document path the configuration was read from.
func (c *Configuration) Source() string { return c.source }

// Run returns the layered run settings.
func (c *Configuration) Run() RunSettings { return c.run }

// Stages lists the stage names present in the document, sorted.
func (c *Configuration) Stages() []string {
	out := make([]string, 0, len(c.stages))
	for k := range c.stages {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Resolve reads the options document at path and overlays the command-line
// overrides.
func Resolve(overrides Overrides, path string) (*Configuration, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: no options document given (use --yaml or SECUER_YAML)", domain.ErrConfiguration)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read options document: %v", domain.ErrConfiguration, err)
	}
	doc, err := Merge(data)
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", domain.ErrConfiguration, path, err)
	}
	stages := make(map[string]map[string]any, len(doc))
	for name, raw := range doc {
		if raw == nil {
			stages[name] = map[string]any{}
			continue
		}
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: stage %q must be a mapping, got %T", domain.ErrConfiguration, name, raw)
		}
		stages[name] = m
	}
	run := defaultRunSettings()
	if err := applyRunOptions(&run, stages[StageSecuer]); err != nil {
		return nil, err
	}
	if err := applyRunOptions(&run, overrides); err != nil {
		return nil, err
	}
	if err := run.validate(); err != nil {
		return nil, err
	}
	return &Configuration{source: path, stages: stages, run: run}, nil
}

// Merge decodes every YAML document in data and folds them into one mapping;
// later documents replace top-level keys of earlier ones.
func Merge(data []byte) (map[string]any, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	merged := map[string]any{}
	for {
		var doc map[string]any
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		for k, v := range doc {
			merged[k] = v
		}
	}
	return merged, nil
}

// Save writes the default document to path, creating directories as needed.
func Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(DefaultDocument), 0o644)
}

func defaultRunSettings() RunSettings {
	return RunSettings{
		Anchors:       1000,
		KNN:           7,
		Seed:          1,
		Distance:      domain.DistanceEuclidean,
		EskMethod:     domain.EstimateSubGraph,
		EskResolution: 0.8,
		GapTh:         4,
		Kernel:        domain.KernelLocalScaled,
		ClusterMethod: domain.PartitionKmeans,
		Times:         5,
		Workers:       4,
	}
}

func applyRunOptions(run *RunSettings, opts map[string]any) error {
	var err error
	for key, v := range opts {
		switch key {
		case KeyAnchors:
			run.Anchors, err = asInt(StageSecuer, key, v)
		case KeyKNN:
			run.KNN, err = asInt(StageSecuer, key, v)
		case KeySeed:
			var s int
			s, err = asInt(StageSecuer, key, v)
			run.Seed = int64(s)
		case KeyDistance:
			run.Distance, err = asString(StageSecuer, key, v)
		case KeyEskMethod:
			run.EskMethod, err = asString(StageSecuer, key, v)
		case KeyEskResolution:
			run.EskResolution, err = asFloat(StageSecuer, key, v)
		case KeyGapTh:
			run.GapTh, err = asInt(StageSecuer, key, v)
		case KeyKernel:
			run.Kernel, err = asString(StageSecuer, key, v)
		case KeyClusterMethod:
			run.ClusterMethod, err = asString(StageSecuer, key, v)
		case KeyTimes:
			run.Times, err = asInt(StageSecuer, key, v)
		case KeyParallel:
			run.Parallel, err = asBool(StageSecuer, key, v)
		case KeyWorkers:
			run.Workers, err = asInt(StageSecuer, key, v)
		default:
			return fmt.Errorf("%w: unknown option %s.%s", domain.ErrConfiguration, StageSecuer, key)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s RunSettings) validate() error {
	switch {
	case s.Anchors <= 0:
		return fmt.Errorf("%w: p should be a positive integer, got %d", domain.ErrConfiguration, s.Anchors)
	case s.KNN <= 0:
		return fmt.Errorf("%w: knn should be a positive integer, got %d", domain.ErrConfiguration, s.KNN)
	case s.Times <= 0:
		return fmt.Errorf("%w: M should be a positive integer, got %d", domain.ErrConfiguration, s.Times)
	case s.Workers <= 0:
		return fmt.Errorf("%w: num_multiProcesses should be positive, got %d", domain.ErrConfiguration, s.Workers)
	case s.GapTh <= 0:
		return fmt.Errorf("%w: gapth should be positive, got %d", domain.ErrConfiguration, s.GapTh)
	case s.EskResolution <= 0:
		return fmt.Errorf("%w: eskResolution should be positive, got %g", domain.ErrConfiguration, s.EskResolution)
	}
	if err := oneOf(KeyDistance, s.Distance, domain.DistanceEuclidean, domain.DistanceSqEuclidean, domain.DistanceCosine, domain.DistanceL1); err != nil {
		return err
	}
	if err := oneOf(KeyEskMethod, s.EskMethod, domain.EstimateSubGraph, domain.EstimateBiGraph); err != nil {
		return err
	}
	if err := oneOf(KeyKernel, s.Kernel, domain.KernelLocalScaled, domain.KernelGaussian); err != nil {
		return err
	}
	return oneOf(KeyClusterMethod, s.ClusterMethod, domain.PartitionKmeans, domain.PartitionAnchorVote)
}

func oneOf(key, v string, allowed ...string) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return fmt.Errorf("%w: %s must be one of %v, got %q", domain.ErrConfiguration, key, allowed, v)
}
