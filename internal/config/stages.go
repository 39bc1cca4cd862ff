package config

import (
	"fmt"
	"math"

	"secuer/internal/domain"
)

// GeneOptions bound feature filtering. Nil bounds are not applied.
type GeneOptions struct {
	MinCounts *float64
	MinCells  *float64
	MaxCounts *float64
	MaxCells  *float64
}

// CellOptions bound observation filtering. Nil bounds are not applied.
type CellOptions struct {
	MinCounts *float64
	MinGenes  *float64
	MaxCounts *float64
	MaxGenes  *float64
}

// NormOptions configure total-count normalization. A nil target means the
// median of the per-observation totals.
type NormOptions struct {
	TargetSum *float64
}

// HVGOptions configure variable-feature selection.
type HVGOptions struct {
	MinMean   float64
	MaxMean   float64
	MinDisp   float64
	MaxDisp   float64
	Flavor    string
	NTopGenes int
	Span      float64
	NBins     int
}

// PCAOptions configure the dimensionality reduction.
type PCAOptions struct {
	SVDSolver string
	NComps    int
}

// Gene returns the feature-filter options.
func (c *Configuration) Gene() (GeneOptions, error) {
	s, err := c.stage(StageGene, "min_counts", "min_cells", "max_counts", "max_cells")
	if err != nil {
		return GeneOptions{}, err
	}
	var o GeneOptions
	if o.MinCounts, err = optFloat(StageGene, s, "min_counts"); err != nil {
		return o, err
	}
	if o.MinCells, err = optFloat(StageGene, s, "min_cells"); err != nil {
		return o, err
	}
	if o.MaxCounts, err = optFloat(StageGene, s, "max_counts"); err != nil {
		return o, err
	}
	o.MaxCells, err = optFloat(StageGene, s, "max_cells")
	return o, err
}

// Cell returns the observation-filter options.
func (c *Configuration) Cell() (CellOptions, error) {
	s, err := c.stage(StageCell, "min_counts", "min_genes", "max_counts", "max_genes")
	if err != nil {
		return CellOptions{}, err
	}
	var o CellOptions
	if o.MinCounts, err = optFloat(StageCell, s, "min_counts"); err != nil {
		return o, err
	}
	if o.MinGenes, err = optFloat(StageCell, s, "min_genes"); err != nil {
		return o, err
	}
	if o.MaxCounts, err = optFloat(StageCell, s, "max_counts"); err != nil {
		return o, err
	}
	o.MaxGenes, err = optFloat(StageCell, s, "max_genes")
	return o, err
}

// Norm returns the normalization options.
func (c *Configuration) Norm() (NormOptions, error) {
	s, err := c.stage(StageNorm, "target_sum")
	if err != nil {
		return NormOptions{}, err
	}
	target, err := optFloat(StageNorm, s, "target_sum")
	return NormOptions{TargetSum: target}, err
}

// HVG returns the variable-feature selection options.
func (c *Configuration) HVG() (HVGOptions, error) {
	s, err := c.stage(StageHVG, "min_mean", "max_mean", "min_disp", "flavor", "n_top_genes", "span")
	if err != nil {
		return HVGOptions{}, err
	}
	o := HVGOptions{MaxDisp: math.Inf(1), NBins: 20}
	if o.MinMean, err = asFloat(StageHVG, "min_mean", s["min_mean"]); err != nil {
		return o, err
	}
	if o.MaxMean, err = asFloat(StageHVG, "max_mean", s["max_mean"]); err != nil {
		return o, err
	}
	if o.MinDisp, err = asFloat(StageHVG, "min_disp", s["min_disp"]); err != nil {
		return o, err
	}
	if v, ok := s["max_disp"]; ok && v != nil {
		if o.MaxDisp, err = asFloat(StageHVG, "max_disp", v); err != nil {
			return o, err
		}
	}
	if o.Flavor, err = asString(StageHVG, "flavor", s["flavor"]); err != nil {
		return o, err
	}
	if err := oneOf("hvg.flavor", o.Flavor, "seurat", "cell_ranger"); err != nil {
		return o, err
	}
	if s["n_top_genes"] != nil {
		if o.NTopGenes, err = asInt(StageHVG, "n_top_genes", s["n_top_genes"]); err != nil {
			return o, err
		}
	}
	if o.Span, err = asFloat(StageHVG, "span", s["span"]); err != nil {
		return o, err
	}
	if v, ok := s["n_bins"]; ok && v != nil {
		if o.NBins, err = asInt(StageHVG, "n_bins", v); err != nil {
			return o, err
		}
	}
	return o, nil
}

// PCA returns the dimensionality-reduction options.
func (c *Configuration) PCA() (PCAOptions, error) {
	s, err := c.stage(StagePCA, "svd_solver")
	if err != nil {
		return PCAOptions{}, err
	}
	o := PCAOptions{NComps: 50}
	if o.SVDSolver, err = asString(StagePCA, "svd_solver", s["svd_solver"]); err != nil {
		return o, err
	}
	if err := oneOf("pca.svd_solver", o.SVDSolver, "arpack", "randomized", "auto", "lobpcg", "full"); err != nil {
		return o, err
	}
	if v, ok := s["n_comps"]; ok && v != nil {
		if o.NComps, err = asInt(StagePCA, "n_comps", v); err != nil {
			return o, err
		}
		if o.NComps <= 0 {
			return o, fmt.Errorf("%w: pca.n_comps should be positive, got %d", domain.ErrConfiguration, o.NComps)
		}
	}
	return o, nil
}

func (c *Configuration) stage(name string, required ...string) (map[string]any, error) {
	s, ok := c.stages[name]
	if !ok {
		return nil, fmt.Errorf("%w: stage %q missing from %s", domain.ErrConfiguration, name, c.source)
	}
	for _, key := range required {
		if _, ok := s[key]; !ok {
			return nil, fmt.Errorf("%w: %s.%s is required", domain.ErrConfiguration, name, key)
		}
	}
	return s, nil
}

func optFloat(stage string, s map[string]any, key string) (*float64, error) {
	v := s[key]
	if v == nil {
		return nil, nil
	}
	f, err := asFloat(stage, key, v)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func asFloat(stage, key string, v any) (float64, error) {
	switch t := v.(type) {
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case uint64:
		return float64(t), nil
	case float64:
		return t, nil
	}
	return 0, fmt.Errorf("%w: %s.%s should be a number, got %v (%T)", domain.ErrConfiguration, stage, key, v, v)
}

func asInt(stage, key string, v any) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case uint64:
		return int(t), nil
	case float64:
		if t == math.Trunc(t) {
			return int(t), nil
		}
	}
	return 0, fmt.Errorf("%w: %s.%s should be an integer, got %v (%T)", domain.ErrConfiguration, stage, key, v, v)
}

func asString(stage, key string, v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	return "", fmt.Errorf("%w: %s.%s should be a string, got %v (%T)", domain.ErrConfiguration, stage, key, v, v)
}

func asBool(stage, key string, v any) (bool, error) {
	if b, ok := v.(bool); ok {
		return b, nil
	}
	return false, fmt.Errorf("%w: %s.%s should be a boolean, got %v (%T)", domain.ErrConfiguration, stage, key, v, v)
}
