// Package preprocess turns a raw count matrix into the reduced embedding the
// clustering primitive consumes.
package preprocess

import (
	"errors"
	"fmt"
	"strconv"

	"secuer/internal/anndata"
	"secuer/internal/config"
	"secuer/internal/domain"
	"secuer/internal/logging"
)

// MaxScaleValue clips scaled values.
const MaxScaleValue = 10

// EmbeddingKey is the Obsm key of the PCA embedding.
const EmbeddingKey = "X_pca"

// Result is the output of Pipeline.Run.
type Result struct {
	// Matrix is the scaled matrix restricted to the selected features, with
	// the embedding attached under Obsm[EmbeddingKey].
	Matrix *anndata.Matrix
	// LogNormalized holds the log-normalized values of the same features
	// and observations as Matrix, before scaling.
	LogNormalized *anndata.Matrix
	// Embedding aliases Matrix.Obsm[EmbeddingKey].
	Embedding [][]float64
	// Variance explained by each component.
	Variance []float64
	// FeatureSelection is false when the variable-feature step fell back to
	// the full feature set.
	FeatureSelection bool
}

// Pipeline runs the preprocessing stages in their fixed order.
type Pipeline struct {
	log *logging.Logger
}

// NewPipeline creates a pipeline reporting through log.
func NewPipeline(log *logging.Logger) *Pipeline { return &Pipeline{log: log} }

// Run filters, normalizes, selects variable features, scales and reduces m.
// m itself is never modified.
func (p *Pipeline) Run(m *anndata.Matrix, cfg *config.Configuration) (*Result, error) {
	geneOpts, err := cfg.Gene()
	if err != nil {
		return nil, err
	}
	p.log.Info("filtering genes...")
	work, err := FilterGenes(m, geneOpts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPreprocessing, err)
	}

	cellOpts, err := cfg.Cell()
	if err != nil {
		return nil, err
	}
	p.log.Info("filtering cells...")
	if work, err = FilterCells(work, cellOpts); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPreprocessing, err)
	}

	normOpts, err := cfg.Norm()
	if err != nil {
		return nil, err
	}
	p.log.Info("normalizing data...")
	if err := NormalizeTotal(work, normOpts); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPreprocessing, err)
	}
	if err := Log1p(work); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPreprocessing, err)
	}

	hvgOpts, err := cfg.HVG()
	if err != nil {
		return nil, err
	}
	p.log.Info("selecting highly variable genes...")
	selected := false
	mask, err := HighlyVariableGenes(work, hvgOpts)
	var selErr *SelectionError
	switch {
	case err == nil:
		work = work.SubsetVars(maskIndices(mask))
		selected = true
	case errors.As(err, &selErr):
		p.log.Warnf("%v; continuing with all %d features", selErr, work.NVars())
	default:
		return nil, fmt.Errorf("%w: %v", domain.ErrPreprocessing, err)
	}
	logNorm := work.Clone()

	p.log.Warnf("Your data contains %d observations and %d features after preprocessing.", work.NObs(), work.NVars())
	if err := Scale(work, MaxScaleValue); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPreprocessing, err)
	}

	pcaOpts, err := cfg.PCA()
	if err != nil {
		return nil, err
	}
	p.log.Info("performing PCA...")
	emb, variance, err := PCA(work.X, pcaOpts.NComps)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPreprocessing, err)
	}
	work.Obsm[EmbeddingKey] = emb
	work.Uns["pca_svd_solver"] = pcaOpts.SVDSolver
	work.Uns["pca_n_comps"] = strconv.Itoa(len(variance))
	work.Uns["hvg_applied"] = strconv.FormatBool(selected)

	return &Result{
		Matrix:           work,
		LogNormalized:    logNorm,
		Embedding:        emb,
		Variance:         variance,
		FeatureSelection: selected,
	}, nil
}

func maskIndices(mask []bool) []int {
	out := make([]int, 0, len(mask))
	for j, ok := range mask {
		if ok {
			out = append(out, j)
		}
	}
	return out
}
