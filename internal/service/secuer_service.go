// Package service runs the pipeline end to end: output check, loading,
// preprocessing, clustering in the selected mode and writing the artifacts.
package service

import (
	"context"
	"fmt"
	"time"

	"secuer/internal/artifact"
	"secuer/internal/config"
	"secuer/internal/dataset"
	"secuer/internal/domain"
	"secuer/internal/ensemble"
	"secuer/internal/logging"
	"secuer/internal/preprocess"
)

// Request is one invocation of the pipeline.
type Request struct {
	Input     string
	OutDir    string
	Transpose bool
	Plot      bool
	Markers   bool
	Mode      Mode
	Config    *config.Configuration
}

// Outcome is what a successful Run produced.
type Outcome struct {
	Labels    domain.LabelVector
	Consensus *domain.ConsensusResult // nil for a single run
	Report    *artifact.Report
}

// SecuerServiceImpl wires the pipeline stages together.
type SecuerServiceImpl struct {
	log        *logging.Logger
	pipeline   *preprocess.Pipeline
	dispatcher *Dispatcher
	writer     *artifact.Writer
	observer   ensemble.Observer
}

// NewSecuerService builds the service around a clustering primitive.
// observer, when not nil, is told about every finished ensemble run.
func NewSecuerService(log *logging.Logger, clusterer domain.Clusterer, plotter domain.Plotter, observer ensemble.Observer) *SecuerServiceImpl {
	return &SecuerServiceImpl{
		log:        log,
		pipeline:   preprocess.NewPipeline(log),
		dispatcher: NewDispatcher(clusterer),
		writer:     artifact.NewWriter(log, plotter),
		observer:   observer,
	}
}

// Run executes the request. The output location is validated before the
// input is read so a conflicting path fails before any work is done.
func (s *SecuerServiceImpl) Run(ctx context.Context, req Request) (*Outcome, error) {
	if req.Mode == nil {
		return nil, fmt.Errorf("%w: no mode selected", domain.ErrConfiguration)
	}
	if req.Config == nil {
		return nil, fmt.Errorf("%w: no configuration", domain.ErrConfiguration)
	}
	if err := artifact.PrepareOutput(req.OutDir, s.log); err != nil {
		return nil, err
	}
	if req.Input == "" {
		return nil, fmt.Errorf("%w: inputfile is required", domain.ErrConfiguration)
	}

	s.log.Info("Reading data...")
	m, err := dataset.Load(req.Input, req.Transpose)
	if err != nil {
		return nil, err
	}
	s.log.Warnf("Your data contains %d observations and %d features.", m.NObs(), m.NVars())

	prep, err := s.pipeline.Run(m, req.Config)
	if err != nil {
		return nil, err
	}
	lead := 0.0
	if len(prep.Variance) > 0 {
		lead = prep.Variance[0]
	}
	s.log.Infof("PCA kept %d components (leading variance %.3g), highly variable genes applied: %t",
		len(prep.Variance), lead, prep.FeatureSelection)

	out := &Outcome{}
	start := time.Now()
	switch mode := req.Mode.(type) {
	case SingleRun:
		s.log.Info("Run secuer...")
		out.Labels, err = s.dispatcher.RunOnce(ctx, prep.Embedding, mode.Params)
		if err != nil {
			return nil, err
		}
	case Ensemble:
		s.log.Info("Run secuer consensus...")
		var opts []ensemble.Option
		if mode.Parallel {
			opts = append(opts, ensemble.WithParallel(mode.Workers))
		}
		if s.observer != nil {
			opts = append(opts, ensemble.WithObserver(s.observer))
		}
		res, err := ensemble.NewCoordinator(s.dispatcher, s.log, opts...).Run(ctx, prep.Embedding, mode.Params, mode.Times)
		if err != nil {
			return nil, err
		}
		out.Labels, out.Consensus = res.Labels, res
	default:
		return nil, fmt.Errorf("%w: unknown mode %T", domain.ErrConfiguration, req.Mode)
	}
	s.log.Infof("Finished: The secuer finds %d clusters in %s.", out.Labels.NumClusters(), time.Since(start).Round(time.Millisecond))

	out.Report, err = s.writer.Write(artifact.Request{
		Dir:        req.OutDir,
		Name:       req.Mode.ResultName(),
		Labels:     out.Labels,
		Matrix:     prep.Matrix,
		Expression: prep.LogNormalized,
		Plot:       req.Plot,
		Markers:    req.Markers,
		Params:     req.Mode.describe(),
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
