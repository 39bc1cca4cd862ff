package artifact

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"secuer/internal/anndata"
	"secuer/internal/container"
	"secuer/internal/domain"
	"secuer/internal/logging"
	"secuer/internal/markers"
)

// LabelKey is the Obs column the final labels are attached under.
const LabelKey = "Secuer"

// EmbeddingKey is the Obsm block plotted when a plot is requested.
const EmbeddingKey = "X_pca"

// Request describes what to write for one finished run.
type Request struct {
	Dir    string
	Name   string // file stem, e.g. SecuerResult
	Labels domain.LabelVector
	Matrix *anndata.Matrix
	// Expression is ranked for marker genes; Matrix is used when nil.
	Expression *anndata.Matrix
	Plot       bool
	Markers    bool
	// Params are stored in the container's uns table.
	Params map[string]string
}

// Report lists the files a Write produced.
type Report struct {
	RunID         string
	LabelsPath    string
	ContainerPath string
	PlotPaths     []string
	MarkersPath   string
}

// Writer persists run artifacts.
type Writer struct {
	log     *logging.Logger
	plotter domain.Plotter
	now     func() time.Time
}

// NewWriter creates a writer. A nil plotter selects SVGPlotter.
func NewWriter(log *logging.Logger, plotter domain.Plotter) *Writer {
	if plotter == nil {
		plotter = SVGPlotter{}
	}
	return &Writer{log: log, plotter: plotter, now: time.Now}
}

// Write stores the labels, attaches them to the matrix and persists the
// container. Plot failures are logged and never returned.
func (w *Writer) Write(req Request) (*Report, error) {
	if req.Matrix == nil {
		return nil, fmt.Errorf("artifact: no matrix")
	}
	if len(req.Labels) != req.Matrix.NObs() {
		return nil, fmt.Errorf("artifact: %d labels for %d observations", len(req.Labels), req.Matrix.NObs())
	}
	rep := &Report{RunID: uuid.NewString()}

	rep.LabelsPath = filepath.Join(req.Dir, req.Name+".txt")
	w.log.Infof("Note: save result to %s", rep.LabelsPath)
	if err := writeLabels(rep.LabelsPath, req.Labels); err != nil {
		return nil, fmt.Errorf("artifact: write labels: %w", err)
	}

	values := make([]string, len(req.Labels))
	for i, l := range req.Labels {
		values[i] = strconv.Itoa(l)
	}
	if err := req.Matrix.SetObs(LabelKey, values); err != nil {
		return nil, fmt.Errorf("artifact: %w", err)
	}
	req.Matrix.Uns["run_id"] = rep.RunID
	req.Matrix.Uns["created_at"] = w.now().UTC().Format(time.RFC3339)
	for k, v := range req.Params {
		req.Matrix.Uns[k] = v
	}
	if req.Plot {
		paths, err := w.plot(req)
		if err != nil {
			w.log.Warnf("plot failed, clustering results are kept: %v", err)
		} else {
			rep.PlotPaths = paths
		}
	}

	rep.ContainerPath = filepath.Join(req.Dir, req.Name+"."+container.Extension)
	if err := container.Write(rep.ContainerPath, req.Matrix); err != nil {
		return nil, fmt.Errorf("artifact: %w", err)
	}

	if req.Markers {
		expr := req.Expression
		if expr == nil {
			expr = req.Matrix
		}
		ms, err := markers.Rank(expr, req.Labels, markers.DefaultTop)
		if err != nil {
			return nil, fmt.Errorf("artifact: %w", err)
		}
		rep.MarkersPath = filepath.Join(req.Dir, req.Name+"_markers.tsv")
		f, err := os.Create(rep.MarkersPath)
		if err != nil {
			return nil, fmt.Errorf("artifact: %w", err)
		}
		if err := markers.WriteTSV(f, ms); err != nil {
			f.Close()
			return nil, fmt.Errorf("artifact: write markers: %w", err)
		}
		if err := f.Close(); err != nil {
			return nil, fmt.Errorf("artifact: write markers: %w", err)
		}
	}
	return rep, nil
}

func (w *Writer) plot(req Request) ([]string, error) {
	emb, ok := req.Matrix.Obsm[EmbeddingKey]
	if !ok || len(emb) == 0 {
		return nil, fmt.Errorf("no %s embedding to plot", EmbeddingKey)
	}
	edges, err := neighborEdges(emb, plotNeighbors)
	if err != nil {
		return nil, err
	}
	coords := projection(emb)
	req.Matrix.Obsm["X_2d"] = coords
	if err := w.plotter.Plot(req.Dir, req.Name, coords, edges, req.Labels); err != nil {
		return nil, err
	}
	return []string{
		filepath.Join(req.Dir, req.Name+"_pca.svg"),
		filepath.Join(req.Dir, req.Name+"_pca.tsv"),
	}, nil
}

func writeLabels(path string, labels domain.LabelVector) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	bw := bufio.NewWriter(f)
	for _, l := range labels {
		bw.WriteString(strconv.Itoa(l))
		bw.WriteByte('\n')
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return f.Close()
}
