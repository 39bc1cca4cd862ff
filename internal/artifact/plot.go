package artifact

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"secuer/internal/domain"
	"secuer/internal/linalg"
	"secuer/internal/neighbors"
)

const (
	plotSize   = 480.0
	plotMargin = 24.0
	// plotNeighbors is the number of graph edges drawn per observation.
	plotNeighbors = 3
)

var palette = []string{
	"#1f77b4", "#ff7f0e", "#2ca02c", "#d62728", "#9467bd",
	"#8c564b", "#e377c2", "#7f7f7f", "#bcbd22", "#17becf",
}

// SVGPlotter draws a labelled scatter plot with its neighbor graph as SVG and
// writes the plotted coordinates next to it as TSV.
type SVGPlotter struct{}

var _ domain.Plotter = SVGPlotter{}

// Plot writes <name>_pca.svg and <name>_pca.tsv into dir.
func (SVGPlotter) Plot(dir, name string, coords [][]float64, edges [][2]int, labels domain.LabelVector) error {
	if len(coords) != len(labels) {
		return fmt.Errorf("plot: %d points for %d labels", len(coords), len(labels))
	}
	if err := writeCoords(filepath.Join(dir, name+"_pca.tsv"), coords, labels); err != nil {
		return err
	}
	return writeSVG(filepath.Join(dir, name+"_pca.svg"), coords, edges, labels)
}

func writeCoords(path string, coords [][]float64, labels domain.LabelVector) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	fmt.Fprintln(w, "index\tPC1\tPC2\tSecuer")
	for i, c := range coords {
		fmt.Fprintf(w, "%d\t%.6g\t%.6g\t%d\n", i, c[0], c[1], labels[i])
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Close()
}

func writeSVG(path string, coords [][]float64, edges [][2]int, labels domain.LabelVector) error {
	minX, maxX := math.Inf(1), math.Inf(-1)
	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, c := range coords {
		minX, maxX = math.Min(minX, c[0]), math.Max(maxX, c[0])
		minY, maxY = math.Min(minY, c[1]), math.Max(maxY, c[1])
	}
	span := math.Max(maxX-minX, maxY-minY)
	if span == 0 || math.IsInf(span, 0) {
		span = 1
	}
	scale := (plotSize - 2*plotMargin) / span
	px := func(c []float64) (float64, float64) {
		// SVG y grows downwards
		return plotMargin + (c[0]-minX)*scale, plotSize - plotMargin - (c[1]-minY)*scale
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	fmt.Fprintf(w, `<svg xmlns="http://www.w3.org/2000/svg" width="%.0f" height="%.0f" viewBox="0 0 %.0f %.0f">`+"\n",
		plotSize, plotSize, plotSize, plotSize)
	fmt.Fprintln(w, `<rect width="100%" height="100%" fill="white"/>`)
	fmt.Fprintln(w, `<g stroke="#d0d0d0" stroke-width="0.5">`)
	for _, e := range edges {
		x1, y1 := px(coords[e[0]])
		x2, y2 := px(coords[e[1]])
		fmt.Fprintf(w, `<line x1="%.2f" y1="%.2f" x2="%.2f" y2="%.2f"/>`+"\n", x1, y1, x2, y2)
	}
	fmt.Fprintln(w, `</g>`)
	fmt.Fprintln(w, `<g stroke="none">`)
	for i, c := range coords {
		x, y := px(c)
		fmt.Fprintf(w, `<circle cx="%.2f" cy="%.2f" r="2.5" fill="%s"/>`+"\n", x, y, palette[labels[i]%len(palette)])
	}
	fmt.Fprintln(w, `</g>`)
	fmt.Fprintf(w, `<text x="%.0f" y="16" font-family="sans-serif" font-size="12">Secuer (%d clusters)</text>`+"\n",
		plotMargin, labels.NumClusters())
	fmt.Fprintln(w, `</svg>`)
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Close()
}

// projection returns the first two columns of the embedding, padding with
// zeros when it has only one.
func projection(embedding [][]float64) [][]float64 {
	out := make([][]float64, len(embedding))
	for i, row := range embedding {
		p := make([]float64, 2)
		copy(p, row)
		out[i] = p
	}
	return out
}

// neighborEdges links every observation to its k nearest other observations
// in the embedding. Each undirected edge appears once.
func neighborEdges(embedding [][]float64, k int) ([][2]int, error) {
	if len(embedding) == 0 {
		return nil, nil
	}
	index := neighbors.NewIndex(linalg.Euclidean)
	if err := index.Init(len(embedding[0])); err != nil {
		return nil, err
	}
	if err := index.Upsert(embedding); err != nil {
		return nil, err
	}
	seen := make(map[[2]int]struct{})
	var edges [][2]int
	for i, v := range embedding {
		res, err := index.Search(v, k+1)
		if err != nil {
			return nil, err
		}
		for _, r := range res {
			if r.Index == i {
				continue
			}
			e := [2]int{min(i, r.Index), max(i, r.Index)}
			if _, ok := seen[e]; ok {
				continue
			}
			seen[e] = struct{}{}
			edges = append(edges, e)
		}
	}
	return edges, nil
}
