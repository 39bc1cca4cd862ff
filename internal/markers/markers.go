// Package markers ranks the features that distinguish each cluster from the
// rest of the observations.
package markers

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"sort"

	"secuer/internal/anndata"
	"secuer/internal/domain"
)

// DefaultTop is the number of markers reported per cluster.
const DefaultTop = 10

// Marker is one ranked feature of a cluster.
type Marker struct {
	Cluster    int
	Rank       int
	Feature    string
	Score      float64 // Welch t statistic, cluster vs rest
	MeanDiff   float64 // mean log-expression difference, cluster minus rest
	PctCluster float64 // fraction of cluster observations expressing the feature
}

// Rank scores every feature of the log-normalized matrix m for every cluster
// of labels with a Welch t test against the remaining observations and keeps
// the top features per cluster, best first. A cluster holding every
// observation has nothing to be compared with and yields no markers.
func Rank(m *anndata.Matrix, labels domain.LabelVector, top int) ([]Marker, error) {
	if len(labels) != m.NObs() {
		return nil, fmt.Errorf("markers: %d labels for %d observations", len(labels), m.NObs())
	}
	if top <= 0 {
		top = DefaultTop
	}
	k := 0
	for _, l := range labels {
		if l < 0 {
			return nil, fmt.Errorf("markers: negative label %d", l)
		}
		if l+1 > k {
			k = l + 1
		}
	}
	d := m.NVars()
	sum := make([][]float64, k)
	sq := make([][]float64, k)
	nz := make([][]float64, k)
	count := make([]float64, k)
	for c := 0; c < k; c++ {
		sum[c] = make([]float64, d)
		sq[c] = make([]float64, d)
		nz[c] = make([]float64, d)
	}
	total := make([]float64, d)
	totalSq := make([]float64, d)
	for i, row := range m.X {
		c := labels[i]
		count[c]++
		for j, v := range row {
			sum[c][j] += v
			sq[c][j] += v * v
			total[j] += v
			totalSq[j] += v * v
			if v > 0 {
				nz[c][j]++
			}
		}
	}

	n := float64(m.NObs())
	var out []Marker
	for c := 0; c < k; c++ {
		n1, n2 := count[c], n-count[c]
		if n1 == 0 || n2 == 0 {
			continue
		}
		scored := make([]Marker, d)
		for j := 0; j < d; j++ {
			m1 := sum[c][j] / n1
			m2 := (total[j] - sum[c][j]) / n2
			v1 := sampleVar(sq[c][j], m1, n1)
			v2 := sampleVar(totalSq[j]-sq[c][j], m2, n2)
			scored[j] = Marker{
				Cluster:    c,
				Feature:    m.VarNames[j],
				Score:      welch(m1, m2, v1, v2, n1, n2),
				MeanDiff:   m1 - m2,
				PctCluster: nz[c][j] / n1,
			}
		}
		sort.SliceStable(scored, func(a, b int) bool { return scored[a].Score > scored[b].Score })
		if len(scored) > top {
			scored = scored[:top]
		}
		for r := range scored {
			scored[r].Rank = r + 1
		}
		out = append(out, scored...)
	}
	return out, nil
}

// WriteTSV writes markers as a tab-separated table with a header row.
func WriteTSV(w io.Writer, ms []Marker) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "cluster\trank\tfeature\tscore\tmean_diff\tpct_cluster")
	for _, mk := range ms {
		fmt.Fprintf(bw, "%d\t%d\t%s\t%.6g\t%.6g\t%.4f\n", mk.Cluster, mk.Rank, mk.Feature, mk.Score, mk.MeanDiff, mk.PctCluster)
	}
	return bw.Flush()
}

func sampleVar(sumSq, mean, n float64) float64 {
	if n < 2 {
		return 0
	}
	return math.Max(0, (sumSq-n*mean*mean)/(n-1))
}

// welch returns the t statistic. With zero variance on both sides the score
// is the mean difference itself so that constant but different features
// still rank above identical ones.
func welch(m1, m2, v1, v2, n1, n2 float64) float64 {
	se := math.Sqrt(v1/n1 + v2/n2)
	if se == 0 {
		return m1 - m2
	}
	return (m1 - m2) / se
}
